// Package tokenizer provides client-side token counting for diagnostics.
//
// Counts are estimates: the local model's tokenizer is unknown, so the
// cl100k_base encoding is used as a stable approximation. Nothing in the
// turn protocol depends on these numbers; they only feed logs and the
// token-usage events.
package tokenizer

import (
	"fmt"

	"github.com/entrhq/chronicle/pkg/types"
	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// messageOverheadTokens approximates the per-message wire framing cost.
const messageOverheadTokens = 4

// Tokenizer counts tokens using a fixed tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a tokenizer. Fails only if the encoding data is unavailable.
func New() (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return &Tokenizer{encoding: encoding}, nil
}

// CountTokens returns the token count of a single string.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessagesTokens returns the approximate token count of a message list,
// including per-message framing overhead.
func (t *Tokenizer) CountMessagesTokens(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += t.CountTokens(msg.Content) + messageOverheadTokens
		for _, call := range msg.ToolCalls {
			total += t.CountTokens(call.Name) + t.CountTokens(call.Arguments)
		}
	}
	return total
}
