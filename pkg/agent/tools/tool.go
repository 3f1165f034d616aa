package tools

import (
	"context"
	"encoding/json"

	"github.com/entrhq/chronicle/pkg/llm"
)

// Tool is a capability the agent can expose to the language model. The
// backend decides when to invoke a tool; Execute receives the raw JSON
// arguments the model produced.
type Tool interface {
	// Name is the unique identifier the model uses to invoke the tool.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Schema is the JSON Schema of the tool's arguments.
	Schema() map[string]interface{}

	// Execute runs the tool and returns its result as a string to feed
	// back into the conversation.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Definitions converts registered tools into the wire form providers send
// to the model backend.
func Definitions(ts []Tool) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return defs
}
