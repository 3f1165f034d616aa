package memory

import (
	"sync"

	"github.com/entrhq/chronicle/pkg/types"
)

// ConversationMemory holds the durable message history of a session.
//
// History only ever grows: a completed turn appends the user message and
// the final assistant message, a failed turn appends nothing. Transient
// turn state such as tool calls and tool results never enters memory.
type ConversationMemory struct {
	mu       sync.RWMutex
	messages []*types.Message
}

// NewConversationMemory returns an empty history.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{}
}

// Add appends messages to the history.
func (m *ConversationMemory) Add(msgs ...*types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// GetAll returns a copy of the history in insertion order.
func (m *ConversationMemory) GetAll() []*types.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len reports the number of stored messages.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}
