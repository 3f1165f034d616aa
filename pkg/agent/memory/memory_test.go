package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/chronicle/pkg/types"
)

func TestConversationMemoryAppendsInOrder(t *testing.T) {
	m := NewConversationMemory()
	assert.Zero(t, m.Len())

	m.Add(types.NewUserMessage("hello"))
	m.Add(types.NewAssistantMessage("hi there"))

	msgs := m.GetAll()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
}

func TestConversationMemoryAddPair(t *testing.T) {
	m := NewConversationMemory()
	m.Add(types.NewUserMessage("q"), types.NewAssistantMessage("a"))
	assert.Equal(t, 2, m.Len())
}

func TestGetAllReturnsCopy(t *testing.T) {
	m := NewConversationMemory()
	m.Add(types.NewUserMessage("original"))

	snapshot := m.GetAll()
	snapshot[0] = types.NewUserMessage("mutated")

	assert.Equal(t, "original", m.GetAll()[0].Content)
}
