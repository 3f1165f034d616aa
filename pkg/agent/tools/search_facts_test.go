package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/chronicle/pkg/graph"
)

// stubStore serves canned search results.
type stubStore struct {
	results   []graph.RawFact
	err       error
	lastQuery string
}

func (s *stubStore) Search(ctx context.Context, query string) ([]graph.RawFact, error) {
	s.lastQuery = query
	return s.results, s.err
}

func (s *stubStore) BuildIndices(ctx context.Context) error { return nil }
func (s *stubStore) ClearData(ctx context.Context) error    { return nil }
func (s *stubStore) Close(ctx context.Context) error        { return nil }

func TestSearchFactsExecute(t *testing.T) {
	store := &stubStore{results: []graph.RawFact{
		{"uuid": "f-1", "fact": "Acme acquired Globex", "valid_at": "2020-03-01T00:00:00Z"},
		{"uuid": "f-2", "fact": "Globex was renamed"},
	}}
	tool := NewSearchFactsTool(store)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"Globex"}`))
	require.NoError(t, err)
	assert.Equal(t, "Globex", store.lastQuery)

	var facts []graph.Fact
	require.NoError(t, json.Unmarshal([]byte(out), &facts))
	require.Len(t, facts, 2)
	assert.Equal(t, "f-1", facts[0].UUID)
	assert.Equal(t, "Acme acquired Globex", facts[0].Statement)
	assert.Equal(t, "2020-03-01T00:00:00Z", facts[0].ValidAt)
	assert.Empty(t, facts[1].ValidAt)
}

func TestSearchFactsStoreFailureReturnsEmpty(t *testing.T) {
	tool := NewSearchFactsTool(&stubStore{err: errors.New("connection reset")})

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"anything"}`))

	// Store failures must not surface as tool errors.
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSearchFactsNoResults(t *testing.T) {
	tool := NewSearchFactsTool(&stubStore{})

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"unknown topic"}`))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSearchFactsMalformedRecordsDropped(t *testing.T) {
	store := &stubStore{results: []graph.RawFact{
		{"uuid": "f-1", "fact": "kept"},
		{"uuid": "", "fact": "dropped"},
		{"fact": "also dropped"},
	}}
	tool := NewSearchFactsTool(store)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	require.NoError(t, err)

	var facts []graph.Fact
	require.NoError(t, json.Unmarshal([]byte(out), &facts))
	require.Len(t, facts, 1)
	assert.Equal(t, "f-1", facts[0].UUID)
}

func TestSearchFactsInvalidArguments(t *testing.T) {
	tool := NewSearchFactsTool(&stubStore{})

	tests := []struct {
		name string
		args string
	}{
		{"malformed json", `{"query":`},
		{"missing query", `{}`},
		{"empty query", `{"query":""}`},
		{"blank query", `{"query":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(context.Background(), json.RawMessage(tt.args))
			assert.Error(t, err)
		})
	}
}

func TestDefinitions(t *testing.T) {
	tool := NewSearchFactsTool(&stubStore{})

	defs := Definitions([]Tool{tool})
	require.Len(t, defs, 1)
	assert.Equal(t, "search_facts", defs[0].Name)
	assert.NotEmpty(t, defs[0].Description)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}
