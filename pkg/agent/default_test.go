package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/chronicle/pkg/llm"
	"github.com/entrhq/chronicle/pkg/types"
)

// providerCall records one StreamCompletion invocation.
type providerCall struct {
	messages []*types.Message
	tools    []llm.ToolDefinition
}

// fakeProvider serves scripted chunk sequences, one per call.
type fakeProvider struct {
	mu       sync.Mutex
	scripts  [][]*llm.StreamChunk
	calls    []providerCall
	startErr error
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, messages []*types.Message, tools []llm.ToolDefinition) (<-chan *llm.StreamChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, providerCall{messages: messages, tools: tools})
	if p.startErr != nil {
		return nil, p.startErr
	}
	if len(p.scripts) == 0 {
		return nil, fmt.Errorf("no scripted response for call %d", len(p.calls))
	}

	script := p.scripts[0]
	p.scripts = p.scripts[1:]

	ch := make(chan *llm.StreamChunk, len(script))
	for _, chunk := range script {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	return nil, fmt.Errorf("not implemented")
}

func (p *fakeProvider) GetModel() string   { return "fake-model" }
func (p *fakeProvider) GetBaseURL() string { return "http://fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) call(i int) providerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

func textScript(fragments ...string) []*llm.StreamChunk {
	chunks := make([]*llm.StreamChunk, 0, len(fragments)+1)
	for _, f := range fragments {
		chunks = append(chunks, &llm.StreamChunk{Content: f})
	}
	return append(chunks, &llm.StreamChunk{Finished: true})
}

func toolCallScript(calls ...types.ToolCall) []*llm.StreamChunk {
	return []*llm.StreamChunk{{ToolCalls: calls, Finished: true}}
}

// scriptedTool returns canned outputs or errors in sequence.
type scriptedTool struct {
	name    string
	outputs []string
	errs    []error
	argsLog []string
}

func (t *scriptedTool) Name() string                   { return t.name }
func (t *scriptedTool) Description() string            { return "scripted test tool" }
func (t *scriptedTool) Schema() map[string]interface{} { return map[string]interface{}{"type": "object"} }

func (t *scriptedTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.argsLog = append(t.argsLog, string(args))
	i := len(t.argsLog) - 1
	if i < len(t.errs) && t.errs[i] != nil {
		return "", t.errs[i]
	}
	if i < len(t.outputs) {
		return t.outputs[i], nil
	}
	return "", fmt.Errorf("unscripted call %d", i)
}

// runOneTurn starts the agent, sends one user message, and collects every
// event up to and including the turn end.
func runOneTurn(t *testing.T, a *DefaultAgent, input string) []*types.AgentEvent {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		require.NoError(t, a.Shutdown(shutdownCtx))
	}()

	a.GetChannels().Input <- types.NewUserInput(input)

	var events []*types.AgentEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-a.GetChannels().Event:
			events = append(events, e)
			if e.Type == types.EventTypeTurnEnd {
				return events
			}
		case <-timeout:
			t.Fatalf("timed out waiting for turn end; saw %d events", len(events))
		}
	}
}

func eventTypes(events []*types.AgentEvent) []types.AgentEventType {
	out := make([]types.AgentEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestPlainAnswerTurn(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		textScript("Hel", "lo, ", "world"),
	}}
	a := NewDefaultAgent(provider)

	events := runOneTurn(t, a, "say hello")

	assert.Contains(t, eventTypes(events), types.EventTypeMessageStart)
	assert.Contains(t, eventTypes(events), types.EventTypeMessageEnd)

	var answer string
	for _, e := range events {
		if e.Type == types.EventTypeMessageContent {
			answer += e.Content
		}
	}
	assert.Equal(t, "Hello, world", answer)

	// History grew by the user message and the final answer.
	msgs := a.memory.GetAll()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleUser, msgs[0].Role)
	assert.Equal(t, "say hello", msgs[0].Content)
	assert.Equal(t, types.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello, world", msgs[1].Content)

	// First call offered the registered tools (none here) and carried
	// the system prompt first.
	first := provider.call(0)
	require.NotEmpty(t, first.messages)
	assert.Equal(t, types.RoleSystem, first.messages[0].Role)
}

func TestToolAugmentedTurn(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		toolCallScript(types.ToolCall{ID: "call_1", Name: "search_facts", Arguments: `{"query":"acme"}`}),
		textScript("Acme was founded in 1985."),
	}}
	tool := &scriptedTool{name: "search_facts", outputs: []string{`[{"uuid":"f-1","fact":"Acme founded 1985"}]`}}

	a := NewDefaultAgent(provider)
	require.NoError(t, a.RegisterTool(tool))

	events := runOneTurn(t, a, "when was acme founded?")

	types_ := eventTypes(events)
	assert.Contains(t, types_, types.EventTypeToolCall)
	assert.Contains(t, types_, types.EventTypeToolResult)
	assert.NotContains(t, types_, types.EventTypeError)

	// The tool saw the backend's arguments verbatim.
	require.Len(t, tool.argsLog, 1)
	assert.JSONEq(t, `{"query":"acme"}`, tool.argsLog[0])

	// Second request fed the tool exchange back to the model.
	require.Equal(t, 2, provider.callCount())
	second := provider.call(1)
	var sawToolResult bool
	for _, m := range second.messages {
		if m.Role == types.RoleTool && m.ToolCallID == "call_1" {
			sawToolResult = true
			assert.Contains(t, m.Content, "Acme founded 1985")
		}
	}
	assert.True(t, sawToolResult, "tool result missing from follow-up request")

	// Only the user message and final answer enter history.
	msgs := a.memory.GetAll()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Acme was founded in 1985.", msgs[1].Content)
}

func TestToolFailureRetriedOnce(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		toolCallScript(types.ToolCall{ID: "c1", Name: "search_facts", Arguments: `{"bad":`}),
		toolCallScript(types.ToolCall{ID: "c2", Name: "search_facts", Arguments: `{"query":"fixed"}`}),
		textScript("Recovered answer."),
	}}
	tool := &scriptedTool{
		name:    "search_facts",
		errs:    []error{errors.New("invalid arguments"), nil},
		outputs: []string{"", "[]"},
	}

	a := NewDefaultAgent(provider)
	require.NoError(t, a.RegisterTool(tool))

	events := runOneTurn(t, a, "q")

	assert.Contains(t, eventTypes(events), types.EventTypeToolResultError)
	assert.NotContains(t, eventTypes(events), types.EventTypeError)

	// The turn still completed and committed to history.
	assert.Equal(t, 2, a.memory.Len())

	// The retry still had tools available.
	require.Equal(t, 3, provider.callCount())
	assert.NotEmpty(t, provider.call(1).tools)
}

func TestToolFailingTwiceWithholdsTools(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		toolCallScript(types.ToolCall{ID: "c1", Name: "search_facts", Arguments: `{}`}),
		toolCallScript(types.ToolCall{ID: "c2", Name: "search_facts", Arguments: `{}`}),
		textScript("Answering without retrieval."),
	}}
	tool := &scriptedTool{
		name: "search_facts",
		errs: []error{errors.New("still broken"), errors.New("still broken")},
	}

	a := NewDefaultAgent(provider)
	require.NoError(t, a.RegisterTool(tool))

	events := runOneTurn(t, a, "q")
	assert.NotContains(t, eventTypes(events), types.EventTypeError)

	// After the second failure the final request carried no tools.
	require.Equal(t, 3, provider.callCount())
	assert.NotEmpty(t, provider.call(0).tools)
	assert.NotEmpty(t, provider.call(1).tools)
	assert.Empty(t, provider.call(2).tools)

	assert.Equal(t, 2, a.memory.Len())
}

func TestTurnLevelErrorLeavesHistoryUntouched(t *testing.T) {
	provider := &fakeProvider{startErr: errors.New("backend unreachable")}
	a := NewDefaultAgent(provider)

	events := runOneTurn(t, a, "hello?")

	assert.Contains(t, eventTypes(events), types.EventTypeError)
	assert.Zero(t, a.memory.Len())
}

func TestUnknownToolCountsAsFailure(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		toolCallScript(types.ToolCall{ID: "c1", Name: "no_such_tool", Arguments: `{}`}),
		textScript("Proceeding without it."),
	}}
	a := NewDefaultAgent(provider)

	events := runOneTurn(t, a, "q")

	assert.Contains(t, eventTypes(events), types.EventTypeToolResultError)
	assert.Equal(t, 2, a.memory.Len())
}

func TestDefaultPromptAllowsGeneralKnowledgeWithProvenance(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		textScript("answer"),
	}}
	a := NewDefaultAgent(provider)

	runOneTurn(t, a, "anything")

	first := provider.call(0)
	require.NotEmpty(t, first.messages)
	require.Equal(t, types.RoleSystem, first.messages[0].Role)
	prompt := first.messages[0].Content

	// Empty retrieval must not forbid answering: the model may fall back to
	// general knowledge as long as it says where the information came from.
	assert.Contains(t, prompt, "general knowledge")
	assert.Contains(t, prompt, "knowledge graph versus your general knowledge")
	assert.NotContains(t, prompt, "Never invent")
}

func TestHistoryAccumulatesAcrossTurns(t *testing.T) {
	provider := &fakeProvider{scripts: [][]*llm.StreamChunk{
		textScript("first answer"),
		textScript("second answer"),
	}}
	a := NewDefaultAgent(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		require.NoError(t, a.Shutdown(shutdownCtx))
	}()

	sendAndWait := func(input string) {
		a.GetChannels().Input <- types.NewUserInput(input)
		timeout := time.After(5 * time.Second)
		for {
			select {
			case e := <-a.GetChannels().Event:
				if e.Type == types.EventTypeTurnEnd {
					return
				}
			case <-timeout:
				t.Fatal("timed out waiting for turn end")
			}
		}
	}

	sendAndWait("first question")
	sendAndWait("second question")

	msgs := a.memory.GetAll()
	require.Len(t, msgs, 4)

	// The second request included the first turn's history.
	second := provider.call(1)
	var sawFirstAnswer bool
	for _, m := range second.messages {
		if m.Role == types.RoleAssistant && m.Content == "first answer" {
			sawFirstAnswer = true
		}
	}
	assert.True(t, sawFirstAnswer)
}
