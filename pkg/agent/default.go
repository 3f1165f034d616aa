package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/chronicle/pkg/agent/memory"
	"github.com/entrhq/chronicle/pkg/agent/tools"
	"github.com/entrhq/chronicle/pkg/llm"
	"github.com/entrhq/chronicle/pkg/llm/tokenizer"
	"github.com/entrhq/chronicle/pkg/logging"
	"github.com/entrhq/chronicle/pkg/types"
)

var agentLog *logging.Logger

func init() {
	var err error
	agentLog, err = logging.NewLogger("agent")
	if err != nil {
		agentLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// DefaultAgent is the standard Agent implementation. It processes user
// input through an LLM provider, letting the backend decide when to invoke
// the registered tools, and maintains the durable conversation history.
type DefaultAgent struct {
	provider     llm.Provider
	channels     *types.AgentChannels
	systemPrompt string
	bufferSize   int

	tools   map[string]tools.Tool
	toolsMu sync.RWMutex
	memory  *memory.ConversationMemory

	// maxToolIterations bounds the tool exchange within one turn so a
	// looping model cannot stall the session forever.
	maxToolIterations int

	cancelMu   sync.Mutex
	cancelTurn context.CancelFunc

	// turns tracks in-flight turn goroutines so the loop can drain them
	// before closing the event channel.
	turns sync.WaitGroup

	running bool
	runMu   sync.Mutex

	tokenizer *tokenizer.Tokenizer
}

// AgentOption configures a DefaultAgent.
type AgentOption func(*DefaultAgent)

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *DefaultAgent) {
		a.systemPrompt = prompt
	}
}

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) AgentOption {
	return func(a *DefaultAgent) {
		if size > 0 {
			a.bufferSize = size
		}
	}
}

// WithMaxToolIterations caps tool round-trips per turn.
func WithMaxToolIterations(n int) AgentOption {
	return func(a *DefaultAgent) {
		if n > 0 {
			a.maxToolIterations = n
		}
	}
}

// NewDefaultAgent creates a DefaultAgent with the given provider.
func NewDefaultAgent(provider llm.Provider, opts ...AgentOption) *DefaultAgent {
	tok, err := tokenizer.New()
	if err != nil {
		// Token counting is diagnostic only; run without it.
		tok = nil
	}

	a := &DefaultAgent{
		provider:          provider,
		systemPrompt:      systemPrompt,
		bufferSize:        10,
		tools:             make(map[string]tools.Tool),
		memory:            memory.NewConversationMemory(),
		maxToolIterations: 5,
		tokenizer:         tok,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.channels = types.NewAgentChannels(a.bufferSize)
	return a
}

// RegisterTool adds a tool to the agent's registry.
func (a *DefaultAgent) RegisterTool(tool tools.Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	if tool.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	a.toolsMu.Lock()
	defer a.toolsMu.Unlock()
	a.tools[tool.Name()] = tool
	return nil
}

// Start begins the agent's event loop in a goroutine.
func (a *DefaultAgent) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return fmt.Errorf("agent is already running")
	}
	a.running = true
	a.runMu.Unlock()

	go a.eventLoop(ctx)
	return nil
}

// Shutdown gracefully stops the agent.
func (a *DefaultAgent) Shutdown(ctx context.Context) error {
	close(a.channels.Shutdown)

	select {
	case <-a.channels.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetChannels returns the communication channels for this agent.
func (a *DefaultAgent) GetChannels() *types.AgentChannels {
	return a.channels
}

// GetProvider returns the LLM provider used by this agent.
func (a *DefaultAgent) GetProvider() llm.Provider {
	return a.provider
}

// eventLoop is the main processing loop for the agent.
func (a *DefaultAgent) eventLoop(ctx context.Context) {
	defer a.channels.Close()
	defer a.turns.Wait()
	defer func() {
		a.runMu.Lock()
		a.running = false
		a.runMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			a.emitEvent(types.NewErrorEvent(ctx.Err()))
			return

		case <-a.channels.Shutdown:
			return

		case input := <-a.channels.Input:
			if input == nil {
				// Channel closed
				return
			}

			// Cancellations run synchronously so they can interrupt an
			// in-flight turn; everything else processes in a goroutine to
			// keep the loop responsive to cancels.
			if input.IsCancel() {
				a.processInput(ctx, input)
				continue
			}
			a.turns.Add(1)
			go func() {
				defer a.turns.Done()
				a.processInput(ctx, input)
			}()
		}
	}
}

// processInput handles a single input from the user.
func (a *DefaultAgent) processInput(ctx context.Context, input *types.Input) {
	if input.IsCancel() {
		a.cancelMu.Lock()
		if a.cancelTurn != nil {
			a.cancelTurn()
			a.cancelTurn = nil
		}
		a.cancelMu.Unlock()
		return
	}

	if input.IsUserInput() {
		a.processUserInput(ctx, input.Content)
	}
}

// processUserInput runs one conversation turn for a user message.
func (a *DefaultAgent) processUserInput(ctx context.Context, content string) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.cancelMu.Lock()
	a.cancelTurn = cancel
	a.cancelMu.Unlock()
	defer func() {
		a.cancelMu.Lock()
		a.cancelTurn = nil
		a.cancelMu.Unlock()
	}()

	a.emitEvent(types.NewUpdateBusyEvent(true))

	a.runTurn(turnCtx, content)

	// Turn end is always the last event of a turn; executors key on it.
	a.emitEvent(types.NewUpdateBusyEvent(false))
	a.emitEvent(types.NewTurnEndEvent())
}

// emitEvent sends an event to the executor without blocking the loop
// forever if the consumer is gone.
func (a *DefaultAgent) emitEvent(event *types.AgentEvent) {
	select {
	case a.channels.Event <- event:
	case <-a.channels.Shutdown:
	}
}

// getTool looks up a registered tool by name.
func (a *DefaultAgent) getTool(name string) (tools.Tool, bool) {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	t, ok := a.tools[name]
	return t, ok
}

// toolDefinitions snapshots the registry in wire form.
func (a *DefaultAgent) toolDefinitions() []llm.ToolDefinition {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()

	list := make([]tools.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		list = append(list, t)
	}
	return tools.Definitions(list)
}
