// Package cli provides the terminal executor for conversation sessions.
//
// Example usage:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/entrhq/chronicle/pkg/agent"
//	    "github.com/entrhq/chronicle/pkg/executor/cli"
//	    "github.com/entrhq/chronicle/pkg/llm/openai"
//	)
//
//	func main() {
//	    provider, _ := openai.NewProvider(
//	        os.Getenv("OPENAI_API_KEY"),
//	        openai.WithModel("llama-3.2-1b-instruct"),
//	    )
//
//	    ag := agent.NewDefaultAgent(provider)
//
//	    executor := cli.NewExecutor(ag)
//	    if err := executor.Run(context.Background()); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/chronicle/pkg/agent"
	"github.com/entrhq/chronicle/pkg/types"
)

// exitTokens end the session when entered on their own, case-insensitively.
var exitTokens = map[string]bool{
	"exit":    true,
	"quit":    true,
	"bye":     true,
	"goodbye": true,
}

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// Executor drives a turn-by-turn conversation with an agent through
// terminal input and output.
type Executor struct {
	agent  agent.Agent
	reader *bufio.Reader
	writer io.Writer

	// renderMarkdown buffers each answer and renders it as markdown when
	// complete instead of streaming raw fragments.
	renderMarkdown bool
	renderer       *glamour.TermRenderer

	showTokenUsage bool

	// Per-message render state
	messageStartPrinted bool
	messageBuf          strings.Builder
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithReader sets a custom input reader (default is os.Stdin).
func WithReader(r io.Reader) ExecutorOption {
	return func(e *Executor) {
		e.reader = bufio.NewReader(r)
	}
}

// WithWriter sets a custom output writer (default is os.Stdout).
func WithWriter(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.writer = w
	}
}

// WithMarkdownRendering renders complete answers as markdown instead of
// streaming raw text fragments.
func WithMarkdownRendering(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.renderMarkdown = enabled
	}
}

// WithTokenUsage prints per-turn token estimates after each answer.
func WithTokenUsage(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.showTokenUsage = enabled
	}
}

// NewExecutor creates a CLI executor for the given agent.
func NewExecutor(agent agent.Agent, opts ...ExecutorOption) *Executor {
	e := &Executor{
		agent:  agent,
		reader: bufio.NewReader(os.Stdin),
		writer: os.Stdout,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.renderMarkdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			// Fall back to raw streaming if the renderer cannot be built.
			e.renderMarkdown = false
		} else {
			e.renderer = renderer
		}
	}

	return e
}

// readResult is one line from the input goroutine.
type readResult struct {
	line string
	err  error
}

// Run starts the agent and the conversation loop. Returns when the user
// exits, the context is canceled, or an error occurs.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.agent.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	channels := e.agent.GetChannels()

	eventsDone := make(chan struct{})
	turnEnd := make(chan struct{}, 1)
	go e.handleEvents(channels.Event, eventsDone, turnEnd)

	// Reading happens in its own goroutine so an interrupt at the prompt
	// takes effect immediately instead of after the next newline.
	lines := make(chan readResult)
	go func() {
		for {
			line, err := e.reader.ReadString('\n')
			select {
			case lines <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	fmt.Fprintln(e.writer, faintStyle.Render("Type a message and press Enter. Type 'exit', 'quit', 'bye' or 'goodbye' to end the session."))
	fmt.Fprintln(e.writer)

	for {
		fmt.Fprint(e.writer, promptStyle.Render("You: "))

		var res readResult
		select {
		case <-ctx.Done():
			e.shutdown()
			<-eventsDone
			return ctx.Err()
		case res = <-lines:
		}

		if res.err != nil {
			if res.err == io.EOF {
				e.shutdown()
				<-eventsDone
				return nil
			}
			return fmt.Errorf("failed to read input: %w", res.err)
		}

		input := strings.TrimSpace(res.line)

		if exitTokens[strings.ToLower(input)] {
			fmt.Fprintln(e.writer, faintStyle.Render("Goodbye."))
			e.shutdown()
			<-eventsDone
			return nil
		}

		if input == "" {
			continue
		}

		channels.Input <- types.NewUserInput(input)

		select {
		case <-turnEnd:
		case <-ctx.Done():
			// Interrupted mid-turn: cancel the in-flight turn so its
			// partial answer is discarded, then stop.
			channels.Input <- types.NewCancelInput()
			e.shutdown()
			<-eventsDone
			return ctx.Err()
		}
	}
}

// handleEvents renders agent events until the event channel closes.
func (e *Executor) handleEvents(events <-chan *types.AgentEvent, done chan struct{}, turnEnd chan struct{}) {
	defer close(done)

	for event := range events {
		e.handleEvent(event, turnEnd)
	}

	// Unblock Run if the channel closed mid-turn.
	select {
	case turnEnd <- struct{}{}:
	default:
	}
}

func (e *Executor) handleEvent(event *types.AgentEvent, turnEnd chan struct{}) {
	switch event.Type {
	case types.EventTypeMessageStart:
		e.handleMessageStart()
	case types.EventTypeMessageContent:
		e.handleMessageContent(event.Content)
	case types.EventTypeMessageEnd:
		e.handleMessageEnd()
	case types.EventTypeToolCall:
		e.handleToolCall(event.ToolName, event.ToolInput)
	case types.EventTypeToolResult:
		// Tool output feeds the model, not the terminal.
	case types.EventTypeToolResultError:
		e.handleToolResultError(event.ToolName, event.Error)
	case types.EventTypeTokenUsage:
		e.handleTokenUsage(event.TokenUsage)
	case types.EventTypeError:
		e.handleError(event.Error)
	case types.EventTypeUpdateBusy:
		// Could show a spinner here in the future
	case types.EventTypeTurnEnd:
		select {
		case turnEnd <- struct{}{}:
		default:
		}
	}
}

func (e *Executor) handleMessageStart() {
	e.messageStartPrinted = false
	e.messageBuf.Reset()
}

func (e *Executor) handleMessageContent(content string) {
	if e.renderMarkdown {
		e.messageBuf.WriteString(content)
		return
	}

	if content != "" && !e.messageStartPrinted {
		fmt.Fprintln(e.writer, assistantStyle.Render("Assistant:"))
		e.messageStartPrinted = true
	}
	fmt.Fprint(e.writer, content)
}

func (e *Executor) handleMessageEnd() {
	if e.renderMarkdown {
		fmt.Fprintln(e.writer, assistantStyle.Render("Assistant:"))
		rendered, err := e.renderer.Render(e.messageBuf.String())
		if err != nil {
			fmt.Fprintln(e.writer, e.messageBuf.String())
		} else {
			fmt.Fprint(e.writer, rendered)
		}
		e.messageBuf.Reset()
		return
	}

	fmt.Fprintln(e.writer)
}

func (e *Executor) handleToolCall(toolName string, input map[string]interface{}) {
	if query, ok := input["query"].(string); ok && query != "" {
		fmt.Fprintln(e.writer, toolStyle.Render(fmt.Sprintf("[%s: %q]", toolName, query)))
		return
	}
	fmt.Fprintln(e.writer, toolStyle.Render(fmt.Sprintf("[%s]", toolName)))
}

func (e *Executor) handleToolResultError(toolName string, err error) {
	fmt.Fprintln(e.writer, toolStyle.Render(fmt.Sprintf("[%s failed: %v]", toolName, err)))
}

func (e *Executor) handleTokenUsage(usage *types.TokenUsage) {
	if !e.showTokenUsage || usage == nil {
		return
	}
	fmt.Fprintln(e.writer, faintStyle.Render(fmt.Sprintf(
		"tokens: %d prompt + %d completion = %d", usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)))
}

func (e *Executor) handleError(err error) {
	fmt.Fprintln(e.writer, errorStyle.Render(fmt.Sprintf("Error: %v", err)))

	if isConnectionError(err) {
		fmt.Fprintln(e.writer, faintStyle.Render("The model backend looks unreachable. Check that:"))
		fmt.Fprintln(e.writer, faintStyle.Render("  - the inference server (e.g. LM Studio) is running"))
		fmt.Fprintln(e.writer, faintStyle.Render("  - OPENAI_BASE_URL points at it (default http://localhost:1234/v1)"))
		fmt.Fprintln(e.writer, faintStyle.Render("  - a model is loaded and serving completions"))
	}
}

// isConnectionError reports whether a turn failure looks like the model
// backend being unreachable rather than a bad response.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"timeout",
		"failed to send request",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// shutdown gracefully shuts down the agent. Uses its own deadline so a
// canceled session context still gets a clean drain.
func (e *Executor) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.agent.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(e.writer, "Warning: shutdown error: %v\n", err)
	}
}
