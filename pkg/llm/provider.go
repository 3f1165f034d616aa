// Package llm provides abstractions for generation-backend integration.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("llama-3.2-1b-instruct"),
//	    openai.WithBaseURL("http://localhost:1234/v1"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, err := provider.StreamCompletion(ctx, messages, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range stream {
//	    if chunk.IsError() {
//	        log.Fatal(chunk.Error)
//	    }
//	    fmt.Print(chunk.Content)
//	}
package llm

import (
	"context"

	"github.com/entrhq/chronicle/pkg/types"
)

// ToolDefinition describes a callable capability registered with the
// backend. The backend itself decides, per request, whether to invoke it;
// the definition is forwarded faithfully and never interpreted locally.
type ToolDefinition struct {
	// Name is the unique identifier the model uses to invoke the tool.
	Name string

	// Description tells the model what the tool does and when to use it.
	Description string

	// Parameters is a JSON Schema object describing the tool's arguments.
	Parameters map[string]interface{}
}

// StreamChunk is one increment of a streamed completion.
//
// Content chunks arrive in delivery order and are concatenated by the
// consumer. A chunk with ToolCalls set carries the backend's fully
// accumulated tool invocations and is emitted once, when the backend
// finishes the response with a tool-call stop reason.
type StreamChunk struct {
	// Role is set on the first chunk of a response (e.g. "assistant").
	Role string

	// Content is an incremental text fragment.
	Content string

	// ToolCalls holds completed tool invocations requested by the model.
	ToolCalls []types.ToolCall

	// Finished is true on the final chunk of a response.
	Finished bool

	// Error is set when streaming failed after it was initiated.
	Error error
}

// IsError returns true if this chunk carries a stream-time error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// Provider defines the interface for generation backends.
//
// Providers handle API communication and return StreamChunk instances; they
// know nothing about agent events, tool execution, or conversation history.
// That layering keeps providers reusable and testable on their own.
type Provider interface {
	// StreamCompletion sends messages to the backend and streams back
	// response chunks. When tools are supplied they are registered with the
	// request so the backend's own tool-selection capability can invoke
	// them; pass nil to request a plain completion.
	//
	// The returned channel emits StreamChunk instances and is closed when
	// streaming completes or fails. Callers should read until it is closed.
	//
	// Returns an error only if streaming cannot be initiated (unreachable
	// backend, invalid configuration). Stream-time errors are delivered as
	// chunks with Error set.
	StreamCompletion(ctx context.Context, messages []*types.Message, tools []ToolDefinition) (<-chan *StreamChunk, error)

	// Complete sends messages to the backend and returns the full response.
	// A convenience wrapper around StreamCompletion for non-streaming use.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModel returns the model name being used.
	GetModel() string

	// GetBaseURL returns the base URL being used for API requests.
	GetBaseURL() string
}
