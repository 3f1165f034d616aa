// Package core contains the streaming machinery shared by agent
// implementations: consuming provider streams, accumulating partial
// responses, and translating them into agent events.
package core

import (
	"context"
	"strings"

	"github.com/entrhq/chronicle/pkg/llm"
	"github.com/entrhq/chronicle/pkg/types"
)

// StreamResult is the accumulated outcome of one provider response.
type StreamResult struct {
	// Content is the full concatenated text of the response.
	Content string

	// ToolCalls holds the tool invocations the model requested, if any.
	ToolCalls []types.ToolCall
}

// EmitFunc delivers an agent event to the session's consumer.
type EmitFunc func(*types.AgentEvent)

// Assembler consumes a provider stream and builds the complete response
// while surfacing fragments live.
//
// Fragments are appended to an internal buffer in delivery order and
// re-emitted as message content events as they arrive. On cancellation the
// partial buffer is discarded and never enters conversation history; the
// consumer may have already rendered some fragments, which is fine, they
// were accurate at the time.
type Assembler struct {
	buf strings.Builder
}

// NewAssembler returns an empty assembler. An Assembler is single-use;
// create a fresh one per provider response.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Current returns the text accumulated so far. Valid to call mid-stream.
func (a *Assembler) Current() string {
	return a.buf.String()
}

// Consume drains the stream, emitting message start/content/end events
// around the text fragments, and returns the assembled result.
//
// Returns ctx.Err() if the context is cancelled mid-stream, or the
// stream's own error if the provider reported one. In both cases the
// partial result is discarded.
func (a *Assembler) Consume(ctx context.Context, stream <-chan *llm.StreamChunk, emit EmitFunc) (*StreamResult, error) {
	var toolCalls []types.ToolCall
	started := false

	for {
		select {
		case <-ctx.Done():
			if started {
				emit(types.NewMessageEndEvent())
			}
			return nil, ctx.Err()

		case chunk, ok := <-stream:
			if !ok {
				if started {
					emit(types.NewMessageEndEvent())
				}
				return &StreamResult{Content: a.buf.String(), ToolCalls: toolCalls}, nil
			}

			if chunk.IsError() {
				if started {
					emit(types.NewMessageEndEvent())
				}
				return nil, chunk.Error
			}

			if chunk.Content != "" {
				if !started {
					started = true
					emit(types.NewMessageStartEvent())
				}
				a.buf.WriteString(chunk.Content)
				emit(types.NewMessageContentEvent(chunk.Content))
			}

			if len(chunk.ToolCalls) > 0 {
				toolCalls = append(toolCalls, chunk.ToolCalls...)
			}
		}
	}
}
