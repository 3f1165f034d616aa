package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entrhq/chronicle/pkg/agent/core"
	"github.com/entrhq/chronicle/pkg/llm"
	"github.com/entrhq/chronicle/pkg/types"
)

// runTurn processes one user message to completion.
//
// The backend drives tool selection: when a response carries tool calls the
// agent executes them, feeds the results back, and requests another
// completion. A turn ends when a response arrives without tool calls; that
// response is the final answer and only then does the history grow, by the
// user message and the final assistant message. Failed or canceled turns
// leave the history untouched.
//
// A failed tool call is retried at most once, by feeding the error text
// back so the model can correct its arguments. After a second failure the
// tools are withheld for the remainder of the turn, forcing a plain
// completion from whatever context has accumulated.
func (a *DefaultAgent) runTurn(ctx context.Context, content string) {
	userMsg := types.NewUserMessage(content)
	transcript := []*types.Message{userMsg}

	toolsWithheld := false
	retried := false

	for iteration := 0; iteration <= a.maxToolIterations; iteration++ {
		var defs []llm.ToolDefinition
		if !toolsWithheld && iteration < a.maxToolIterations {
			defs = a.toolDefinitions()
		}

		result, err := a.streamCompletion(ctx, a.buildMessages(transcript), defs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				agentLog.Infof("turn canceled, discarding partial response")
				return
			}
			agentLog.Errorf("turn failed: %v", err)
			a.emitEvent(types.NewErrorEvent(err))
			return
		}

		if len(result.ToolCalls) == 0 {
			a.finishTurn(userMsg, result.Content, transcript)
			return
		}

		assistantMsg := &types.Message{
			Role:      types.RoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		}
		transcript = append(transcript, assistantMsg)

		for _, call := range result.ToolCalls {
			output, err := a.executeToolCall(ctx, call)
			if err != nil {
				a.emitEvent(types.NewToolResultErrorEvent(call.Name, err))
				if retried {
					// Second failure in this turn: stop offering tools and
					// let the model answer from what it has.
					agentLog.Warnf("tool %s failed twice, withholding tools: %v", call.Name, err)
					toolsWithheld = true
					output = fmt.Sprintf("The %s tool is unavailable. Answer from the conversation so far.", call.Name)
				} else {
					retried = true
					agentLog.Warnf("tool %s failed, allowing one retry: %v", call.Name, err)
					output = fmt.Sprintf("Tool error: %v. You may correct the arguments and try once more.", err)
				}
			} else {
				a.emitEvent(types.NewToolResultEvent(call.Name, output))
			}
			transcript = append(transcript, types.NewToolMessage(output, call.ID))
		}
	}

	// The iteration cap closes the loop with a final no-tools completion,
	// so reaching here means even that failed to produce an answer.
	err := fmt.Errorf("turn exceeded %d tool iterations without an answer", a.maxToolIterations)
	agentLog.Errorf("%v", err)
	a.emitEvent(types.NewErrorEvent(err))
}

// streamCompletion requests one completion and assembles the streamed
// response, re-emitting fragments as events.
func (a *DefaultAgent) streamCompletion(ctx context.Context, messages []*types.Message, defs []llm.ToolDefinition) (*core.StreamResult, error) {
	stream, err := a.provider.StreamCompletion(ctx, messages, defs)
	if err != nil {
		return nil, fmt.Errorf("failed to start completion: %w", err)
	}

	return core.NewAssembler().Consume(ctx, stream, a.emitEvent)
}

// executeToolCall resolves and runs one tool invocation.
func (a *DefaultAgent) executeToolCall(ctx context.Context, call types.ToolCall) (string, error) {
	tool, ok := a.getTool(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", call.Name)
	}

	a.emitEvent(types.NewToolCallEvent(call.Name, parseToolInput(call.Arguments)))
	agentLog.Infof("executing tool %s", call.Name)

	return tool.Execute(ctx, json.RawMessage(call.Arguments))
}

// finishTurn commits a successful turn: exactly the user message and the
// final assistant message enter history, never the tool transcript.
func (a *DefaultAgent) finishTurn(userMsg *types.Message, answer string, transcript []*types.Message) {
	a.memory.Add(userMsg, types.NewAssistantMessage(answer))

	if a.tokenizer != nil {
		prompt := a.tokenizer.CountMessagesTokens(a.buildMessages(transcript))
		completion := a.tokenizer.CountTokens(answer)
		a.emitEvent(types.NewTokenUsageEvent(prompt, completion, prompt+completion))
	}
}

// parseToolInput decodes raw JSON arguments for display in tool events.
// Malformed arguments are the tool's problem to report; here they just
// render as empty input.
func parseToolInput(args string) map[string]interface{} {
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		return nil
	}
	return input
}
