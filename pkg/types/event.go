package types

// AgentEventType defines the type of event emitted by the agent.
type AgentEventType string

const (
	EventTypeMessageStart    AgentEventType = "message_start"     // EventTypeMessageStart indicates the agent is starting to compose an answer.
	EventTypeMessageContent  AgentEventType = "message_content"   // EventTypeMessageContent carries an incremental fragment of the answer.
	EventTypeMessageEnd      AgentEventType = "message_end"       // EventTypeMessageEnd indicates the answer is complete.
	EventTypeToolCall        AgentEventType = "tool_call"         // EventTypeToolCall indicates the agent is invoking a tool.
	EventTypeToolResult      AgentEventType = "tool_result"       // EventTypeToolResult indicates a successful tool invocation.
	EventTypeToolResultError AgentEventType = "tool_result_error" // EventTypeToolResultError indicates a tool invocation failed.
	EventTypeTokenUsage      AgentEventType = "token_usage"       // EventTypeTokenUsage carries token counts for the completed turn.
	EventTypeUpdateBusy      AgentEventType = "update_busy"       // EventTypeUpdateBusy indicates a change in the agent's busy status.
	EventTypeTurnEnd         AgentEventType = "turn_end"          // EventTypeTurnEnd indicates the agent finished processing the current turn.
	EventTypeError           AgentEventType = "error"             // EventTypeError indicates an error occurred during agent processing.
)

// AgentEvent represents an event emitted by the agent during execution.
type AgentEvent struct {
	// Type indicates the kind of event.
	Type AgentEventType

	// Content holds text content for content-type events.
	Content string

	// ToolName is the name of the tool being called (for tool events).
	ToolName string

	// ToolInput is the parsed input being sent to the tool (for tool call events).
	ToolInput map[string]interface{}

	// ToolOutput is the result from the tool (for tool result events).
	ToolOutput interface{}

	// Error contains error information for error events.
	Error error

	// IsBusy indicates if the agent is busy (for busy status events).
	IsBusy bool

	// TokenUsage contains token usage information (for token usage events).
	TokenUsage *TokenUsage
}

// TokenUsage contains token usage statistics for one turn.
// Counts are client-side estimates, for observability only.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewMessageStartEvent creates a message start event.
func NewMessageStartEvent() *AgentEvent {
	return &AgentEvent{Type: EventTypeMessageStart}
}

// NewMessageContentEvent creates a message content event.
func NewMessageContentEvent(content string) *AgentEvent {
	return &AgentEvent{Type: EventTypeMessageContent, Content: content}
}

// NewMessageEndEvent creates a message end event.
func NewMessageEndEvent() *AgentEvent {
	return &AgentEvent{Type: EventTypeMessageEnd}
}

// NewToolCallEvent creates a tool call event.
func NewToolCallEvent(toolName string, input map[string]interface{}) *AgentEvent {
	return &AgentEvent{Type: EventTypeToolCall, ToolName: toolName, ToolInput: input}
}

// NewToolResultEvent creates a tool result event.
func NewToolResultEvent(toolName string, output interface{}) *AgentEvent {
	return &AgentEvent{Type: EventTypeToolResult, ToolName: toolName, ToolOutput: output}
}

// NewToolResultErrorEvent creates a tool result error event.
func NewToolResultErrorEvent(toolName string, err error) *AgentEvent {
	return &AgentEvent{Type: EventTypeToolResultError, ToolName: toolName, Error: err}
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(promptTokens, completionTokens, totalTokens int) *AgentEvent {
	return &AgentEvent{
		Type: EventTypeTokenUsage,
		TokenUsage: &TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      totalTokens,
		},
	}
}

// NewUpdateBusyEvent creates a busy status event.
func NewUpdateBusyEvent(busy bool) *AgentEvent {
	return &AgentEvent{Type: EventTypeUpdateBusy, IsBusy: busy}
}

// NewTurnEndEvent creates a turn end event.
func NewTurnEndEvent() *AgentEvent {
	return &AgentEvent{Type: EventTypeTurnEnd}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *AgentEvent {
	return &AgentEvent{Type: EventTypeError, Error: err}
}
