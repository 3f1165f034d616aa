package types

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // RoleSystem is instruction context for the model.
	RoleUser      MessageRole = "user"      // RoleUser is input from the human operator.
	RoleAssistant MessageRole = "assistant" // RoleAssistant is model output.
	RoleTool      MessageRole = "tool"      // RoleTool carries a tool invocation result back to the model.
)

// ToolCall is a single tool invocation requested by the model.
// Arguments is the raw JSON string exactly as the backend produced it;
// validation happens at the tool boundary, not here.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message represents a single entry in a conversation.
// Once constructed a message is never mutated; conversation history only
// grows by appending new messages.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message back to the call it answers.
	ToolCallID string
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// NewToolMessage creates a tool-result message answering the given call.
func NewToolMessage(content, toolCallID string) *Message {
	return &Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
