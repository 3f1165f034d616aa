package types

// InputType defines the type of input being sent to the agent.
type InputType string

const (
	InputTypeUserInput InputType = "user_input" // InputTypeUserInput indicates a text input from the user.
	InputTypeCancel    InputType = "cancel"     // InputTypeCancel indicates a cancellation request.
)

// Input represents input sent to an agent.
type Input struct {
	// Type indicates the kind of input.
	Type InputType

	// Content is the text content for user input.
	Content string
}

// NewUserInput creates a new user text input.
func NewUserInput(content string) *Input {
	return &Input{Type: InputTypeUserInput, Content: content}
}

// NewCancelInput creates a new cancellation input.
func NewCancelInput() *Input {
	return &Input{Type: InputTypeCancel}
}

// IsUserInput returns true if this is a user text input.
func (i *Input) IsUserInput() bool {
	return i.Type == InputTypeUserInput
}

// IsCancel returns true if this is a cancellation input.
func (i *Input) IsCancel() bool {
	return i.Type == InputTypeCancel
}

// AgentChannels bundles the communication channels between an agent and
// its executor. The executor sends Input, receives AgentEvents, and closes
// Shutdown to request a graceful stop. Done is closed by the agent when its
// event loop has fully exited.
type AgentChannels struct {
	Input    chan *Input
	Event    chan *AgentEvent
	Shutdown chan struct{}
	Done     chan struct{}
}

// NewAgentChannels creates the channel set with the given buffer size for
// the input and event channels.
func NewAgentChannels(bufferSize int) *AgentChannels {
	return &AgentChannels{
		Input:    make(chan *Input, bufferSize),
		Event:    make(chan *AgentEvent, bufferSize),
		Shutdown: make(chan struct{}),
		Done:     make(chan struct{}),
	}
}

// Close releases the outbound channels. Called by the agent once its event
// loop has stopped; consumers see the Event channel close and then Done.
func (c *AgentChannels) Close() {
	close(c.Event)
	close(c.Done)
}
