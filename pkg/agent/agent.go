// Package agent provides the conversational agent that augments a chat
// model with retrieval over the temporal fact store.
//
// The DefaultAgent runs an async event loop fed by an executor:
//
//	ag := agent.NewDefaultAgent(provider)
//	ag.RegisterTool(tools.NewSearchFactsTool(store))
//	ag.Start(ctx)
//
// Subpackages:
//   - core: stream consumption and response assembly
//   - memory: durable conversation history
//   - tools: the retrieval tool and its registry helpers
package agent

import (
	"context"

	"github.com/entrhq/chronicle/pkg/types"
)

// Agent is an async event-driven conversational component. Executors send
// Input on the agent's channels and consume AgentEvents.
type Agent interface {
	// Start begins the agent's event loop in a goroutine. The agent runs
	// until the context is canceled or the shutdown channel is closed.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the agent and waits for the event loop to
	// exit, or for the context to be canceled.
	Shutdown(ctx context.Context) error

	// GetChannels returns the communication channels for this agent.
	GetChannels() *types.AgentChannels
}
