package agent

import (
	"github.com/entrhq/chronicle/pkg/types"
)

// systemPrompt grounds the model in the retrieval contract: search before
// answering, fall back to general knowledge when retrieval comes up empty,
// and always say which is which.
const systemPrompt = `You are a helpful assistant with access to a knowledge graph of facts.

When the user asks a question, use the search_facts tool to look up relevant
facts before answering. Facts carry temporal validity: valid_at is when the
fact became true and invalid_at is when it stopped being true. An empty
invalid_at means the fact is still considered valid. Prefer currently valid
facts, and when past facts are relevant, present them in their temporal
context.

If the search returns no facts, say so. You can still answer from your
general knowledge, but always be clear about what information comes from the
knowledge graph versus your general knowledge.`

// buildMessages assembles the full prompt for one backend request: the
// system prompt, the durable history, then the current turn's transcript
// (the user message plus any tool exchange so far).
func (a *DefaultAgent) buildMessages(transcript []*types.Message) []*types.Message {
	history := a.memory.GetAll()

	msgs := make([]*types.Message, 0, 1+len(history)+len(transcript))
	msgs = append(msgs, types.NewSystemMessage(a.systemPrompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, transcript...)
	return msgs
}
