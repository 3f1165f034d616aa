package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/chronicle/pkg/graph"
	"github.com/entrhq/chronicle/pkg/logging"
)

const searchFactsName = "search_facts"

const searchFactsDescription = `Search the knowledge graph for facts relevant to a query.
Returns a list of facts with their temporal validity information:
uuid, fact (the statement itself), valid_at and invalid_at where known.
Use this whenever the user asks about stored knowledge.`

// emptyResult is what the model sees when retrieval produced nothing,
// whatever the reason. A structured error here would invite the model to
// keep retrying the same failing call.
const emptyResult = "[]"

// SearchFactsTool retrieves temporal facts from the knowledge graph.
//
// Store failures are absorbed: the tool logs them and returns an empty
// result instead of an error, so a degraded store degrades answers rather
// than aborting turns. Only malformed arguments are reported as errors,
// since those are correctable by the model.
type SearchFactsTool struct {
	store graph.Store
	log   *logging.Logger
}

// NewSearchFactsTool wires the retrieval tool to a fact store.
func NewSearchFactsTool(store graph.Store) *SearchFactsTool {
	log, _ := logging.NewLogger("tools")
	return &SearchFactsTool{store: store, log: log}
}

func (t *SearchFactsTool) Name() string {
	return searchFactsName
}

func (t *SearchFactsTool) Description() string {
	return searchFactsDescription
}

func (t *SearchFactsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Natural-language query to search facts for",
			},
		},
		"required": []string{"query"},
	}
}

// searchArgs is the parsed argument payload for a search call.
type searchArgs struct {
	Query string `json:"query"`
}

// Execute searches the store and returns the normalized facts as a JSON
// array. Any retrieval failure yields "[]".
func (t *SearchFactsTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var parsed searchArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("invalid search arguments: %w", err)
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return "", fmt.Errorf("search requires a non-empty query")
	}

	t.log.Infof("searching facts: %q", parsed.Query)

	raws, err := t.store.Search(ctx, parsed.Query)
	if err != nil {
		t.log.Errorf("fact search failed, returning empty result: %v", err)
		return emptyResult, nil
	}

	facts, dropped := graph.NormalizeFacts(raws)
	if dropped > 0 {
		t.log.Warnf("dropped %d malformed fact records", dropped)
	}
	if len(facts) == 0 {
		t.log.Infof("no facts found for %q", parsed.Query)
		return emptyResult, nil
	}

	out, err := json.Marshal(facts)
	if err != nil {
		t.log.Errorf("failed to encode facts, returning empty result: %v", err)
		return emptyResult, nil
	}

	t.log.Infof("found %d facts for %q", len(facts), parsed.Query)
	return string(out), nil
}
