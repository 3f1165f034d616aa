// Package graph provides access to the temporal fact store.
//
// The store holds time-stamped factual assertions queryable by free text.
// Everything above this package treats it as an opaque collaborator: raw
// query results have no trusted shape and are validated by the normalizer
// before anyone else sees them.
package graph

import "context"

// RawFact is one record from a store query, exactly as returned by the
// database. Keys and value types are not guaranteed; use NormalizeFact.
type RawFact = map[string]interface{}

// Store is the fact-store collaborator interface.
type Store interface {
	// Search runs a free-text query and returns raw fact records in the
	// store's relevance order. May fail or return an empty slice; callers
	// own failure handling.
	Search(ctx context.Context, query string) ([]RawFact, error)

	// BuildIndices creates the search indices and constraints. Idempotent;
	// an "already exists" report is informational, not an error.
	BuildIndices(ctx context.Context) error

	// ClearData removes all graph data. Destructive; used only for explicit
	// clean-start configuration. Indices must be rebuilt afterwards.
	ClearData(ctx context.Context) error

	// Close releases the connection. Must be called exactly once per session.
	Close(ctx context.Context) error
}
