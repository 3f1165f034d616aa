package graph

import (
	"fmt"
	"time"
)

// Fact is a normalized temporal assertion from the knowledge graph.
//
// UUID and Statement are always present after normalization. The validity
// interval [ValidAt, InvalidAt) and the source node are optional: an empty
// string means the store did not provide the attribute.
type Fact struct {
	// UUID is the stable unique identifier of this fact.
	UUID string `json:"uuid"`

	// Statement is the natural-language factual text.
	Statement string `json:"fact"`

	// ValidAt is when the fact became true, if known.
	ValidAt string `json:"valid_at,omitempty"`

	// InvalidAt is when the fact stopped being true, if known. Empty means
	// still valid or unknown.
	InvalidAt string `json:"invalid_at,omitempty"`

	// SourceNodeUUID identifies the originating node, if provided.
	SourceNodeUUID string `json:"source_node_uuid,omitempty"`
}

// NormalizeFact converts one raw store record into a Fact.
//
// Records missing an identifier or a statement are dropped (ok=false); the
// store may return partial or malformed entries and those must not surface
// as errors. Optional attributes are coerced to string form; their absence
// is never an error.
func NormalizeFact(raw RawFact) (Fact, bool) {
	if raw == nil {
		return Fact{}, false
	}

	uuid := coerceString(raw["uuid"])
	statement := coerceString(raw["fact"])
	if uuid == "" || statement == "" {
		return Fact{}, false
	}

	return Fact{
		UUID:           uuid,
		Statement:      statement,
		ValidAt:        coerceString(raw["valid_at"]),
		InvalidAt:      coerceString(raw["invalid_at"]),
		SourceNodeUUID: coerceString(raw["source_node_uuid"]),
	}, true
}

// NormalizeFacts normalizes a batch of raw records, preserving input order
// for the kept facts. Returns the kept facts and the number dropped.
func NormalizeFacts(raws []RawFact) ([]Fact, int) {
	facts := make([]Fact, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		fact, ok := NormalizeFact(raw)
		if !ok {
			dropped++
			continue
		}
		facts = append(facts, fact)
	}
	return facts, dropped
}

// coerceString renders an arbitrary attribute value as a string. Neo4j
// returns temporal properties as time.Time or driver-specific types that
// implement fmt.Stringer; anything else falls back to fmt.Sprint.
func coerceString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
