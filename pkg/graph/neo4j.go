package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/entrhq/chronicle/pkg/logging"
)

// searchQuery runs a full-text query over fact relationships. The index
// scores rows by relevance; that ordering is preserved all the way to the
// caller, nothing re-ranks.
const searchQuery = `
CALL db.index.fulltext.queryRelationships($index, $query) YIELD relationship, score
RETURN relationship.uuid        AS uuid,
       relationship.fact       AS fact,
       relationship.valid_at   AS valid_at,
       relationship.invalid_at AS invalid_at,
       startNode(relationship).uuid AS source_node_uuid
ORDER BY score DESC
LIMIT $limit`

// factIndexName is the full-text index over fact statements.
const factIndexName = "fact_text"

// indexStatements create the search index and supporting constraints.
// All statements are IF NOT EXISTS, so BuildIndices is idempotent.
var indexStatements = []string{
	`CREATE FULLTEXT INDEX fact_text IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON EACH [r.fact]`,
	`CREATE CONSTRAINT entity_uuid IF NOT EXISTS FOR (n:Entity) REQUIRE n.uuid IS UNIQUE`,
	`CREATE INDEX relation_uuid IF NOT EXISTS FOR ()-[r:RELATES_TO]-() ON (r.uuid)`,
}

// Neo4jStore implements Store against a Neo4j database holding the
// temporal knowledge graph: entity nodes connected by RELATES_TO
// relationships that carry uuid, fact, valid_at and invalid_at properties.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	limit     int
	log       *logging.Logger
	closeOnce sync.Once
	closeErr  error
}

// Neo4jOption configures a Neo4jStore.
type Neo4jOption func(*Neo4jStore)

// WithSearchLimit caps the number of records one search returns.
func WithSearchLimit(limit int) Neo4jOption {
	return func(s *Neo4jStore) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// NewNeo4jStore connects to Neo4j and verifies connectivity before
// returning. A store that cannot be reached at all is a fatal condition
// for the session, so this is the one place a connection error propagates
// unconditionally.
func NewNeo4jStore(ctx context.Context, uri, username, password string, opts ...Neo4jOption) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx) // release the half-built driver
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	log, _ := logging.NewLogger("graph")

	s := &Neo4jStore{
		driver: driver,
		limit:  10,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search runs a full-text query over fact relationships and returns the
// raw records in the store's relevance order.
func (s *Neo4jStore) Search(ctx context.Context, query string) ([]RawFact, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, searchQuery, map[string]interface{}{
			"index": factIndexName,
			"query": query,
			"limit": s.limit,
		})
		if err != nil {
			return nil, err
		}

		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		raws := make([]RawFact, 0, len(records))
		for _, record := range records {
			raws = append(raws, record.AsMap())
		}
		return raws, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fact search failed: %w", err)
	}

	return result.([]RawFact), nil
}

// BuildIndices creates the full-text index and constraints. Reports about
// already-existing indices are informational and logged, not returned.
func (s *Neo4jStore) BuildIndices(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, stmt := range indexStatements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
			res, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return nil, res.Err()
		})
		if err != nil {
			if isAlreadyExists(err) {
				s.log.Infof("index already exists, skipping: %v", err)
				continue
			}
			return fmt.Errorf("failed to build indices: %w", err)
		}
	}

	s.log.Infof("graph indices ready")
	return nil
}

// ClearData removes all nodes and relationships. The search indices survive
// a clear structurally but callers must rebuild them afterwards anyway; see
// the session lifecycle in Prepare.
func (s *Neo4jStore) ClearData(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return nil, res.Err()
	})
	if err != nil {
		return fmt.Errorf("failed to clear graph data: %w", err)
	}

	s.log.Warnf("graph data cleared")
	return nil
}

// Verify checks that the database is still reachable.
func (s *Neo4jStore) Verify(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver. Safe to call multiple times; only the first
// call closes the connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.driver.Close(ctx)
		s.log.Infof("neo4j connection closed")
	})
	return s.closeErr
}

// isAlreadyExists matches the driver errors Neo4j raises for duplicate
// index or constraint creation across server versions.
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "equivalent")
}
