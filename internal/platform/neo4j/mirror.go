package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
)

const upsertTermsCypher = `
UNWIND $terms AS t
MERGE (n:Term {id: t.id})
SET n += t
`

// Relationship types cannot be parameterized, so each edge type gets its own
// statement with a fixed label.
const upsertEdgesCypher = `
UNWIND $edges AS e
MATCH (a:Term {id: e.source_id})
MATCH (b:Term {id: e.target_id})
MERGE (a)-[r:%s]->(b)
SET r.strength = e.strength, r.synced_at = e.synced_at
`

const tagTermsCypher = `
UNWIND $tags AS t
MATCH (n:Term {id: t.term_id})
MERGE (g:Tag {name: t.name})
MERGE (n)-[r:TAGGED]->(g)
SET r.confidence = t.confidence
`

// Mirror writes terms, tags and edges in a single write transaction.
type Mirror struct {
	client *Client
	logger *slog.Logger
}

// NewMirror creates a Mirror. It panics if client is nil.
func NewMirror(client *Client) *Mirror {
	if client == nil {
		panic("client cannot be nil")
	}
	return &Mirror{client: client, logger: client.logger.With(slog.String("role", "mirror"))}
}

// Sync upserts the given terms and their tags and edges. Edges whose
// endpoints are not among the mirrored terms are matched against existing
// nodes and silently skipped if either end is missing.
func (m *Mirror) Sync(ctx context.Context, terms []*domain.Term, tags map[uuid.UUID][]domain.TagScore, edges []*domain.GraphEdge) error {
	log := logger.FromContextOrDefault(ctx, m.logger)
	now := time.Now().UTC()

	session := m.client.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.database,
	})
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if nodes := termNodes(terms, now); len(nodes) > 0 {
			if err := run(ctx, tx, upsertTermsCypher, map[string]any{"terms": nodes}); err != nil {
				return nil, err
			}
		}
		if records := tagRecords(tags); len(records) > 0 {
			if err := run(ctx, tx, tagTermsCypher, map[string]any{"tags": records}); err != nil {
				return nil, err
			}
		}
		for typ, records := range edgeRecords(edges, now) {
			stmt := fmt.Sprintf(upsertEdgesCypher, relationshipLabel(typ))
			if err := run(ctx, tx, stmt, map[string]any{"edges": records}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j mirror sync: %w", err)
	}

	log.Debug("mirrored term graph",
		slog.Int("terms", len(terms)),
		slog.Int("edges", len(edges)))
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// relationshipLabel maps a relationship type to its Cypher label.
func relationshipLabel(t domain.RelationshipType) string {
	return strings.ToUpper(string(t))
}

func termNodes(terms []*domain.Term, now time.Time) []map[string]any {
	nodes := make([]map[string]any, 0, len(terms))
	for _, t := range terms {
		if t == nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"id":         t.ID.String(),
			"topic_id":   t.TopicID.String(),
			"text":       t.Text,
			"key":        t.TextKey,
			"definition": t.Definition,
			"confidence": t.Confidence,
			"source":     t.Source.Name,
			"synced_at":  now.Format(time.RFC3339Nano),
		})
	}
	return nodes
}

func tagRecords(tags map[uuid.UUID][]domain.TagScore) []map[string]any {
	var records []map[string]any
	for termID, scores := range tags {
		for _, s := range scores {
			records = append(records, map[string]any{
				"term_id":    termID.String(),
				"name":       s.Name,
				"confidence": s.Confidence,
			})
		}
	}
	return records
}

// edgeRecords groups valid edges by type.
func edgeRecords(edges []*domain.GraphEdge, now time.Time) map[domain.RelationshipType][]map[string]any {
	out := make(map[domain.RelationshipType][]map[string]any)
	for _, e := range edges {
		if e == nil || !e.Type.Valid() {
			continue
		}
		out[e.Type] = append(out[e.Type], map[string]any{
			"source_id": e.SourceTermID.String(),
			"target_id": e.TargetTermID.String(),
			"strength":  e.Strength,
			"synced_at": now.Format(time.RFC3339Nano),
		})
	}
	return out
}
