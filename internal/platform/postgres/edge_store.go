package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

// PostgresEdgeStore implements store.EdgeStore.
type PostgresEdgeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.EdgeStore = (*PostgresEdgeStore)(nil)

// NewPostgresEdgeStore creates an edge store. If logger is nil, a default logger will be used.
func NewPostgresEdgeStore(db store.DBTX, logger *slog.Logger) *PostgresEdgeStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresEdgeStore{
		db:     db,
		logger: logger.With(slog.String("component", "edge_store")),
	}
}

// WithTx implements store.EdgeStore.
func (s *PostgresEdgeStore) WithTx(tx *sql.Tx) store.EdgeStore {
	return &PostgresEdgeStore{db: tx, logger: s.logger}
}

// Upsert implements store.EdgeStore.
func (s *PostgresEdgeStore) Upsert(ctx context.Context, edge *domain.GraphEdge) error {
	if err := edge.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_edges (id, source_term_id, target_term_id, type, strength, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (source_term_id, target_term_id, type) DO UPDATE
		SET strength = EXCLUDED.strength, updated_at = EXCLUDED.updated_at`,
		edge.ID, edge.SourceTermID, edge.TargetTermID, string(edge.Type), edge.Strength, edge.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to upsert graph edge",
			slog.String("error", err.Error()),
			slog.String("source_term_id", edge.SourceTermID.String()),
			slog.String("target_term_id", edge.TargetTermID.String()),
			slog.String("type", string(edge.Type)))
		return MapError(err)
	}
	return nil
}

// ListRelated implements store.EdgeStore.
func (s *PostgresEdgeStore) ListRelated(ctx context.Context, termID uuid.UUID, limit int) ([]domain.RelatedTerm, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.target_term_id, t.text, e.type, e.strength
		FROM graph_edges e JOIN terms t ON t.id = e.target_term_id
		WHERE e.source_term_id = $1 AND t.status = 'approved'
		ORDER BY e.strength DESC, t.text_key ASC
		LIMIT $2`, termID, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	related := make([]domain.RelatedTerm, 0)
	for rows.Next() {
		var r domain.RelatedTerm
		var typ string
		if err := rows.Scan(&r.TermID, &r.Term, &typ, &r.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan related term row: %w", err)
		}
		r.Type = domain.RelationshipType(typ)
		related = append(related, r)
	}
	return related, rows.Err()
}

// Stats implements store.EdgeStore.
func (s *PostgresEdgeStore) Stats(ctx context.Context) (*domain.GraphStats, error) {
	stats := &domain.GraphStats{EdgesByType: make(map[domain.RelationshipType]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM terms WHERE status = 'approved'),
			(SELECT COUNT(*) FROM graph_edges),
			(SELECT COUNT(*) FROM tags),
			(SELECT COALESCE(AVG(strength), 0) FROM graph_edges)`,
	).Scan(&stats.Terms, &stats.Edges, &stats.Tags, &stats.AvgStrength)
	if err != nil {
		return nil, MapError(err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM graph_edges GROUP BY type`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan edge count row: %w", err)
		}
		stats.EdgesByType[domain.RelationshipType(typ)] = n
	}
	return stats, rows.Err()
}
