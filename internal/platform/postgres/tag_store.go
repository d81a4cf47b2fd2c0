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

const tagColumns = `id, name, description, confidence_count, confidence_mean, confidence_min,
	confidence_max, created_at, updated_at`

// PostgresTagStore implements store.TagStore.
type PostgresTagStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.TagStore = (*PostgresTagStore)(nil)

// NewPostgresTagStore creates a tag store. If logger is nil, a default logger will be used.
func NewPostgresTagStore(db store.DBTX, logger *slog.Logger) *PostgresTagStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTagStore{
		db:     db,
		logger: logger.With(slog.String("component", "tag_store")),
	}
}

// WithTx implements store.TagStore.
func (s *PostgresTagStore) WithTx(tx *sql.Tx) store.TagStore {
	return &PostgresTagStore{db: tx, logger: s.logger}
}

func scanTag(row interface{ Scan(...any) error }) (*domain.Tag, error) {
	var t domain.Tag
	if err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.ConfidenceCount, &t.ConfidenceMean, &t.ConfidenceMin,
		&t.ConfidenceMax, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// Ensure implements store.TagStore.
func (s *PostgresTagStore) Ensure(ctx context.Context, name, description string) (*domain.Tag, error) {
	tag, err := domain.NewTag(name, description)
	if err != nil {
		return nil, err
	}

	// DO UPDATE with a no-op assignment so RETURNING yields the existing row.
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING `+tagColumns,
		tag.ID, tag.Name, tag.Description, tag.CreatedAt,
	)
	ensured, err := scanTag(row)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to ensure tag",
			slog.String("error", err.Error()),
			slog.String("tag", tag.Name))
		return nil, MapError(err)
	}
	return ensured, nil
}

// Attach implements store.TagStore.
func (s *PostgresTagStore) Attach(ctx context.Context, termID, tagID uuid.UUID, confidence float64) (bool, error) {
	// xmax is zero only for a freshly inserted row.
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO term_tags (term_id, tag_id, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (term_id, tag_id) DO UPDATE
		SET confidence = EXCLUDED.confidence, updated_at = NOW()
		RETURNING (xmax = 0)`,
		termID, tagID, domain.Clamp01(confidence),
	).Scan(&inserted)
	if err != nil {
		return false, MapError(err)
	}
	return inserted, nil
}

// Observe implements store.TagStore.
func (s *PostgresTagStore) Observe(ctx context.Context, tagID uuid.UUID, confidence float64) error {
	c := domain.Clamp01(confidence)
	result, err := s.db.ExecContext(ctx, `
		UPDATE tags SET
			confidence_min = CASE WHEN confidence_count = 0 THEN $2 ELSE LEAST(confidence_min, $2) END,
			confidence_max = CASE WHEN confidence_count = 0 THEN $2 ELSE GREATEST(confidence_max, $2) END,
			confidence_mean = confidence_mean + ($2 - confidence_mean) / (confidence_count + 1),
			confidence_count = confidence_count + 1,
			updated_at = NOW()
		WHERE id = $1`, tagID, c)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTagNotFound)
}

// ListForTerm implements store.TagStore.
func (s *PostgresTagStore) ListForTerm(ctx context.Context, termID uuid.UUID) ([]domain.TermTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tt.term_id, tt.tag_id, t.name, tt.confidence
		FROM term_tags tt JOIN tags t ON t.id = tt.tag_id
		WHERE tt.term_id = $1
		ORDER BY tt.confidence DESC, t.name ASC`, termID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tags := make([]domain.TermTag, 0)
	for rows.Next() {
		var tt domain.TermTag
		if err := rows.Scan(&tt.TermID, &tt.TagID, &tt.TagName, &tt.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan term tag row: %w", err)
		}
		tags = append(tags, tt)
	}
	return tags, rows.Err()
}

// List implements store.TagStore.
func (s *PostgresTagStore) List(ctx context.Context, limit, offset int) ([]*domain.Tag, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tags := make([]*domain.Tag, 0)
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tags, total, nil
}
