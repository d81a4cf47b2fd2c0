package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

const reviewColumns = `r.id, r.topic_id, r.candidate, r.confidence, r.freshness_score, r.reason,
	r.status, r.reviewer_id, r.notes, r.decided_at, r.term_id, r.created_at, r.updated_at`

// PostgresReviewStore implements store.ReviewStore.
type PostgresReviewStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ReviewStore = (*PostgresReviewStore)(nil)

// NewPostgresReviewStore creates a review store. If logger is nil, a default logger will be used.
func NewPostgresReviewStore(db store.DBTX, logger *slog.Logger) *PostgresReviewStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReviewStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_store")),
	}
}

// WithTx implements store.ReviewStore.
func (s *PostgresReviewStore) WithTx(tx *sql.Tx) store.ReviewStore {
	return &PostgresReviewStore{db: tx, logger: s.logger}
}

func scanReviewItem(row interface{ Scan(...any) error }) (*domain.ReviewItem, error) {
	var r domain.ReviewItem
	var candidate []byte
	var status string
	var reviewerID, termID uuid.NullUUID
	var decidedAt sql.NullTime
	if err := row.Scan(
		&r.ID, &r.TopicID, &candidate, &r.Confidence, &r.FreshnessScore, &r.Reason,
		&status, &reviewerID, &r.Notes, &decidedAt, &termID, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candidate, &r.Candidate); err != nil {
		return nil, fmt.Errorf("%w: review candidate: %v", domain.ErrInvalidFormat, err)
	}
	r.Status = domain.ReviewStatus(status)
	if reviewerID.Valid {
		r.ReviewerID = &reviewerID.UUID
	}
	if termID.Valid {
		r.TermID = &termID.UUID
	}
	if decidedAt.Valid {
		t := decidedAt.Time.UTC()
		r.DecidedAt = &t
	}
	return &r, nil
}

// Create implements store.ReviewStore.
func (s *PostgresReviewStore) Create(ctx context.Context, item *domain.ReviewItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		log.Warn("review item validation failed during create",
			slog.String("error", err.Error()),
			slog.String("review_item_id", item.ID.String()))
		return err
	}

	candidate, err := json.Marshal(item.Candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal review candidate: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_items (id, topic_id, candidate, confidence, freshness_score, reason,
			status, reviewer_id, notes, decided_at, term_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.TopicID, candidate, item.Confidence, item.FreshnessScore, item.Reason,
		string(item.Status), nullUUID(item.ReviewerID), item.Notes, item.DecidedAt, nullUUID(item.TermID),
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create review item",
			slog.String("error", err.Error()),
			slog.String("review_item_id", item.ID.String()))
		return MapError(err)
	}

	log.Debug("review item created",
		slog.String("review_item_id", item.ID.String()),
		slog.String("reason", item.Reason))
	return nil
}

// GetByID implements store.ReviewStore.
func (s *PostgresReviewStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ReviewItem, error) {
	item, err := scanReviewItem(s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM review_items r WHERE r.id = $1`, id))
	if err != nil {
		return nil, mapEntityError(err, store.ErrReviewItemNotFound, nil)
	}
	return item, nil
}

// GetForUpdate implements store.ReviewStore.
func (s *PostgresReviewStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ReviewItem, error) {
	item, err := scanReviewItem(s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM review_items r WHERE r.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapEntityError(err, store.ErrReviewItemNotFound, nil)
	}
	return item, nil
}

// UpdateDecision implements store.ReviewStore.
func (s *PostgresReviewStore) UpdateDecision(ctx context.Context, item *domain.ReviewItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE review_items
		SET status = $2, reviewer_id = $3, notes = $4, decided_at = $5, term_id = $6, updated_at = $7
		WHERE id = $1`,
		item.ID, string(item.Status), nullUUID(item.ReviewerID), item.Notes, item.DecidedAt,
		nullUUID(item.TermID), item.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update review decision",
			slog.String("error", err.Error()),
			slog.String("review_item_id", item.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrReviewItemNotFound)
}

// List implements store.ReviewStore.
func (s *PostgresReviewStore) List(ctx context.Context, filter store.ReviewFilter) ([]*domain.ReviewItem, int, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if filter.TopicID != nil {
		args = append(args, *filter.TopicID)
		conds = append(conds, fmt.Sprintf("r.topic_id = $%d", len(args)))
	}
	if filter.TopicName != "" {
		args = append(args, domain.NormalizeKey(filter.TopicName))
		conds = append(conds, fmt.Sprintf("t.name_key = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	from := `FROM review_items r JOIN topics t ON t.id = r.topic_id ` + where

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	args = append(args, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s %s
		ORDER BY r.freshness_score DESC, r.created_at ASC, r.id ASC
		LIMIT $%d OFFSET $%d`, reviewColumns, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]*domain.ReviewItem, 0)
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan review item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating review item rows: %w", err)
	}
	return items, total, nil
}
