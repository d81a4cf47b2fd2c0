package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

const termColumns = `id, topic_id, canonical_set_id, text, text_key, definition, examples,
	part_of_speech, difficulty, source_name, source_url, source_reliability,
	confidence, freshness_score, status, created_at, updated_at`

// PostgresTermStore implements store.TermStore.
type PostgresTermStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.TermStore = (*PostgresTermStore)(nil)

// NewPostgresTermStore creates a term store. If logger is nil, a default logger will be used.
func NewPostgresTermStore(db store.DBTX, logger *slog.Logger) *PostgresTermStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTermStore{
		db:     db,
		logger: logger.With(slog.String("component", "term_store")),
	}
}

// WithTx implements store.TermStore.
func (s *PostgresTermStore) WithTx(tx *sql.Tx) store.TermStore {
	return &PostgresTermStore{db: tx, logger: s.logger}
}

func scanTerm(row interface{ Scan(...any) error }) (*domain.Term, error) {
	var t domain.Term
	var setID uuid.NullUUID
	var examples []byte
	var reliability, status string
	if err := row.Scan(
		&t.ID, &t.TopicID, &setID, &t.Text, &t.TextKey, &t.Definition, &examples,
		&t.PartOfSpeech, &t.Difficulty, &t.Source.Name, &t.Source.URL, &reliability,
		&t.Confidence, &t.FreshnessScore, &status, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if setID.Valid {
		t.CanonicalSetID = &setID.UUID
	}
	t.Source.Reliability = domain.Reliability(reliability)
	t.Status = domain.TermStatus(status)
	if err := json.Unmarshal(examples, &t.Examples); err != nil {
		return nil, fmt.Errorf("%w: term examples: %v", domain.ErrInvalidFormat, err)
	}
	if t.Examples == nil {
		t.Examples = []string{}
	}
	return &t, nil
}

func (s *PostgresTermStore) queryTerms(ctx context.Context, query string, args ...any) ([]*domain.Term, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	terms := make([]*domain.Term, 0)
	for rows.Next() {
		t, err := scanTerm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan term row: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating term rows: %w", err)
	}
	return terms, nil
}

// Create implements store.TermStore.
func (s *PostgresTermStore) Create(ctx context.Context, term *domain.Term) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := term.Validate(); err != nil {
		log.Warn("term validation failed during create",
			slog.String("error", err.Error()),
			slog.String("term_id", term.ID.String()))
		return err
	}

	examples, err := json.Marshal(term.Examples)
	if err != nil {
		return fmt.Errorf("failed to marshal term examples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terms (`+termColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		term.ID, term.TopicID, nullUUID(term.CanonicalSetID), term.Text, term.TextKey, term.Definition, examples,
		term.PartOfSpeech, term.Difficulty, term.Source.Name, term.Source.URL, string(term.Source.Reliability),
		term.Confidence, term.FreshnessScore, string(term.Status), term.CreatedAt, term.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("term already exists for topic",
				slog.String("topic_id", term.TopicID.String()),
				slog.String("term", term.Text))
			return mapEntityError(err, nil, store.ErrTermExists)
		}
		log.Error("failed to create term",
			slog.String("error", err.Error()),
			slog.String("term_id", term.ID.String()))
		return MapError(err)
	}

	log.Debug("term created",
		slog.String("term_id", term.ID.String()),
		slog.String("topic_id", term.TopicID.String()))
	return nil
}

// GetByID implements store.TermStore.
func (s *PostgresTermStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Term, error) {
	t, err := scanTerm(s.db.QueryRowContext(ctx, `SELECT `+termColumns+` FROM terms WHERE id = $1`, id))
	if err != nil {
		return nil, mapEntityError(err, store.ErrTermNotFound, nil)
	}
	return t, nil
}

// GetByTopicAndKey implements store.TermStore.
func (s *PostgresTermStore) GetByTopicAndKey(ctx context.Context, topicID uuid.UUID, key string) (*domain.Term, error) {
	t, err := scanTerm(s.db.QueryRowContext(ctx,
		`SELECT `+termColumns+` FROM terms WHERE topic_id = $1 AND text_key = $2`,
		topicID, domain.NormalizeKey(key)))
	if err != nil {
		return nil, mapEntityError(err, store.ErrTermNotFound, nil)
	}
	return t, nil
}

// GetByIDs implements store.TermStore.
func (s *PostgresTermStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Term, error) {
	if len(ids) == 0 {
		return []*domain.Term{}, nil
	}
	return s.queryTerms(ctx,
		`SELECT `+termColumns+` FROM terms WHERE id = ANY($1::uuid[]) AND status = 'approved'`,
		uuidStrings(ids))
}

// ListByCanonicalSet implements store.TermStore.
func (s *PostgresTermStore) ListByCanonicalSet(ctx context.Context, setID uuid.UUID, limit int) ([]*domain.Term, error) {
	return s.queryTerms(ctx, `
		SELECT `+termColumns+`
		FROM terms
		WHERE canonical_set_id = $1 AND status = 'approved'
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, setID, limit)
}

// ListKeysByTopic implements store.TermStore.
func (s *PostgresTermStore) ListKeysByTopic(ctx context.Context, topicID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT text_key FROM terms WHERE topic_id = $1`, topicID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan term key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListPool implements store.TermStore.
func (s *PostgresTermStore) ListPool(
	ctx context.Context,
	topicIDs []uuid.UUID,
	excludeIDs []uuid.UUID,
	limit int,
) ([]*domain.Term, error) {
	if len(topicIDs) == 0 || limit <= 0 {
		return []*domain.Term{}, nil
	}
	return s.queryTerms(ctx, `
		SELECT `+termColumns+`
		FROM terms
		WHERE topic_id = ANY($1::uuid[])
		  AND NOT (id = ANY($2::uuid[]))
		  AND status = 'approved'
		ORDER BY freshness_score DESC, created_at DESC
		LIMIT $3`, uuidStrings(topicIDs), uuidStrings(excludeIDs), limit)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

// uuidStrings renders ids for a ::uuid[] parameter. pgx encodes []string as text[].
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
