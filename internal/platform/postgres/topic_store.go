package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

const topicColumns = `id, name, name_key, parent_id, canonical_set_id, active, created_at, updated_at`

// PostgresTopicStore implements store.TopicStore.
type PostgresTopicStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.TopicStore = (*PostgresTopicStore)(nil)

// NewPostgresTopicStore creates a topic store. If logger is nil, a default logger will be used.
func NewPostgresTopicStore(db store.DBTX, logger *slog.Logger) *PostgresTopicStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTopicStore{
		db:     db,
		logger: logger.With(slog.String("component", "topic_store")),
	}
}

// WithTx implements store.TopicStore.
func (s *PostgresTopicStore) WithTx(tx *sql.Tx) store.TopicStore {
	return &PostgresTopicStore{db: tx, logger: s.logger}
}

func scanTopic(row interface{ Scan(...any) error }) (*domain.Topic, error) {
	var t domain.Topic
	var parentID, setID uuid.NullUUID
	if err := row.Scan(
		&t.ID, &t.Name, &t.NameKey, &parentID, &setID, &t.Active, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.UUID
	}
	if setID.Valid {
		t.CanonicalSetID = &setID.UUID
	}
	return &t, nil
}

// GetOrCreateByName implements store.TopicStore.
func (s *PostgresTopicStore) GetOrCreateByName(ctx context.Context, name string) (*domain.Topic, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	topic, err := domain.NewTopic(name)
	if err != nil {
		return nil, false, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO topics (id, name, name_key, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (name_key) DO NOTHING
		RETURNING `+topicColumns,
		topic.ID, topic.Name, topic.NameKey, topic.CreatedAt,
	)
	created, err := scanTopic(row)
	if err == nil {
		log.Info("topic created",
			slog.String("topic_id", created.ID.String()),
			slog.String("topic", created.Name))
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to create topic", slog.String("error", err.Error()))
		return nil, false, MapError(err)
	}

	existing, err := s.GetByName(ctx, topic.NameKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID implements store.TopicStore.
func (s *PostgresTopicStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id)
	topic, err := scanTopic(row)
	if err != nil {
		return nil, mapEntityError(err, store.ErrTopicNotFound, nil)
	}
	return topic, nil
}

// GetByName implements store.TopicStore.
func (s *PostgresTopicStore) GetByName(ctx context.Context, name string) (*domain.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM topics WHERE name_key = $1`, domain.NormalizeKey(name))
	topic, err := scanTopic(row)
	if err != nil {
		return nil, mapEntityError(err, store.ErrTopicNotFound, nil)
	}
	return topic, nil
}

// SetCanonicalSet implements store.TopicStore.
func (s *PostgresTopicStore) SetCanonicalSet(ctx context.Context, topicID, setID uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE topics SET canonical_set_id = $1, updated_at = $2 WHERE id = $3`,
		setID, time.Now().UTC(), topicID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTopicNotFound)
}

// ListSiblings implements store.TopicStore.
func (s *PostgresTopicStore) ListSiblings(ctx context.Context, topicID uuid.UUID, limit int) ([]*domain.Topic, error) {
	if limit <= 0 {
		return []*domain.Topic{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+topicColumns+`
		FROM topics
		WHERE parent_id IS NOT NULL
		  AND parent_id = (SELECT parent_id FROM topics WHERE id = $1)
		  AND id <> $1
		  AND active
		ORDER BY name_key
		LIMIT $2`, topicID, limit)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	topics := make([]*domain.Topic, 0)
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// PostgresCanonicalSetStore implements store.CanonicalSetStore.
type PostgresCanonicalSetStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.CanonicalSetStore = (*PostgresCanonicalSetStore)(nil)

// NewPostgresCanonicalSetStore creates a canonical set store.
func NewPostgresCanonicalSetStore(db store.DBTX, logger *slog.Logger) *PostgresCanonicalSetStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCanonicalSetStore{
		db:     db,
		logger: logger.With(slog.String("component", "canonical_set_store")),
	}
}

// WithTx implements store.CanonicalSetStore.
func (s *PostgresCanonicalSetStore) WithTx(tx *sql.Tx) store.CanonicalSetStore {
	return &PostgresCanonicalSetStore{db: tx, logger: s.logger}
}

const canonicalSetColumns = `id, topic_id, topic_key, term_count, populated_at, created_at, updated_at`

func scanCanonicalSet(row interface{ Scan(...any) error }) (*domain.CanonicalSet, error) {
	var cs domain.CanonicalSet
	var populated sql.NullTime
	if err := row.Scan(
		&cs.ID, &cs.TopicID, &cs.TopicKey, &cs.TermCount, &populated, &cs.CreatedAt, &cs.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if populated.Valid {
		t := populated.Time
		cs.PopulatedAt = &t
	}
	return &cs, nil
}

// GetOrCreate implements store.CanonicalSetStore.
func (s *PostgresCanonicalSetStore) GetOrCreate(ctx context.Context, topic *domain.Topic) (*domain.CanonicalSet, error) {
	set, err := domain.NewCanonicalSet(topic)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO canonical_sets (id, topic_id, topic_key, term_count, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		ON CONFLICT (topic_key) DO NOTHING
		RETURNING `+canonicalSetColumns,
		set.ID, set.TopicID, set.TopicKey, set.CreatedAt)
	created, err := scanCanonicalSet(row)
	if err == nil {
		logger.FromContextOrDefault(ctx, s.logger).Info("canonical set created",
			slog.String("canonical_set_id", created.ID.String()),
			slog.String("topic_key", created.TopicKey))
		return created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, MapError(err)
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT `+canonicalSetColumns+` FROM canonical_sets WHERE topic_key = $1`, set.TopicKey)
	existing, err := scanCanonicalSet(row)
	if err != nil {
		return nil, mapEntityError(err, store.ErrCanonicalSetNotFound, nil)
	}
	return existing, nil
}

// GetByTopicID implements store.CanonicalSetStore.
func (s *PostgresCanonicalSetStore) GetByTopicID(ctx context.Context, topicID uuid.UUID) (*domain.CanonicalSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canonicalSetColumns+` FROM canonical_sets WHERE topic_id = $1`, topicID)
	set, err := scanCanonicalSet(row)
	if err != nil {
		return nil, mapEntityError(err, store.ErrCanonicalSetNotFound, nil)
	}
	return set, nil
}

// AppendTerm implements store.CanonicalSetStore.
func (s *PostgresCanonicalSetStore) AppendTerm(ctx context.Context, setID uuid.UUID) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE canonical_sets
		SET term_count = term_count + 1,
		    populated_at = COALESCE(populated_at, $1),
		    updated_at = $1
		WHERE id = $2`, now, setID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrCanonicalSetNotFound)
}
