package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// TopicStore defines the interface for topic persistence.
type TopicStore interface {
	// GetOrCreateByName returns the topic whose normalized name matches name,
	// creating it when none exists. Concurrent callers for the same name
	// receive the same row. created reports whether this call inserted it.
	GetOrCreateByName(ctx context.Context, name string) (topic *domain.Topic, created bool, err error)

	// GetByID retrieves a topic by its unique ID.
	// Returns ErrTopicNotFound if the topic does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Topic, error)

	// GetByName retrieves a topic by case-insensitive name.
	// Returns ErrTopicNotFound if the topic does not exist.
	GetByName(ctx context.Context, name string) (*domain.Topic, error)

	// SetCanonicalSet links a topic to its canonical set.
	SetCanonicalSet(ctx context.Context, topicID, setID uuid.UUID) error

	// ListSiblings returns up to limit active topics sharing topicID's parent.
	ListSiblings(ctx context.Context, topicID uuid.UUID, limit int) ([]*domain.Topic, error)

	// WithTx returns a TopicStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TopicStore
}

// CanonicalSetStore defines the interface for canonical set persistence.
type CanonicalSetStore interface {
	// GetOrCreate returns the canonical set for topic, creating it lazily.
	GetOrCreate(ctx context.Context, topic *domain.Topic) (*domain.CanonicalSet, error)

	// GetByTopicID returns the set for a topic.
	// Returns ErrCanonicalSetNotFound if none exists yet.
	GetByTopicID(ctx context.Context, topicID uuid.UUID) (*domain.CanonicalSet, error)

	// AppendTerm records that one more term joined the set and stamps
	// populated_at on the first append.
	AppendTerm(ctx context.Context, setID uuid.UUID) error

	// WithTx returns a CanonicalSetStore that uses the provided transaction.
	WithTx(tx *sql.Tx) CanonicalSetStore
}
