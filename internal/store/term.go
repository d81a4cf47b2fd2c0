package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// TermStore defines the interface for term persistence.
type TermStore interface {
	// Create saves a new term.
	// Returns ErrTermExists if the topic already has a term with the same key.
	Create(ctx context.Context, term *domain.Term) error

	// GetByID retrieves a term by its unique ID.
	// Returns ErrTermNotFound if the term does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Term, error)

	// GetByTopicAndKey retrieves the term with a normalized text in a topic.
	// Returns ErrTermNotFound if the term does not exist.
	GetByTopicAndKey(ctx context.Context, topicID uuid.UUID, key string) (*domain.Term, error)

	// GetByIDs retrieves the approved terms among ids. Missing ids are skipped.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Term, error)

	// ListByCanonicalSet returns up to limit approved terms of a set,
	// oldest first.
	ListByCanonicalSet(ctx context.Context, setID uuid.UUID, limit int) ([]*domain.Term, error)

	// ListKeysByTopic returns the normalized text of every term in a topic.
	ListKeysByTopic(ctx context.Context, topicID uuid.UUID) ([]string, error)

	// ListPool returns up to limit approved terms from topicIDs, freshest
	// first, excluding excludeIDs.
	ListPool(ctx context.Context, topicIDs []uuid.UUID, excludeIDs []uuid.UUID, limit int) ([]*domain.Term, error)

	// WithTx returns a TermStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TermStore
}
