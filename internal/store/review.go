package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// ReviewFilter narrows a review listing. Zero values mean no filter.
type ReviewFilter struct {
	Status    domain.ReviewStatus
	TopicID   *uuid.UUID
	TopicName string
	Limit     int
	Offset    int
}

// ReviewStore defines the interface for review item persistence.
type ReviewStore interface {
	// Create saves a new review item.
	Create(ctx context.Context, item *domain.ReviewItem) error

	// GetByID retrieves a review item.
	// Returns ErrReviewItemNotFound if the item does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ReviewItem, error)

	// GetForUpdate retrieves a review item and locks its row until the
	// surrounding transaction ends. Only meaningful on a WithTx store.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ReviewItem, error)

	// UpdateDecision persists status, reviewer, notes, decided_at and term_id.
	UpdateDecision(ctx context.Context, item *domain.ReviewItem) error

	// List returns one page of items ordered by freshness score descending,
	// then oldest first, along with the total matching count.
	List(ctx context.Context, filter ReviewFilter) ([]*domain.ReviewItem, int, error)

	// WithTx returns a ReviewStore that uses the provided transaction.
	WithTx(tx *sql.Tx) ReviewStore
}
