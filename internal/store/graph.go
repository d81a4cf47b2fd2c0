package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// TagStore defines the interface for tag and term-tag persistence.
type TagStore interface {
	// Ensure returns the tag with the normalized name, creating it if needed.
	Ensure(ctx context.Context, name, description string) (*domain.Tag, error)

	// Attach links a tag to a term. An existing link has its confidence
	// replaced. inserted reports whether the link is new.
	Attach(ctx context.Context, termID, tagID uuid.UUID, confidence float64) (inserted bool, err error)

	// Observe folds a confidence value into the tag's distribution.
	Observe(ctx context.Context, tagID uuid.UUID, confidence float64) error

	// ListForTerm returns a term's tags, most confident first.
	ListForTerm(ctx context.Context, termID uuid.UUID) ([]domain.TermTag, error)

	// List returns one page of tags by name along with the total count.
	List(ctx context.Context, limit, offset int) ([]*domain.Tag, int, error)

	// WithTx returns a TagStore that uses the provided transaction.
	WithTx(tx *sql.Tx) TagStore
}

// EdgeStore defines the interface for graph edge persistence.
type EdgeStore interface {
	// Upsert inserts the edge or recomputes the strength of the existing
	// (source, target, type) edge.
	Upsert(ctx context.Context, edge *domain.GraphEdge) error

	// ListRelated returns up to limit edges leaving termID, strongest first.
	ListRelated(ctx context.Context, termID uuid.UUID, limit int) ([]domain.RelatedTerm, error)

	// Stats summarizes the graph.
	Stats(ctx context.Context) (*domain.GraphStats, error)

	// WithTx returns an EdgeStore that uses the provided transaction.
	WithTx(tx *sql.Tx) EdgeStore
}
