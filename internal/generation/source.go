package generation

import (
	"context"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// Reference is a term found in an external reference source.
type Reference struct {
	Term       string
	Definition string
	Examples   []string
	Source     domain.Source
}

// Candidate converts the reference into a candidate carrying its provenance.
func (r Reference) Candidate() domain.Candidate {
	src := r.Source
	return domain.Candidate{
		Term:       r.Term,
		Definition: r.Definition,
		Examples:   r.Examples,
		Source:     &src,
	}
}

// Source looks up reference terms for a topic.
type Source interface {
	Name() string
	Lookup(ctx context.Context, topic string, limit int) ([]Reference, error)
}
