package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationshipType classifies a directed edge between two terms.
type RelationshipType string

// Relationship types
const (
	RelationshipSimilar  RelationshipType = "similar"
	RelationshipBroader  RelationshipType = "broader"
	RelationshipNarrower RelationshipType = "narrower"
	RelationshipAntonym  RelationshipType = "antonym"
	RelationshipRelated  RelationshipType = "related"
)

// RelationshipTypes lists every type.
var RelationshipTypes = []RelationshipType{
	RelationshipSimilar, RelationshipBroader, RelationshipNarrower, RelationshipAntonym, RelationshipRelated,
}

// Valid reports whether r is a known type.
func (r RelationshipType) Valid() bool {
	for _, t := range RelationshipTypes {
		if t == r {
			return true
		}
	}
	return false
}

// Inverse returns the type of the reverse edge.
func (r RelationshipType) Inverse() RelationshipType {
	switch r {
	case RelationshipBroader:
		return RelationshipNarrower
	case RelationshipNarrower:
		return RelationshipBroader
	default:
		return r
	}
}

// Graph edge validation errors
var (
	ErrEdgeEndpointEmpty = errors.New("graph edge endpoints cannot be empty")
	ErrEdgeSelfLoop      = errors.New("graph edge cannot point to its source")
)

// GraphEdge is a directed relationship between two terms. Edges are unique
// per (source, target, type) and upserts recompute strength.
type GraphEdge struct {
	ID           uuid.UUID        `json:"id"`
	SourceTermID uuid.UUID        `json:"source_term_id"`
	TargetTermID uuid.UUID        `json:"target_term_id"`
	Type         RelationshipType `json:"type"`
	Strength     float64          `json:"strength"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewGraphEdge creates an edge with strength clamped to [0,1].
func NewGraphEdge(source, target uuid.UUID, typ RelationshipType, strength float64) (*GraphEdge, error) {
	now := time.Now().UTC()
	edge := &GraphEdge{
		ID:           uuid.New(),
		SourceTermID: source,
		TargetTermID: target,
		Type:         typ,
		Strength:     Clamp01(strength),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := edge.Validate(); err != nil {
		return nil, err
	}
	return edge, nil
}

// Validate checks if the GraphEdge has valid data.
func (e *GraphEdge) Validate() error {
	if e.SourceTermID == uuid.Nil || e.TargetTermID == uuid.Nil {
		return ErrEdgeEndpointEmpty
	}
	if e.SourceTermID == e.TargetTermID {
		return ErrEdgeSelfLoop
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown relationship type %q", ErrValidation, string(e.Type))
	}
	if !InUnitInterval(e.Strength) {
		return ErrOutOfRange
	}
	return nil
}

// RelatedTerm is an edge joined with the target term's display text.
type RelatedTerm struct {
	TermID   uuid.UUID        `json:"term_id"`
	Term     string           `json:"term"`
	Type     RelationshipType `json:"type"`
	Strength float64          `json:"strength"`
}

// GraphStats summarizes the term graph.
type GraphStats struct {
	Terms       int                      `json:"terms"`
	Edges       int                      `json:"edges"`
	Tags        int                      `json:"tags"`
	EdgesByType map[RelationshipType]int `json:"edges_by_type"`
	AvgStrength float64                  `json:"avg_strength"`
}
