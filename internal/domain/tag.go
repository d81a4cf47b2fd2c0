package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tag validation errors
var (
	ErrTagIDEmpty   = errors.New("tag ID cannot be empty")
	ErrTagNameEmpty = errors.New("tag name cannot be empty")
)

// Tag is a category label shared across terms. The confidence distribution
// summarizes every term-tag confidence observed for the tag.
type Tag struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	ConfidenceCount int       `json:"confidence_count"`
	ConfidenceMean  float64   `json:"confidence_mean"`
	ConfidenceMin   float64   `json:"confidence_min"`
	ConfidenceMax   float64   `json:"confidence_max"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewTag creates a tag with an empty distribution. The name is normalized.
func NewTag(name, description string) (*Tag, error) {
	now := time.Now().UTC()
	tag := &Tag{
		ID:          uuid.New(),
		Name:        NormalizeKey(name),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tag.Validate(); err != nil {
		return nil, err
	}
	return tag, nil
}

// Validate checks if the Tag has valid data.
func (t *Tag) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTagIDEmpty
	}
	if t.Name == "" {
		return ErrTagNameEmpty
	}
	if t.ConfidenceCount > 0 &&
		(!InUnitInterval(t.ConfidenceMin) || !InUnitInterval(t.ConfidenceMax) || !InUnitInterval(t.ConfidenceMean)) {
		return ErrOutOfRange
	}
	return nil
}

// Observe folds one confidence value into the distribution.
func (t *Tag) Observe(confidence float64) {
	c := Clamp01(confidence)
	if t.ConfidenceCount == 0 {
		t.ConfidenceMin, t.ConfidenceMax, t.ConfidenceMean = c, c, c
	} else {
		if c < t.ConfidenceMin {
			t.ConfidenceMin = c
		}
		if c > t.ConfidenceMax {
			t.ConfidenceMax = c
		}
		t.ConfidenceMean += (c - t.ConfidenceMean) / float64(t.ConfidenceCount+1)
	}
	t.ConfidenceCount++
	t.UpdatedAt = time.Now().UTC()
}

// TermTag joins a term and a tag with a per-pair confidence in [0,1].
type TermTag struct {
	TermID     uuid.UUID `json:"term_id"`
	TagID      uuid.UUID `json:"tag_id"`
	TagName    string    `json:"tag"`
	Confidence float64   `json:"confidence"`
}

// TagScore is an extracted tag before it is persisted.
type TagScore struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}
