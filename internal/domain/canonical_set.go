package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CanonicalSet validation errors
var (
	ErrCanonicalSetIDEmpty    = errors.New("canonical set ID cannot be empty")
	ErrCanonicalSetTopicEmpty = errors.New("canonical set topic cannot be empty")
)

// CanonicalSet is the shared pool of terms generated once per unique topic
// name. It is append-only: terms are added, never removed or rewritten.
type CanonicalSet struct {
	ID          uuid.UUID  `json:"id"`
	TopicID     uuid.UUID  `json:"topic_id"`
	TopicKey    string     `json:"topic_key"`
	TermCount   int        `json:"term_count"`
	PopulatedAt *time.Time `json:"populated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewCanonicalSet creates an empty set for topic.
func NewCanonicalSet(topic *Topic) (*CanonicalSet, error) {
	if topic == nil {
		return nil, ErrCanonicalSetTopicEmpty
	}
	now := time.Now().UTC()
	set := &CanonicalSet{
		ID:        uuid.New(),
		TopicID:   topic.ID,
		TopicKey:  topic.NameKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks if the CanonicalSet has valid data.
func (s *CanonicalSet) Validate() error {
	if s.ID == uuid.Nil {
		return ErrCanonicalSetIDEmpty
	}
	if s.TopicID == uuid.Nil || s.TopicKey == "" {
		return ErrCanonicalSetTopicEmpty
	}
	return nil
}
