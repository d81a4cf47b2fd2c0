package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic validation errors
var (
	ErrTopicIDEmpty   = errors.New("topic ID cannot be empty")
	ErrTopicNameEmpty = errors.New("topic name cannot be empty")
	ErrTopicNameLong  = errors.New("topic name cannot exceed 200 characters")
)

// MaxTopicNameLength bounds topic names accepted from clients.
const MaxTopicNameLength = 200

// Topic is a subject area that terms belong to. Topics are matched by a
// case-insensitive key, created on first request and only ever deactivated.
type Topic struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	NameKey        string     `json:"-"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	CanonicalSetID *uuid.UUID `json:"canonical_set_id,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTopic creates an active Topic for the given display name.
func NewTopic(name string) (*Topic, error) {
	now := time.Now().UTC()
	name = strings.TrimSpace(name)
	topic := &Topic{
		ID:        uuid.New(),
		Name:      name,
		NameKey:   NormalizeKey(name),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := topic.Validate(); err != nil {
		return nil, err
	}
	return topic, nil
}

// Validate checks if the Topic has valid data.
func (t *Topic) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTopicIDEmpty
	}
	if t.NameKey == "" {
		return ErrTopicNameEmpty
	}
	if len([]rune(t.Name)) > MaxTopicNameLength {
		return ErrTopicNameLong
	}
	return nil
}

// Deactivate marks the topic inactive. Topics are never deleted.
func (t *Topic) Deactivate() {
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
}
