package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TermStatus is the moderation status of a stored term.
type TermStatus string

// Possible term status values
const (
	TermStatusApproved TermStatus = "approved"
	TermStatusArchived TermStatus = "archived"
)

// Reliability is the trust tier of a content source.
type Reliability string

// Reliability tiers
const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// Weight maps a reliability tier onto [0,1] for confidence scoring.
// Unknown tiers are treated as medium.
func (r Reliability) Weight() float64 {
	switch r {
	case ReliabilityHigh:
		return 1.0
	case ReliabilityLow:
		return 0.4
	default:
		return 0.7
	}
}

// Term validation errors
var (
	ErrTermIDEmpty         = errors.New("term ID cannot be empty")
	ErrTermTopicIDEmpty    = errors.New("term topic ID cannot be empty")
	ErrTermTextEmpty       = errors.New("term text cannot be empty")
	ErrTermDefinitionEmpty = errors.New("term definition cannot be empty")
	ErrInvalidTermStatus   = errors.New("invalid term status")
)

// Source records where a term or candidate came from.
type Source struct {
	Name        string      `json:"name"`
	URL         string      `json:"url,omitempty"`
	Reliability Reliability `json:"reliability,omitempty"`
}

// Candidate is an unvetted term as produced by generation. It is the payload
// carried by review items and the input to validation.
type Candidate struct {
	Term         string   `json:"term"`
	Definition   string   `json:"definition"`
	Examples     []string `json:"examples,omitempty"`
	PartOfSpeech string   `json:"part_of_speech,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Source       *Source  `json:"source,omitempty"`
}

// Key returns the normalized comparison key for the candidate's term text.
func (c Candidate) Key() string {
	return NormalizeKey(c.Term)
}

// Term is a vetted vocabulary entry. It belongs to exactly one topic and is
// archived rather than deleted.
type Term struct {
	ID             uuid.UUID  `json:"id"`
	TopicID        uuid.UUID  `json:"topic_id"`
	CanonicalSetID *uuid.UUID `json:"canonical_set_id,omitempty"`
	Text           string     `json:"term"`
	TextKey        string     `json:"-"`
	Definition     string     `json:"definition"`
	Examples       []string   `json:"examples"`
	PartOfSpeech   string     `json:"part_of_speech,omitempty"`
	Difficulty     string     `json:"difficulty,omitempty"`
	Source         Source     `json:"source"`
	Confidence     float64    `json:"confidence"`
	FreshnessScore float64    `json:"freshness_score"`
	Status         TermStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTermFromCandidate creates an approved Term carrying the candidate's
// payload unchanged. Confidence is clamped to [0,1] and freshness to >= 0.
func NewTermFromCandidate(
	topicID uuid.UUID,
	setID *uuid.UUID,
	c Candidate,
	confidence, freshness float64,
) (*Term, error) {
	now := time.Now().UTC()
	examples := c.Examples
	if examples == nil {
		examples = []string{}
	}
	var src Source
	if c.Source != nil {
		src = *c.Source
	}
	if freshness < 0 {
		freshness = 0
	}

	term := &Term{
		ID:             uuid.New(),
		TopicID:        topicID,
		CanonicalSetID: setID,
		Text:           strings.TrimSpace(c.Term),
		TextKey:        c.Key(),
		Definition:     c.Definition,
		Examples:       examples,
		PartOfSpeech:   c.PartOfSpeech,
		Difficulty:     c.Difficulty,
		Source:         src,
		Confidence:     Clamp01(confidence),
		FreshnessScore: freshness,
		Status:         TermStatusApproved,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := term.Validate(); err != nil {
		return nil, err
	}
	return term, nil
}

// Validate checks if the Term has valid data.
func (t *Term) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTermIDEmpty
	}
	if t.TopicID == uuid.Nil {
		return ErrTermTopicIDEmpty
	}
	if t.TextKey == "" {
		return ErrTermTextEmpty
	}
	if strings.TrimSpace(t.Definition) == "" {
		return ErrTermDefinitionEmpty
	}
	if !InUnitInterval(t.Confidence) {
		return ErrOutOfRange
	}
	if t.Status != TermStatusApproved && t.Status != TermStatusArchived {
		return ErrInvalidTermStatus
	}
	return nil
}

// Candidate converts the stored term back into a candidate, as used when a
// canonical set is reused for a new request.
func (t *Term) Candidate() Candidate {
	src := t.Source
	return Candidate{
		Term:         t.Text,
		Definition:   t.Definition,
		Examples:     t.Examples,
		PartOfSpeech: t.PartOfSpeech,
		Difficulty:   t.Difficulty,
		Source:       &src,
	}
}

// Archive hides the term from consumers without deleting it.
func (t *Term) Archive() {
	t.Status = TermStatusArchived
	t.UpdatedAt = time.Now().UTC()
}
