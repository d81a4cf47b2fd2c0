package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReviewStatus is the state of a review item. Approved and rejected are terminal.
type ReviewStatus string

// Possible review status values
const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRejected
}

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	default:
		return false
	}
}

// ReviewAction is a moderator decision.
type ReviewAction string

// Moderator actions
const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

// Target returns the status the action moves an item to.
func (a ReviewAction) Target() (ReviewStatus, error) {
	switch a {
	case ReviewActionApprove:
		return ReviewStatusApproved, nil
	case ReviewActionReject:
		return ReviewStatusRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown review action %q", ErrValidation, string(a))
	}
}

// Review item validation errors
var (
	ErrReviewItemIDEmpty      = errors.New("review item ID cannot be empty")
	ErrReviewItemTopicEmpty   = errors.New("review item topic ID cannot be empty")
	ErrInvalidReviewStatus    = errors.New("invalid review status")
	ErrReviewTermLinkMismatch = errors.New("review item term link does not match its status")
)

// ReviewItem is a candidate held for a moderator decision. A Term is linked
// to the item if and only if the item is approved.
type ReviewItem struct {
	ID             uuid.UUID    `json:"id"`
	TopicID        uuid.UUID    `json:"topic_id"`
	Candidate      Candidate    `json:"candidate"`
	Confidence     float64      `json:"confidence"`
	FreshnessScore float64      `json:"freshness_score"`
	Reason         string       `json:"reason"`
	Status         ReviewStatus `json:"status"`
	ReviewerID     *uuid.UUID   `json:"reviewer_id,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	DecidedAt      *time.Time   `json:"decided_at,omitempty"`
	TermID         *uuid.UUID   `json:"term_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// NewReviewItem creates a pending item for the candidate.
func NewReviewItem(
	topicID uuid.UUID,
	candidate Candidate,
	confidence, freshness float64,
	reason string,
) (*ReviewItem, error) {
	now := time.Now().UTC()
	if freshness < 0 {
		freshness = 0
	}
	item := &ReviewItem{
		ID:             uuid.New(),
		TopicID:        topicID,
		Candidate:      candidate,
		Confidence:     Clamp01(confidence),
		FreshnessScore: freshness,
		Reason:         reason,
		Status:         ReviewStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks field constraints and the status/term link invariant.
func (r *ReviewItem) Validate() error {
	if r.ID == uuid.Nil {
		return ErrReviewItemIDEmpty
	}
	if r.TopicID == uuid.Nil {
		return ErrReviewItemTopicEmpty
	}
	if !r.Status.Valid() {
		return ErrInvalidReviewStatus
	}
	if NormalizeKey(r.Candidate.Term) == "" {
		return ErrTermTextEmpty
	}
	if !InUnitInterval(r.Confidence) {
		return ErrOutOfRange
	}
	if (r.Status == ReviewStatusApproved) != (r.TermID != nil) {
		return ErrReviewTermLinkMismatch
	}
	return nil
}

// Approve moves a pending item to approved and links the promoted term.
func (r *ReviewItem) Approve(reviewerID, termID uuid.UUID, notes string, at time.Time) error {
	if r.Status != ReviewStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, ReviewStatusApproved)
	}
	if termID == uuid.Nil {
		return ErrTermIDEmpty
	}
	r.decide(ReviewStatusApproved, reviewerID, notes, at)
	r.TermID = &termID
	return nil
}

// Reject moves a pending item to rejected. No term is ever linked.
func (r *ReviewItem) Reject(reviewerID uuid.UUID, reason string, at time.Time) error {
	if r.Status != ReviewStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, ReviewStatusRejected)
	}
	r.decide(ReviewStatusRejected, reviewerID, reason, at)
	return nil
}

func (r *ReviewItem) decide(status ReviewStatus, reviewerID uuid.UUID, notes string, at time.Time) {
	at = at.UTC()
	r.Status = status
	r.ReviewerID = &reviewerID
	r.Notes = notes
	r.DecidedAt = &at
	r.UpdatedAt = at
}
