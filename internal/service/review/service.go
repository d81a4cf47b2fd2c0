// Package review implements the moderation queue. Items move from pending to
// approved or rejected, both terminal; approval promotes the candidate into
// a stored Term inside the same transaction.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
)

// MaxBulkItems bounds the ids accepted by one Bulk call.
const MaxBulkItems = 100

// Decision is the outcome of one moderator action.
//
// Applied is false when the action was a replay of the item's current
// state, or when it conflicts with a previous decision. Conflicts carry a
// TransitionError in Conflict; they are not returned as errors.
type Decision struct {
	ItemID   uuid.UUID           `json:"item_id"`
	Action   domain.ReviewAction `json:"action"`
	Status   domain.ReviewStatus `json:"status"`
	Applied  bool                `json:"applied"`
	TermID   *uuid.UUID          `json:"term_id,omitempty"`
	Linked   bool                `json:"linked_existing,omitempty"`
	Conflict *TransitionError    `json:"conflict,omitempty"`
}

// BulkResult is the per-item result of Bulk. Exactly one of Decision and
// Error is set.
type BulkResult struct {
	ID       uuid.UUID `json:"id"`
	Decision *Decision `json:"decision,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Filter selects review items for List. TopicID takes precedence over
// TopicName. A zero Limit uses the configured default page size.
type Filter struct {
	Status    domain.ReviewStatus
	TopicID   *uuid.UUID
	TopicName string
	Limit     int
	Offset    int
}

// Page is one page of review items.
type Page struct {
	Items  []*domain.ReviewItem `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// Service is the moderation queue.
type Service interface {
	// Submit stores a candidate as a pending review item.
	Submit(
		ctx context.Context,
		topicID uuid.UUID,
		candidate domain.Candidate,
		confidence, freshness float64,
		reason string,
	) (*domain.ReviewItem, error)

	// Approve promotes a pending item into a Term and marks it approved in
	// one transaction. When the topic already holds a term with the same
	// text the item is linked to that term instead, so exactly one Term
	// exists either way.
	//
	// Returns ErrItemNotFound when the item does not exist. Replays and
	// conflicting decisions are reported through the Decision.
	Approve(ctx context.Context, id, reviewerID uuid.UUID, notes string) (*Decision, error)

	// Reject marks a pending item rejected. The reason is logged and counted
	// for threshold tuning. No Term is ever created.
	Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*Decision, error)

	// Decide dispatches to Approve or Reject.
	Decide(ctx context.Context, id uuid.UUID, action domain.ReviewAction, reviewerID uuid.UUID, notes string) (*Decision, error)

	// Bulk applies action to every id, each in its own transaction. A
	// failure on one item is reported in its BulkResult and does not stop
	// the others. Duplicate ids are processed once.
	Bulk(ctx context.Context, ids []uuid.UUID, action domain.ReviewAction, reviewerID uuid.UUID, notes string) ([]BulkResult, error)

	// List returns one page of items ordered by freshness score, then age.
	List(ctx context.Context, filter Filter) (*Page, error)
}

var (
	// ErrItemNotFound indicates that the review item does not exist.
	ErrItemNotFound = errors.New("review item not found")

	// ErrInvalidAction indicates an action other than approve or reject.
	ErrInvalidAction = errors.New("invalid review action")

	// ErrInvalidFilter indicates an unusable List filter.
	ErrInvalidFilter = errors.New("invalid review filter")

	// ErrInvalidBulk indicates an empty or oversized Bulk request.
	ErrInvalidBulk = errors.New("invalid bulk request")
)

// TransitionError describes a decision that conflicts with an item's
// terminal state, such as approving a rejected item.
type TransitionError struct {
	ItemID uuid.UUID           `json:"item_id"`
	From   domain.ReviewStatus `json:"from"`
	Action domain.ReviewAction `json:"action"`
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s review item %s: already %s", e.Action, e.ItemID, e.From)
}

// Unwrap lets callers match domain.ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return domain.ErrInvalidTransition
}
