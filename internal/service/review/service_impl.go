package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
)

// Decision results recorded in metrics.
const (
	resultApplied  = "applied"
	resultReplay   = "replay"
	resultConflict = "conflict"
	resultError    = "error"
)

var _ Service = (*serviceImpl)(nil)

type serviceImpl struct {
	tx      store.Transactor
	topics  store.TopicStore
	sets    store.CanonicalSetStore
	terms   store.TermStore
	reviews store.ReviewStore
	emitter events.EventEmitter
	cfg     config.ReviewConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the review queue. m may be nil.
func NewService(
	tx store.Transactor,
	topics store.TopicStore,
	sets store.CanonicalSetStore,
	terms store.TermStore,
	reviews store.ReviewStore,
	emitter events.EventEmitter,
	cfg config.ReviewConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) Service {
	if tx == nil {
		panic("tx cannot be nil")
	}
	if topics == nil || sets == nil || terms == nil || reviews == nil {
		panic("stores cannot be nil")
	}
	if emitter == nil {
		panic("emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPageSize < 1 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &serviceImpl{
		tx:      tx,
		topics:  topics,
		sets:    sets,
		terms:   terms,
		reviews: reviews,
		emitter: emitter,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "review_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit implements Service.
func (s *serviceImpl) Submit(
	ctx context.Context,
	topicID uuid.UUID,
	candidate domain.Candidate,
	confidence, freshness float64,
	reason string,
) (*domain.ReviewItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	item, err := domain.NewReviewItem(topicID, candidate, confidence, freshness, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.reviews.Create(ctx, item); err != nil {
		log.Error("failed to create review item",
			slog.String("error", err.Error()),
			slog.String("topic_id", topicID.String()))
		return nil, fmt.Errorf("failed to create review item: %w", err)
	}

	log.Info("candidate queued for review",
		slog.String("review_item_id", item.ID.String()),
		slog.String("term", candidate.Term),
		slog.Float64("confidence", item.Confidence),
		slog.String("reason", reason))
	return item, nil
}

// Decide implements Service.
func (s *serviceImpl) Decide(
	ctx context.Context,
	id uuid.UUID,
	action domain.ReviewAction,
	reviewerID uuid.UUID,
	notes string,
) (*Decision, error) {
	switch action {
	case domain.ReviewActionApprove:
		return s.Approve(ctx, id, reviewerID, notes)
	case domain.ReviewActionReject:
		return s.Reject(ctx, id, reviewerID, notes)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, string(action))
	}
}

// Approve implements Service.
func (s *serviceImpl) Approve(ctx context.Context, id, reviewerID uuid.UUID, notes string) (*Decision, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("review_item_id", id.String()),
		slog.String("reviewer_id", reviewerID.String()))

	decision := &Decision{ItemID: id, Action: domain.ReviewActionApprove}
	var created *domain.Term

	err := s.tx.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reviews := s.reviews.WithTx(tx)

		item, err := reviews.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		decision.Status = item.Status

		switch item.Status {
		case domain.ReviewStatusApproved:
			decision.TermID = item.TermID
			return nil
		case domain.ReviewStatusRejected:
			decision.Conflict = &TransitionError{ItemID: id, From: item.Status, Action: decision.Action}
			return nil
		}

		term, linked, err := s.promote(ctx, tx, item)
		if err != nil {
			return err
		}
		if err := item.Approve(reviewerID, term.ID, notes, s.now()); err != nil {
			return err
		}
		if err := reviews.UpdateDecision(ctx, item); err != nil {
			return fmt.Errorf("failed to update review item: %w", err)
		}

		decision.Applied = true
		decision.Status = item.Status
		decision.TermID = &term.ID
		decision.Linked = linked
		if !linked {
			created = term
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(log, decision.Action, err)
	}

	s.record(log, decision, notes)
	if created != nil {
		s.emitRelationships(ctx, log, created.ID)
	}
	return decision, nil
}

// promote returns the term for an approved item, creating it when the topic
// has no term with the same text. linked reports that an existing term was
// reused.
func (s *serviceImpl) promote(ctx context.Context, tx *sql.Tx, item *domain.ReviewItem) (*domain.Term, bool, error) {
	terms := s.terms.WithTx(tx)

	existing, err := terms.GetByTopicAndKey(ctx, item.TopicID, item.Candidate.Key())
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, store.ErrTermNotFound) {
		return nil, false, fmt.Errorf("failed to look up existing term: %w", err)
	}

	topic, err := s.topics.WithTx(tx).GetByID(ctx, item.TopicID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load topic: %w", err)
	}
	set, err := s.sets.WithTx(tx).GetOrCreate(ctx, topic)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve canonical set: %w", err)
	}
	if topic.CanonicalSetID == nil || *topic.CanonicalSetID != set.ID {
		if err := s.topics.WithTx(tx).SetCanonicalSet(ctx, topic.ID, set.ID); err != nil {
			return nil, false, fmt.Errorf("failed to link canonical set: %w", err)
		}
	}

	term, err := domain.NewTermFromCandidate(item.TopicID, &set.ID, item.Candidate, item.Confidence, item.FreshnessScore)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := terms.Create(ctx, term); err != nil {
		return nil, false, fmt.Errorf("failed to create term: %w", err)
	}
	if err := s.sets.WithTx(tx).AppendTerm(ctx, set.ID); err != nil {
		return nil, false, fmt.Errorf("failed to append term to canonical set: %w", err)
	}
	return term, false, nil
}

// Reject implements Service.
func (s *serviceImpl) Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*Decision, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("review_item_id", id.String()),
		slog.String("reviewer_id", reviewerID.String()))

	decision := &Decision{ItemID: id, Action: domain.ReviewActionReject}

	err := s.tx.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		reviews := s.reviews.WithTx(tx)

		item, err := reviews.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		decision.Status = item.Status

		switch item.Status {
		case domain.ReviewStatusRejected:
			return nil
		case domain.ReviewStatusApproved:
			decision.TermID = item.TermID
			decision.Conflict = &TransitionError{ItemID: id, From: item.Status, Action: decision.Action}
			return nil
		}

		if err := item.Reject(reviewerID, reason, s.now()); err != nil {
			return err
		}
		if err := reviews.UpdateDecision(ctx, item); err != nil {
			return fmt.Errorf("failed to update review item: %w", err)
		}
		decision.Applied = true
		decision.Status = item.Status
		return nil
	})
	if err != nil {
		return nil, s.fail(log, decision.Action, err)
	}

	s.record(log, decision, reason)
	return decision, nil
}

// Bulk implements Service.
func (s *serviceImpl) Bulk(
	ctx context.Context,
	ids []uuid.UUID,
	action domain.ReviewAction,
	reviewerID uuid.UUID,
	notes string,
) ([]BulkResult, error) {
	if _, err := action.Target(); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, string(action))
	}
	if len(ids) == 0 || len(ids) > MaxBulkItems {
		return nil, fmt.Errorf("%w: between 1 and %d ids required", ErrInvalidBulk, MaxBulkItems)
	}

	seen := make(map[uuid.UUID]bool, len(ids))
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		decision, err := s.Decide(ctx, id, action, reviewerID, notes)
		if err != nil {
			results = append(results, BulkResult{ID: id, Error: bulkErrorMessage(err)})
			continue
		}
		results = append(results, BulkResult{ID: id, Decision: decision})
	}
	return results, nil
}

// bulkErrorMessage returns a client-safe description of a per-item failure.
func bulkErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return "review item not found"
	case errors.Is(err, domain.ErrValidation):
		return "review item is invalid"
	default:
		return "failed to apply decision"
	}
}

// List implements Service.
func (s *serviceImpl) List(ctx context.Context, filter Filter) (*Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, string(filter.Status))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidFilter)
	}
	limit := filter.Limit
	if limit == 0 {
		limit = s.cfg.DefaultPageSize
	}
	limit = min(limit, s.cfg.MaxPageSize)

	f := store.ReviewFilter{
		Status:  filter.Status,
		TopicID: filter.TopicID,
		Limit:   limit,
		Offset:  filter.Offset,
	}
	if filter.TopicID == nil {
		f.TopicName = strings.TrimSpace(filter.TopicName)
	}

	items, total, err := s.reviews.List(ctx, f)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list review items",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	if items == nil {
		items = []*domain.ReviewItem{}
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: filter.Offset}, nil
}

// fail maps a transaction error and records it.
func (s *serviceImpl) fail(log *slog.Logger, action domain.ReviewAction, err error) error {
	if errors.Is(err, store.ErrReviewItemNotFound) {
		log.Warn("review item not found")
		s.metrics.ObserveReviewDecision(string(action), resultError)
		return fmt.Errorf("%w: %w", ErrItemNotFound, err)
	}
	log.Error("failed to apply review decision",
		slog.String("action", string(action)),
		slog.String("error", err.Error()))
	s.metrics.ObserveReviewDecision(string(action), resultError)
	return fmt.Errorf("failed to %s review item: %w", action, err)
}

// record logs and counts a completed decision.
func (s *serviceImpl) record(log *slog.Logger, d *Decision, notes string) {
	switch {
	case d.Conflict != nil:
		log.Warn("conflicting review decision ignored",
			slog.String("action", string(d.Action)),
			slog.String("status", string(d.Status)))
		s.metrics.ObserveReviewDecision(string(d.Action), resultConflict)
	case !d.Applied:
		log.Debug("review decision replayed",
			slog.String("action", string(d.Action)))
		s.metrics.ObserveReviewDecision(string(d.Action), resultReplay)
	case d.Action == domain.ReviewActionReject:
		log.Info("review item rejected", slog.String("reason", notes))
		s.metrics.ObserveReviewDecision(string(d.Action), resultApplied)
	default:
		log.Info("review item approved",
			slog.String("term_id", d.TermID.String()),
			slog.Bool("linked_existing", d.Linked))
		s.metrics.ObserveReviewDecision(string(d.Action), resultApplied)
	}
}

// emitRelationships requests the relationship pass for a promoted term. A
// failure is logged; the term is already committed.
func (s *serviceImpl) emitRelationships(ctx context.Context, log *slog.Logger, termID uuid.UUID) {
	err := events.Emit(ctx, s.emitter, task.TaskTypeRelationshipExtraction, "review",
		task.RelationshipPayload{TermIDs: []uuid.UUID{termID}})
	if err != nil {
		log.Error("failed to request relationship extraction",
			slog.String("term_id", termID.String()),
			slog.String("error", err.Error()))
	}
}
