package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	"github.com/phrazzld/lexis-api/internal/quota"
	"github.com/phrazzld/lexis-api/internal/service/review"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
	"github.com/phrazzld/lexis-api/internal/validation"
)

// ItemStatus is where a single candidate ended up.
type ItemStatus string

// Item statuses
const (
	ItemStored    ItemStatus = "stored"
	ItemReview    ItemStatus = "review"
	ItemRejected  ItemStatus = "rejected"
	ItemDuplicate ItemStatus = "duplicate"
	ItemReused    ItemStatus = "reused"
)

// Generator produces candidates for a topic.
type Generator interface {
	Generate(ctx context.Context, params generation.Params) (*generation.Result, error)
}

// QuotaGovernor admits requests and meters their usage. Admit reserves the
// estimate; Settle charges whatever the measured usage adds on top of it.
type QuotaGovernor interface {
	Admit(ctx context.Context, userID uuid.UUID, est quota.Estimate) (quota.Decision, error)
	Settle(ctx context.Context, userID uuid.UUID, est quota.Estimate, tokens int64, costUSD float64) error
}

// GenerateRequest is a user's request for terms.
type GenerateRequest struct {
	Topic         string                `json:"topic"`
	Count         int                   `json:"count"`
	Pipeline      generation.Pipeline   `json:"pipeline"`
	Complexity    generation.Complexity `json:"complexity"`
	Style         generation.Style      `json:"style"`
	IncludeFacts  bool                  `json:"include_facts"`
	ExistingTerms []string              `json:"existing_terms"`
}

func (r GenerateRequest) params() generation.Params {
	return generation.Params{
		Topic:         r.Topic,
		Count:         r.Count,
		Pipeline:      r.Pipeline,
		Complexity:    r.Complexity,
		Style:         r.Style,
		IncludeFacts:  r.IncludeFacts,
		ExistingTerms: r.ExistingTerms,
	}
}

// Counts summarizes an Outcome.
type Counts struct {
	Requested  int `json:"requested"`
	Generated  int `json:"generated"`
	Stored     int `json:"stored"`
	Review     int `json:"review"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Reused     int `json:"reused"`
}

// ItemResult reports the routing of one candidate.
type ItemResult struct {
	Term       string     `json:"term"`
	Status     ItemStatus `json:"status"`
	Confidence float64    `json:"confidence"`
	TermID     *uuid.UUID `json:"term_id,omitempty"`
	ReviewID   *uuid.UUID `json:"review_id,omitempty"`
	Reasons    []string   `json:"reasons,omitempty"`
}

// Outcome is the result of a generation request. Partial success is normal:
// rejected and duplicate candidates are reported, never fatal.
type Outcome struct {
	TopicID      uuid.UUID           `json:"topic_id"`
	Pipeline     generation.Pipeline `json:"pipeline"`
	Terms        []*domain.Term      `json:"terms"`
	Facts        []string            `json:"facts,omitempty"`
	Usage        generation.Usage    `json:"usage"`
	Cached       bool                `json:"cached"`
	QuotaWarning bool                `json:"quota_warning"`
	QuotaMessage string              `json:"quota_message,omitempty"`
	Counts       Counts              `json:"counts"`
	Items        []ItemResult        `json:"items"`
}

// GenerationService runs generation requests and freshness ingests through
// the full pipeline.
type GenerationService interface {
	// Generate admits the request, reuses the topic's canonical set where it
	// can and generates only the shortfall. Quota rejections are returned as
	// *quota.ExceededError, invalid parameters wrap ErrInvalidRequest and
	// generation failures wrap generation.ErrGenerationFailed.
	Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*Outcome, error)

	// IngestDiscovered generates candidates from items found by a freshness
	// poll and routes them like any other candidates.
	IngestDiscovered(ctx context.Context, payload task.FreshnessPayload) error
}

type generationService struct {
	tx        store.Transactor
	topics    store.TopicStore
	sets      store.CanonicalSetStore
	terms     store.TermStore
	generator Generator
	governor  QuotaGovernor
	validator *validation.Validator
	reviews   review.Service
	emitter   events.EventEmitter
	pricing   generation.Pricing
	genCfg    config.GenerationConfig
	threshold float64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

var (
	_ GenerationService = (*generationService)(nil)
	_ task.Ingestor     = (*generationService)(nil)
)

// NewGenerationService creates a GenerationService. m may be nil.
func NewGenerationService(
	tx store.Transactor,
	topics store.TopicStore,
	sets store.CanonicalSetStore,
	terms store.TermStore,
	generator Generator,
	governor QuotaGovernor,
	validator *validation.Validator,
	reviews review.Service,
	emitter events.EventEmitter,
	pricing generation.Pricing,
	genCfg config.GenerationConfig,
	reviewCfg config.ReviewConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) GenerationService {
	if tx == nil || topics == nil || sets == nil || terms == nil {
		panic("stores cannot be nil")
	}
	if generator == nil {
		panic("generator cannot be nil")
	}
	if governor == nil {
		panic("governor cannot be nil")
	}
	if validator == nil {
		panic("validator cannot be nil")
	}
	if reviews == nil {
		panic("review service cannot be nil")
	}
	if emitter == nil {
		panic("emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if genCfg.EstimatedTokensPerTerm <= 0 {
		genCfg.EstimatedTokensPerTerm = 120
	}
	threshold := reviewCfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &generationService{
		tx:        tx,
		topics:    topics,
		sets:      sets,
		terms:     terms,
		generator: generator,
		governor:  governor,
		validator: validator,
		reviews:   reviews,
		emitter:   emitter,
		pricing:   pricing,
		genCfg:    genCfg,
		threshold: threshold,
		metrics:   m,
		logger:    logger.With(slog.String("component", "generation_service")),
	}
}

// estimate sizes a request before it runs.
func (s *generationService) estimate(count int) quota.Estimate {
	completion := count * s.genCfg.EstimatedTokensPerTerm
	return quota.Estimate{
		Tokens:  int64(s.genCfg.EstimatedPromptTokens + completion),
		CostUSD: s.pricing.Cost(s.genCfg.EstimatedPromptTokens, completion),
	}
}

// Generate implements GenerationService.
func (s *generationService) Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*Outcome, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("user_id", userID.String()))

	p, err := req.params().Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	est := s.estimate(p.Count)
	decision, err := s.governor.Admit(ctx, userID, est)
	if err != nil {
		return nil, err
	}

	topic, set, err := s.resolveTopic(ctx, p.Topic)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		TopicID:      topic.ID,
		Pipeline:     p.Pipeline,
		QuotaWarning: decision.Warning,
		QuotaMessage: decision.Message,
		Terms:        []*domain.Term{},
		Items:        []ItemResult{},
	}
	out.Counts.Requested = p.Count

	reused, err := s.reuse(ctx, set, p)
	if err != nil {
		return nil, err
	}
	for _, t := range reused {
		id := t.ID
		out.Terms = append(out.Terms, t)
		out.Items = append(out.Items, ItemResult{Term: t.Text, Status: ItemReused, Confidence: t.Confidence, TermID: &id})
	}
	out.Counts.Reused = len(reused)

	shortfall := p.Count - len(reused)
	if shortfall <= 0 {
		log.Info("served generation from canonical set",
			slog.String("topic", topic.Name),
			slog.Int("reused", len(reused)))
		return out, nil
	}

	// Everything already in the topic is excluded so only new terms come back.
	keys, err := s.terms.ListKeysByTopic(ctx, topic.ID)
	if err != nil {
		return nil, stepError("load topic terms", err)
	}
	p.Count = shortfall
	p.ExistingTerms = append(append([]string(nil), p.ExistingTerms...), keys...)

	res, err := s.generator.Generate(ctx, p)
	if err != nil {
		if used, ok := generation.ConsumedUsage(err); ok {
			s.settle(ctx, userID, est, used)
		}
		return nil, err
	}
	out.Facts = res.Facts
	out.Usage = res.Usage
	out.Cached = res.Cached
	out.Counts.Generated = len(res.Candidates)
	out.Counts.Duplicates = res.Duplicates

	stored := s.route(ctx, topic, set, res.Candidates, 0, out)
	s.emitRelationships(ctx, stored, "generation")

	if !res.Cached {
		s.settle(ctx, userID, est, res.Usage)
	}

	log.Info("generation request finished",
		slog.String("topic", topic.Name),
		slog.Int("requested", out.Counts.Requested),
		slog.Int("reused", out.Counts.Reused),
		slog.Int("stored", out.Counts.Stored),
		slog.Int("review", out.Counts.Review),
		slog.Int("rejected", out.Counts.Rejected),
		slog.Int("duplicates", out.Counts.Duplicates),
		slog.Bool("cached", out.Cached))
	return out, nil
}

// settle charges measured model usage against the user's reservation.
func (s *generationService) settle(ctx context.Context, userID uuid.UUID, est quota.Estimate, used generation.Usage) {
	if used.IsZero() {
		return
	}
	if err := s.governor.Settle(ctx, userID, est, int64(used.TotalTokens), used.CostUSD); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to record usage",
			slog.String("user_id", userID.String()),
			slog.Int("tokens", used.TotalTokens),
			slog.String("error", err.Error()))
	}
}

// resolveTopic returns the topic named name and its canonical set, creating
// and linking both if needed.
func (s *generationService) resolveTopic(ctx context.Context, name string) (*domain.Topic, *domain.CanonicalSet, error) {
	var (
		topic *domain.Topic
		set   *domain.CanonicalSet
	)
	err := s.tx.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		topic, _, err = s.topics.WithTx(tx).GetOrCreateByName(ctx, name)
		if err != nil {
			return err
		}
		set, err = s.sets.WithTx(tx).GetOrCreate(ctx, topic)
		if err != nil {
			return err
		}
		if topic.CanonicalSetID == nil || *topic.CanonicalSetID != set.ID {
			if err := s.topics.WithTx(tx).SetCanonicalSet(ctx, topic.ID, set.ID); err != nil {
				return err
			}
			topic.CanonicalSetID = &set.ID
		}
		return nil
	})
	if err != nil {
		return nil, nil, stepError("resolve topic", err)
	}
	return topic, set, nil
}

// reuse returns up to p.Count canonical terms the caller does not already
// have.
func (s *generationService) reuse(ctx context.Context, set *domain.CanonicalSet, p generation.Params) ([]*domain.Term, error) {
	if set.TermCount == 0 {
		return nil, nil
	}
	terms, err := s.terms.ListByCanonicalSet(ctx, set.ID, p.Count+len(p.ExistingTerms))
	if err != nil {
		return nil, stepError("load canonical set", err)
	}
	excluded := make(map[string]struct{}, len(p.ExistingTerms))
	for _, t := range p.ExistingTerms {
		excluded[domain.NormalizeKey(t)] = struct{}{}
	}
	out := make([]*domain.Term, 0, p.Count)
	for _, t := range terms {
		if len(out) == p.Count {
			break
		}
		if _, skip := excluded[t.TextKey]; !skip {
			out = append(out, t)
		}
	}
	return out, nil
}

// route sanitizes, validates and scores each candidate, then stores it,
// queues it for review or rejects it. It returns the IDs of stored terms.
func (s *generationService) route(
	ctx context.Context,
	topic *domain.Topic,
	set *domain.CanonicalSet,
	candidates []domain.Candidate,
	freshness float64,
	out *Outcome,
) []uuid.UUID {
	log := logger.FromContextOrDefault(ctx, s.logger)
	seen := make(map[string]bool, len(candidates))
	var stored []uuid.UUID

	for _, raw := range candidates {
		c := s.validator.SanitizeCandidate(raw)
		res := s.validator.Validate(c, topic.Name)
		item := ItemResult{Term: c.Term}

		if !res.IsValid {
			item.Status = ItemRejected
			item.Reasons = res.Codes()
			s.record(out, item)
			continue
		}

		key := c.Key()
		if seen[key] {
			item.Status = ItemDuplicate
			s.record(out, item)
			continue
		}
		seen[key] = true

		reliability := domain.ReliabilityMedium
		if c.Source != nil && c.Source.Reliability != "" {
			reliability = c.Source.Reliability
		}
		item.Confidence = validation.Confidence(c, res, reliability)

		if res.Verdict == validation.VerdictAmbiguous || item.Confidence < s.threshold {
			reason := reviewReason(res, item.Confidence, s.threshold)
			ri, err := s.reviews.Submit(ctx, topic.ID, c, item.Confidence, freshness, reason)
			if err != nil {
				log.Error("failed to queue candidate for review",
					slog.String("term", c.Term),
					slog.String("error", err.Error()))
				item.Status = ItemRejected
				item.Reasons = []string{"review_unavailable"}
				s.record(out, item)
				continue
			}
			item.Status = ItemReview
			item.ReviewID = &ri.ID
			s.record(out, item)
			continue
		}

		term, err := s.store(ctx, topic, set, c, item.Confidence, freshness)
		switch {
		case errors.Is(err, store.ErrTermExists):
			item.Status = ItemDuplicate
		case err != nil:
			log.Error("failed to store term",
				slog.String("term", c.Term),
				slog.String("error", err.Error()))
			item.Status = ItemRejected
			item.Reasons = []string{"store_failed"}
		default:
			id := term.ID
			item.Status = ItemStored
			item.TermID = &id
			out.Terms = append(out.Terms, term)
			stored = append(stored, id)
		}
		s.record(out, item)
	}
	return stored
}

func (s *generationService) record(out *Outcome, item ItemResult) {
	switch item.Status {
	case ItemStored:
		out.Counts.Stored++
	case ItemReview:
		out.Counts.Review++
	case ItemRejected:
		out.Counts.Rejected++
	case ItemDuplicate:
		out.Counts.Duplicates++
	}
	out.Items = append(out.Items, item)
	s.metrics.ObserveCandidate(string(item.Status), item.Confidence)
}

func reviewReason(res validation.Result, confidence, threshold float64) string {
	if res.Verdict == validation.VerdictAmbiguous {
		return "content flagged: " + strings.Join(res.Flags, ", ")
	}
	return fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, threshold)
}

// store saves a term and appends it to the canonical set in one transaction.
func (s *generationService) store(
	ctx context.Context,
	topic *domain.Topic,
	set *domain.CanonicalSet,
	c domain.Candidate,
	confidence, freshness float64,
) (*domain.Term, error) {
	term, err := domain.NewTermFromCandidate(topic.ID, &set.ID, c, confidence, freshness)
	if err != nil {
		return nil, err
	}
	err = s.tx.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.terms.WithTx(tx).Create(ctx, term); err != nil {
			return err
		}
		return s.sets.WithTx(tx).AppendTerm(ctx, set.ID)
	})
	if err != nil {
		return nil, err
	}
	return term, nil
}

// emitRelationships requests background tagging of newly stored terms.
// Failures are logged; extraction never blocks ingestion.
func (s *generationService) emitRelationships(ctx context.Context, termIDs []uuid.UUID, source string) {
	if len(termIDs) == 0 {
		return
	}
	payload := task.RelationshipPayload{TermIDs: termIDs}
	if err := events.Emit(ctx, s.emitter, task.TaskTypeRelationshipExtraction, source, payload); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to request relationship extraction",
			slog.Int("terms", len(termIDs)),
			slog.String("error", err.Error()))
	}
}

// IngestDiscovered implements GenerationService and task.Ingestor.
func (s *generationService) IngestDiscovered(ctx context.Context, payload task.FreshnessPayload) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("job_id", payload.JobID.String()),
		slog.String("topic_id", payload.TopicID.String()))

	if len(payload.Items) == 0 {
		return nil
	}

	topic, err := s.topics.GetByID(ctx, payload.TopicID)
	if err != nil {
		if errors.Is(err, store.ErrTopicNotFound) {
			return task.Permanent(fmt.Errorf("%w: %s", ErrTopicNotFound, payload.TopicID))
		}
		return stepError("load topic", err)
	}
	set, err := s.sets.GetOrCreate(ctx, topic)
	if err != nil {
		return stepError("resolve canonical set", err)
	}
	keys, err := s.terms.ListKeysByTopic(ctx, topic.ID)
	if err != nil {
		return stepError("load topic terms", err)
	}

	material := make([]string, 0, len(payload.Items))
	freshness := 0.0
	best := payload.Items[0]
	for _, item := range payload.Items {
		text := strings.TrimSpace(item.Source.Title + ". " + item.Summary)
		if text != "." {
			material = append(material, text)
		}
		if item.Score > freshness {
			freshness = item.Score
			best = item
		}
	}

	count := min(len(payload.Items), s.ingestCount())
	res, err := s.generator.Generate(ctx, generation.Params{
		Topic:         topic.Name,
		Count:         count,
		Pipeline:      generation.PipelineModelFirst,
		ExistingTerms: keys,
		Material:      material,
	})
	if err != nil {
		if !generation.IsRetryable(err) {
			return task.Permanent(err)
		}
		return err
	}

	// Candidates drawn from discovered items carry the best item's provenance.
	src := domain.Source{Name: best.Source.Name, URL: best.Source.URL, Reliability: best.Source.Reliability}
	candidates := make([]domain.Candidate, len(res.Candidates))
	for i, c := range res.Candidates {
		if c.Source == nil {
			c.Source = &src
		}
		candidates[i] = c
	}

	out := &Outcome{TopicID: topic.ID}
	stored := s.route(ctx, topic, set, candidates, freshness, out)
	s.emitRelationships(ctx, stored, "freshness")

	log.Info("ingested discovered items",
		slog.Int("items", len(payload.Items)),
		slog.Int("stored", out.Counts.Stored),
		slog.Int("review", out.Counts.Review),
		slog.Int("rejected", out.Counts.Rejected),
		slog.Float64("freshness", freshness))
	return nil
}

func (s *generationService) ingestCount() int {
	if s.genCfg.DefaultCount > 0 {
		return s.genCfg.DefaultCount
	}
	return generation.DefaultCount
}
