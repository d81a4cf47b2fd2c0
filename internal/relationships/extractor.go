package relationships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
)

// Mirror copies graph writes to an external graph database.
type Mirror interface {
	Sync(ctx context.Context, terms []*domain.Term, tags map[uuid.UUID][]domain.TagScore, edges []*domain.GraphEdge) error
}

// Extractor tags terms and links them into the graph.
type Extractor struct {
	tx     store.Transactor
	topics store.TopicStore
	terms  store.TermStore
	tags   store.TagStore
	edges  store.EdgeStore
	tagger Tagger
	mirror Mirror
	cfg    config.RelationshipsConfig
	logger *slog.Logger
}

var _ task.TermProcessor = (*Extractor)(nil)

// NewExtractor creates an Extractor. mirror may be nil.
func NewExtractor(
	tx store.Transactor,
	topics store.TopicStore,
	terms store.TermStore,
	tags store.TagStore,
	edges store.EdgeStore,
	tagger Tagger,
	mirror Mirror,
	cfg config.RelationshipsConfig,
	logger *slog.Logger,
) *Extractor {
	if tx == nil || topics == nil || terms == nil || tags == nil || edges == nil {
		panic("stores cannot be nil")
	}
	if tagger == nil {
		panic("tagger cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 200
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = 0.35
	}
	return &Extractor{
		tx:     tx,
		topics: topics,
		terms:  terms,
		tags:   tags,
		edges:  edges,
		tagger: tagger,
		mirror: mirror,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "relationship_extractor")),
	}
}

// ExtractTags returns the tags for a term without persisting them.
func (e *Extractor) ExtractTags(ctx context.Context, term *domain.Term) ([]domain.TagScore, error) {
	tags, err := e.tagger.Tags(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, ErrNoTags
	}
	return tags, nil
}

// Process tags each approved term among termIDs and upserts its edges
// against a pool of terms from the same topic and its siblings. Each term is
// written in its own transaction, so one failure does not undo the others.
// Reruns refresh existing edges and tag links instead of duplicating them.
func (e *Extractor) Process(ctx context.Context, termIDs []uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, e.logger)
	start := time.Now()

	terms, err := e.terms.GetByIDs(ctx, termIDs)
	if err != nil {
		return &ExtractionError{Stage: "load", TermIDs: termIDs, Err: err}
	}
	if len(terms) == 0 {
		log.Debug("no approved terms to process", slog.Int("requested", len(termIDs)))
		return nil
	}

	exclude := make([]uuid.UUID, 0, len(terms))
	for _, t := range terms {
		exclude = append(exclude, t.ID)
	}

	pools := make(map[uuid.UUID][]*domain.Term)
	var (
		failed   []uuid.UUID
		firstErr error
		done     []*domain.Term
		allTags  = make(map[uuid.UUID][]domain.TagScore)
		allEdges []*domain.GraphEdge
	)
	fail := func(id uuid.UUID, err error) {
		failed = append(failed, id)
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			fail(term.ID, err)
			continue
		}

		pool, ok := pools[term.TopicID]
		if !ok {
			pool, err = e.pool(ctx, term.TopicID, exclude)
			if err != nil {
				fail(term.ID, err)
				continue
			}
			pools[term.TopicID] = pool
		}
		// Terms of the same batch are compared with each other too.
		candidates := append(append([]*domain.Term(nil), pool...), terms...)

		tags, err := e.ExtractTags(ctx, term)
		if err != nil {
			fail(term.ID, fmt.Errorf("tagging %s: %w", term.ID, err))
			continue
		}
		edges := ExtractRelationships(term, candidates, e.cfg.SimilarityThreshold)

		if err := e.persist(ctx, term, tags, edges); err != nil {
			log.Error("failed to persist relationships",
				slog.String("term_id", term.ID.String()),
				slog.String("error", err.Error()))
			fail(term.ID, err)
			continue
		}

		done = append(done, term)
		allTags[term.ID] = tags
		allEdges = append(allEdges, edges...)
	}

	if len(done) > 0 {
		e.sync(ctx, done, index(pools, terms), allTags, allEdges)
	}

	log.Info("relationship extraction finished",
		slog.Int("terms", len(done)),
		slog.Int("edges", len(allEdges)),
		slog.Int("failed", len(failed)),
		slog.Duration("elapsed", time.Since(start)))

	if len(failed) > 0 {
		return &ExtractionError{Stage: "extract", TermIDs: failed, Err: firstErr}
	}
	return nil
}

// pool loads the comparison pool for a topic.
func (e *Extractor) pool(ctx context.Context, topicID uuid.UUID, exclude []uuid.UUID) ([]*domain.Term, error) {
	topicIDs := []uuid.UUID{topicID}
	if e.cfg.TopicBreadth > 0 {
		siblings, err := e.topics.ListSiblings(ctx, topicID, e.cfg.TopicBreadth)
		if err != nil {
			return nil, fmt.Errorf("listing sibling topics: %w", err)
		}
		for _, s := range siblings {
			if s.ID != topicID {
				topicIDs = append(topicIDs, s.ID)
			}
		}
	}
	pool, err := e.terms.ListPool(ctx, topicIDs, exclude, e.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("loading term pool: %w", err)
	}
	return pool, nil
}

func (e *Extractor) persist(ctx context.Context, term *domain.Term, tags []domain.TagScore, edges []*domain.GraphEdge) error {
	return e.tx.InTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		tagStore := e.tags.WithTx(tx)
		edgeStore := e.edges.WithTx(tx)

		for _, score := range tags {
			tag, err := tagStore.Ensure(ctx, score.Name, "")
			if err != nil {
				if errors.Is(err, store.ErrInvalidEntity) {
					continue
				}
				return fmt.Errorf("ensuring tag %q: %w", score.Name, err)
			}
			inserted, err := tagStore.Attach(ctx, term.ID, tag.ID, score.Confidence)
			if err != nil {
				return fmt.Errorf("attaching tag %q: %w", score.Name, err)
			}
			if inserted {
				if err := tagStore.Observe(ctx, tag.ID, score.Confidence); err != nil {
					return fmt.Errorf("observing tag %q: %w", score.Name, err)
				}
			}
		}

		for _, edge := range edges {
			if err := edgeStore.Upsert(ctx, edge); err != nil {
				return fmt.Errorf("upserting %s edge: %w", edge.Type, err)
			}
		}
		return nil
	})
}

// sync mirrors the processed terms. Mirror failures are logged; the
// relational store stays authoritative.
func (e *Extractor) sync(
	ctx context.Context,
	done []*domain.Term,
	known map[uuid.UUID]*domain.Term,
	tags map[uuid.UUID][]domain.TagScore,
	edges []*domain.GraphEdge,
) {
	if e.mirror == nil {
		return
	}
	nodes := make([]*domain.Term, 0, len(done))
	seen := make(map[uuid.UUID]bool)
	for _, t := range done {
		seen[t.ID] = true
		nodes = append(nodes, t)
	}
	for _, edge := range edges {
		if !seen[edge.TargetTermID] {
			if t, ok := known[edge.TargetTermID]; ok {
				seen[t.ID] = true
				nodes = append(nodes, t)
			}
		}
	}
	if err := e.mirror.Sync(ctx, nodes, tags, edges); err != nil {
		logger.FromContextOrDefault(ctx, e.logger).Warn("graph mirror sync failed",
			slog.Int("terms", len(nodes)),
			slog.String("error", err.Error()))
	}
}

// index maps every term that may be the target of an edge by ID.
func index(pools map[uuid.UUID][]*domain.Term, batch []*domain.Term) map[uuid.UUID]*domain.Term {
	out := make(map[uuid.UUID]*domain.Term)
	for _, pool := range pools {
		for _, t := range pool {
			out[t.ID] = t
		}
	}
	for _, t := range batch {
		out[t.ID] = t
	}
	return out
}
