package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// RelationshipPayload is the stored payload of a relationship extraction task.
type RelationshipPayload struct {
	TermIDs []uuid.UUID `json:"term_ids"`
}

// TermProcessor tags terms and links them into the graph.
type TermProcessor interface {
	Process(ctx context.Context, termIDs []uuid.UUID) error
}

// FreshnessPayload is the stored payload of a freshness ingest task.
type FreshnessPayload struct {
	JobID        uuid.UUID        `json:"job_id"`
	TopicID      uuid.UUID        `json:"topic_id"`
	Topic        string           `json:"topic"`
	Items        []DiscoveredItem `json:"items"`
	DiscoveredAt time.Time        `json:"discovered_at"`
}

// DiscoveredItem is one new source item with its freshness-boosted score.
type DiscoveredItem struct {
	Source      domain.ClassifiedSource `json:"source"`
	Summary     string                  `json:"summary"`
	BaseQuality float64                 `json:"base_quality"`
	Multiplier  float64                 `json:"multiplier"`
	Score       float64                 `json:"score"`
	Breaking    bool                    `json:"breaking"`
}

// Ingestor turns discovered items into routed candidates.
type Ingestor interface {
	IngestDiscovered(ctx context.Context, payload FreshnessPayload) error
}

// payloadTask is a Task whose Execute decodes its payload into P first.
type payloadTask[P any] struct {
	rec *Record
	run func(ctx context.Context, p P) error
}

func (t *payloadTask[P]) ID() uuid.UUID   { return t.rec.ID }
func (t *payloadTask[P]) Type() string    { return t.rec.Type }
func (t *payloadTask[P]) Payload() []byte { return t.rec.Payload }

func (t *payloadTask[P]) Execute(ctx context.Context) error {
	var p P
	if err := json.Unmarshal(t.rec.Payload, &p); err != nil {
		return Permanent(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	return t.run(ctx, p)
}

// NewRelationshipTaskFactory builds relationship extraction tasks.
func NewRelationshipTaskFactory(p TermProcessor) Factory {
	return func(rec *Record) (Task, error) {
		if p == nil {
			return nil, fmt.Errorf("relationship processor cannot be nil")
		}
		return &payloadTask[RelationshipPayload]{
			rec: rec,
			run: func(ctx context.Context, payload RelationshipPayload) error {
				if len(payload.TermIDs) == 0 {
					return Permanent(fmt.Errorf("%w: no term ids", ErrInvalidPayload))
				}
				return p.Process(ctx, payload.TermIDs)
			},
		}, nil
	}
}

// NewFreshnessIngestTaskFactory builds freshness ingest tasks.
func NewFreshnessIngestTaskFactory(ing Ingestor) Factory {
	return func(rec *Record) (Task, error) {
		if ing == nil {
			return nil, fmt.Errorf("freshness ingestor cannot be nil")
		}
		return &payloadTask[FreshnessPayload]{
			rec: rec,
			run: func(ctx context.Context, payload FreshnessPayload) error {
				if payload.TopicID == uuid.Nil {
					return Permanent(fmt.Errorf("%w: missing topic", ErrInvalidPayload))
				}
				return ing.IngestDiscovered(ctx, payload)
			},
		}, nil
	}
}
