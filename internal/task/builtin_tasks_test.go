package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	got [][]uuid.UUID
	err error
}

func (p *fakeProcessor) Process(_ context.Context, ids []uuid.UUID) error {
	p.got = append(p.got, ids)
	return p.err
}

type fakeIngestor struct {
	got []FreshnessPayload
}

func (i *fakeIngestor) IngestDiscovered(_ context.Context, p FreshnessPayload) error {
	i.got = append(i.got, p)
	return nil
}

func TestRelationshipTask(t *testing.T) {
	proc := &fakeProcessor{}
	registry := NewRegistry()
	registry.Register(TaskTypeRelationshipExtraction, NewRelationshipTaskFactory(proc))

	ids := []uuid.UUID{uuid.New()}
	rec := NewRecord(TaskTypeRelationshipExtraction, mustJSON(t, RelationshipPayload{TermIDs: ids}), 3, time.Now())

	tk, err := registry.Build(rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, tk.ID())
	require.NoError(t, tk.Execute(context.Background()))
	assert.Equal(t, [][]uuid.UUID{ids}, proc.got)

	t.Run("processor error is retryable", func(t *testing.T) {
		proc.err = errors.New("graph unavailable")
		err := tk.Execute(context.Background())
		require.Error(t, err)
		assert.False(t, IsPermanent(err))
	})

	t.Run("empty payload is permanent", func(t *testing.T) {
		empty := NewRecord(TaskTypeRelationshipExtraction, []byte(`{"term_ids":[]}`), 3, time.Now())
		tk, err := registry.Build(empty)
		require.NoError(t, err)
		err = tk.Execute(context.Background())
		assert.True(t, IsPermanent(err))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("malformed payload is permanent", func(t *testing.T) {
		bad := NewRecord(TaskTypeRelationshipExtraction, []byte(`not json`), 3, time.Now())
		tk, err := registry.Build(bad)
		require.NoError(t, err)
		assert.True(t, IsPermanent(tk.Execute(context.Background())))
	})
}

func TestFreshnessIngestTask(t *testing.T) {
	ing := &fakeIngestor{}
	factory := NewFreshnessIngestTaskFactory(ing)

	payload := FreshnessPayload{JobID: uuid.New(), TopicID: uuid.New(), Topic: "fintech"}
	tk, err := factory(NewRecord(TaskTypeFreshnessIngest, mustJSON(t, payload), 3, time.Now()))
	require.NoError(t, err)
	require.NoError(t, tk.Execute(context.Background()))
	require.Len(t, ing.got, 1)
	assert.Equal(t, "fintech", ing.got[0].Topic)

	missing, err := factory(NewRecord(TaskTypeFreshnessIngest, []byte(`{}`), 3, time.Now()))
	require.NoError(t, err)
	assert.True(t, IsPermanent(missing.Execute(context.Background())))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register("b", funcFactory(nil))
	registry.Register("a", funcFactory(nil))

	assert.True(t, registry.Has("a"))
	assert.False(t, registry.Has("c"))
	assert.Equal(t, []string{"a", "b"}, registry.Types())

	_, err := registry.Build(&Record{Type: "c"})
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}
