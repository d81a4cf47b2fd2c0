package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRequestEvent(t *testing.T) {
	type payload struct {
		TermIDs []uuid.UUID `json:"term_ids"`
	}
	ids := []uuid.UUID{uuid.New(), uuid.New()}

	event, err := NewTaskRequestEvent("relationship_extraction", "review_service", payload{TermIDs: ids})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "relationship_extraction", event.Type)
	assert.Equal(t, "review_service", event.Source)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)

	var decoded payload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, ids, decoded.TermIDs)
}

func TestNewTaskRequestEventUnencodablePayload(t *testing.T) {
	_, err := NewTaskRequestEvent("freshness_ingest", "freshness", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "freshness_ingest")
}

// recordingHandler captures every event it receives.
type recordingHandler struct {
	events []*TaskRequestEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *TaskRequestEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestEmit(t *testing.T) {
	emitter := NewInMemoryEventEmitter(nil)
	handler := &recordingHandler{}
	emitter.RegisterHandler(handler)

	require.NoError(t, Emit(context.Background(), emitter, "freshness_ingest", "freshness", map[string]string{"topic": "ai"}))
	require.Len(t, handler.events, 1)
	assert.JSONEq(t, `{"topic":"ai"}`, string(handler.events[0].Payload))

	err := Emit(context.Background(), emitter, "x", "y", make(chan int))
	assert.Error(t, err)
	assert.Len(t, handler.events, 1)
}

var errHandler = errors.New("handler error")
