package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/lexis-api/internal/events"
)

// EventRecorder is an events.EventEmitter that keeps every event.
type EventRecorder struct {
	mu     sync.Mutex
	events []*events.TaskRequestEvent
	// Err, when set, is returned by EmitEvent after recording.
	Err error
}

var _ events.EventEmitter = (*EventRecorder)(nil)

// EmitEvent implements events.EventEmitter.
func (r *EventRecorder) EmitEvent(_ context.Context, event *events.TaskRequestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns the recorded events of taskType, or all events when
// taskType is empty.
func (r *EventRecorder) Events(taskType string) []*events.TaskRequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.TaskRequestEvent
	for _, e := range r.events {
		if taskType == "" || e.Type == taskType {
			out = append(out, e)
		}
	}
	return out
}
