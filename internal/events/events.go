package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskRequestEvent represents a request to create a background task.
type TaskRequestEvent struct {
	ID uuid.UUID `json:"id"`

	// Type is the task type that should be created.
	Type string `json:"type"`

	// Source names the component that emitted the event, for logs.
	Source string `json:"source"`

	// Payload is the task payload, already encoded as JSON.
	Payload json.RawMessage `json:"payload"`

	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates an event with a JSON-encoded payload.
func NewTaskRequestEvent(taskType, source string, payload any) (*TaskRequestEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", taskType, err)
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      taskType,
		Source:    source,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler processes task request events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter publishes task request events to registered handlers.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}

// Emit builds an event and publishes it in one step.
func Emit(ctx context.Context, emitter EventEmitter, taskType, source string, payload any) error {
	event, err := NewTaskRequestEvent(taskType, source, payload)
	if err != nil {
		return err
	}
	return emitter.EmitEvent(ctx, event)
}
