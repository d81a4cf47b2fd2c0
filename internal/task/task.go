package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/store"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypeRelationshipExtraction tags approved terms and links them into the graph
	TaskTypeRelationshipExtraction = "relationship_extraction"

	// TaskTypeFreshnessIngest turns items found by a freshness poll into candidates
	TaskTypeFreshnessIngest = "freshness_ingest"
)

// Common task errors
var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidPayload  = errors.New("invalid task payload")
	ErrTaskNotFound    = store.ErrTaskNotFound
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the runner marks the task failed without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as JSON
	Payload() []byte

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// Record is the persisted form of a task.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       TaskStatus      `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	NextRunAt    time.Time       `json:"next_run_at"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewRecord creates a pending record due immediately.
func NewRecord(taskType string, payload []byte, maxAttempts int, now time.Time) *Record {
	now = now.UTC()
	return &Record{
		ID:          uuid.New(),
		Type:        taskType,
		Payload:     payload,
		Status:      TaskStatusPending,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a new task record
	SaveTask(ctx context.Context, rec *Record) error

	// ClaimDue moves up to limit pending tasks whose next_run_at has passed
	// to processing and increments their attempt counter. Rows claimed by
	// another worker are skipped, never returned twice.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*Record, error)

	// MarkCompleted records a successful execution
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// MarkRetry returns a task to pending, due at nextRun
	MarkRetry(ctx context.Context, id uuid.UUID, nextRun time.Time, errMsg string) error

	// MarkFailed records a terminal failure
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ResetStuck returns tasks that have been processing for longer than
	// olderThan to pending, or to failed when they have no attempts left.
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	// This lets a service persist a task atomically with its own writes.
	WithTx(tx *sql.Tx) TaskStore
}
