package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is the bounded in-memory buffer between the claim loop and
// the workers. It only ever holds records already claimed from the store.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  chan *Record
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		tasks:  make(chan *Record, size),
		logger: logger,
	}
}

// Enqueue adds a record to the queue for processing
// Returns an error if the queue is full or closed
func (q *TaskQueue) Enqueue(rec *Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- rec:
		q.logger.Debug("task enqueued",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Free returns how many more records fit without blocking.
func (q *TaskQueue) Free() int {
	return cap(q.tasks) - len(q.tasks)
}

// Close closes the task queue, preventing further task submission
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// Drain removes and returns every buffered record. Only call after Close.
func (q *TaskQueue) Drain() []*Record {
	var recs []*Record
	for rec := range q.tasks {
		recs = append(recs, rec)
	}
	return recs
}

// GetChannel returns a read-only channel for consuming records
func (q *TaskQueue) GetChannel() <-chan *Record {
	return q.tasks
}
