package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	"github.com/phrazzld/lexis-api/internal/redact"
	"github.com/sethvargo/go-retry"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize bounds how many claimed tasks are buffered in memory
	QueueSize int

	// PollInterval is how often the store is checked for due tasks
	PollInterval time.Duration

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// MaxAttempts is stamped on newly submitted tasks
	MaxAttempts int

	// BaseBackoff is the delay before the first retry. Each retry doubles it.
	BaseBackoff time.Duration

	// MaxBackoff caps the retry delay
	MaxBackoff time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		PollInterval:           5 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		MaxAttempts:            5,
		BaseBackoff:            10 * time.Second,
		MaxBackoff:             30 * time.Minute,
	}
}

// TaskRunner manages background task processing
type TaskRunner struct {
	store      TaskStore
	registry   *Registry
	queue      *TaskQueue
	wake       chan struct{}
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	errHandler func(rec *Record, err error)
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(
	store TaskStore,
	registry *Registry,
	config TaskRunnerConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *TaskRunner {
	defaults := DefaultTaskRunnerConfig()
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = defaults.StuckTaskCheckInterval
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		registry:   registry,
		queue:      NewTaskQueue(config.QueueSize, logger),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		errHandler: func(rec *Record, err error) {
			logger.Error("task execution failed",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"attempts", rec.Attempts,
				"error", redact.Error(err))
		},
	}
}

// SetErrorHandler allows setting a custom error handler function
func (r *TaskRunner) SetErrorHandler(handler func(rec *Record, err error)) {
	r.errHandler = handler
}

// Submit persists a new task and wakes the poller. The payload is encoded
// as JSON unless it already is a []byte or json.RawMessage.
func (r *TaskRunner) Submit(ctx context.Context, taskType string, payload any) (uuid.UUID, error) {
	return r.SubmitWith(ctx, r.store, taskType, payload)
}

// SubmitWith is Submit against a specific store, typically one bound to a
// caller's transaction with WithTx. The poller is woken either way; a task
// not yet committed is simply picked up on a later poll.
func (r *TaskRunner) SubmitWith(ctx context.Context, store TaskStore, taskType string, payload any) (uuid.UUID, error) {
	if !r.registry.Has(taskType) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}

	var raw []byte
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		raw = encoded
	}

	rec := NewRecord(taskType, raw, r.config.MaxAttempts, r.now())
	if err := store.SaveTask(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save task: %w", err)
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}

	r.logger.Debug("task submitted", "task_id", rec.ID, "task_type", rec.Type)
	return rec.ID, nil
}

// Start begins claiming and processing tasks. Tasks left in processing by a
// crashed instance are reclaimed by the stuck task monitor once they age
// past StuckTaskAge.
func (r *TaskRunner) Start() error {
	if r.registry == nil {
		return fmt.Errorf("task runner requires a registry")
	}

	r.logger.Info("starting task runner",
		"worker_count", r.config.WorkerCount,
		"queue_size", cap(r.queue.tasks),
		"task_types", r.registry.Types())

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(2)
	go r.poller()
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner. Running tasks see their
// context cancelled. Buffered tasks that never started are released back
// to pending.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.queue.Close()

	ctx := context.Background()
	for _, rec := range r.queue.Drain() {
		if err := r.store.MarkRetry(ctx, rec.ID, r.now(), "released on shutdown"); err != nil {
			r.logger.Error("failed to release buffered task", "task_id", rec.ID, "error", err)
		}
	}
}

// poller claims due tasks whenever the interval elapses or a submission
// wakes it.
func (r *TaskRunner) poller() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	r.claim()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.claim()
		case <-r.wake:
			r.claim()
		}
	}
}

// claim fills the free queue capacity with due tasks.
func (r *TaskRunner) claim() {
	free := r.queue.Free()
	if free <= 0 {
		return
	}

	recs, err := r.store.ClaimDue(r.ctx, free, r.now())
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("failed to claim due tasks", "error", redact.Error(err))
		}
		return
	}

	for _, rec := range recs {
		if err := r.queue.Enqueue(rec); err != nil {
			r.logger.Warn("claimed task could not be buffered, releasing",
				"task_id", rec.ID,
				"error", err)
			_ = r.store.MarkRetry(r.ctx, rec.ID, r.now(), "released: queue full")
		}
	}
}

// worker processes tasks from the queue
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case rec, ok := <-r.queue.GetChannel():
			if !ok {
				r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			r.processTask(rec, id)
		}
	}
}

// processTask handles execution of a single claimed task
func (r *TaskRunner) processTask(rec *Record, workerID int) {
	ctx := r.ctx
	log := r.logger.With(
		"task_id", rec.ID,
		"task_type", rec.Type,
		"attempt", rec.Attempts,
		"worker_id", workerID,
	)

	t, err := r.registry.Build(rec)
	if err != nil {
		log.Error("failed to build task from record", "error", err)
		r.fail(ctx, rec, err)
		return
	}

	log.Info("processing task")
	started := r.now()
	err = t.Execute(ctx)
	elapsed := r.now().Sub(started)

	if err == nil {
		log.Info("task completed successfully", "duration_ms", elapsed.Milliseconds())
		r.metrics.ObserveTask(rec.Type, "completed", elapsed)
		if updateErr := r.store.MarkCompleted(context.Background(), rec.ID); updateErr != nil {
			log.Error("failed to mark task completed", "error", updateErr)
		}
		return
	}

	r.errHandler(rec, err)

	if IsPermanent(err) || rec.Attempts >= rec.MaxAttempts {
		r.metrics.ObserveTask(rec.Type, "failed", elapsed)
		r.fail(context.Background(), rec, err)
		return
	}

	delay := Backoff(r.config.BaseBackoff, r.config.MaxBackoff, rec.Attempts)
	r.metrics.ObserveTask(rec.Type, "retried", elapsed)
	log.Warn("task scheduled for retry", "delay", delay.String())
	if updateErr := r.store.MarkRetry(context.Background(), rec.ID, r.now().Add(delay), redact.Error(err)); updateErr != nil {
		log.Error("failed to schedule task retry", "error", updateErr)
	}
}

func (r *TaskRunner) fail(ctx context.Context, rec *Record, err error) {
	if updateErr := r.store.MarkFailed(ctx, rec.ID, redact.Error(err)); updateErr != nil {
		r.logger.Error("failed to mark task failed", "task_id", rec.ID, "error", updateErr)
	}
}

// Backoff returns the delay before retrying after the given attempt: base
// doubled per prior attempt, capped at maxDelay.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	b := retry.WithCappedDuration(maxDelay, retry.NewExponential(base))
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	return delay
}

// stuckTaskMonitor periodically resets tasks that have been in "processing"
// state for too long so the poller can claim them again
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			n, err := r.store.ResetStuck(r.ctx, r.config.StuckTaskAge)
			if err != nil {
				if r.ctx.Err() == nil {
					r.logger.Error("failed to reset stuck tasks", "error", redact.Error(err))
				}
				continue
			}
			if n > 0 {
				r.logger.Info("reset stuck tasks", "count", n)
				select {
				case r.wake <- struct{}{}:
				default:
				}
			}
		}
	}
}
