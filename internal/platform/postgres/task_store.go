package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
)

const taskColumns = `id, type, payload, status, attempts, max_attempts, next_run_at,
	error_message, created_at, updated_at`

// PostgresTaskStore implements the task.TaskStore interface using PostgreSQL
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

var _ task.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    time.Now,
	}
}

// WithTx implements task.TaskStore.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger, now: s.now}
}

func scanTaskRecord(row interface{ Scan(...any) error }) (*task.Record, error) {
	var r task.Record
	var payload []byte
	var status string
	if err := row.Scan(
		&r.ID, &r.Type, &payload, &status, &r.Attempts, &r.MaxAttempts, &r.NextRunAt,
		&r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Payload = payload
	r.Status = task.TaskStatus(status)
	return &r, nil
}

// SaveTask persists a task to the database
func (s *PostgresTaskStore) SaveTask(ctx context.Context, rec *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.Type, payload, string(rec.Status), rec.Attempts, rec.MaxAttempts, rec.NextRunAt,
		rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", rec.ID,
			"task_type", rec.Type,
			"error", err)
		return fmt.Errorf("failed to save task to database: %w", MapError(err))
	}
	return nil
}

// ClaimDue implements task.TaskStore. SKIP LOCKED lets several runners
// claim concurrently without ever handing out the same row twice.
func (s *PostgresTaskStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*task.Record, error) {
	if limit <= 0 {
		return []*task.Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		UPDATE tasks
		SET status = 'processing', attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'pending' AND next_run_at <= $2
			ORDER BY next_run_at ASC, created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		limit, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	recs := make([]*task.Record, 0, limit)
	for rows.Next() {
		rec, err := scanTaskRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return recs, nil
}

func (s *PostgresTaskStore) setStatus(
	ctx context.Context,
	id uuid.UUID,
	status task.TaskStatus,
	nextRun *time.Time,
	errMsg string,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $2, next_run_at = COALESCE($3, next_run_at), error_message = $4, updated_at = $5
		WHERE id = $1`,
		id, string(status), nextRun, errMsg, s.now().UTC(),
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update task status",
			"task_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update task status: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// MarkCompleted implements task.TaskStore.
func (s *PostgresTaskStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, task.TaskStatusCompleted, nil, "")
}

// MarkRetry implements task.TaskStore.
func (s *PostgresTaskStore) MarkRetry(ctx context.Context, id uuid.UUID, nextRun time.Time, errMsg string) error {
	next := nextRun.UTC()
	return s.setStatus(ctx, id, task.TaskStatusPending, &next, errMsg)
}

// MarkFailed implements task.TaskStore.
func (s *PostgresTaskStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.setStatus(ctx, id, task.TaskStatusFailed, nil, errMsg)
}

// ResetStuck implements task.TaskStore.
func (s *PostgresTaskStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			next_run_at = $2,
			error_message = 'reset after being stuck in processing state',
			updated_at = $2
		WHERE status = 'processing' AND updated_at < $1`,
		now.Add(-olderThan), now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck tasks: %w", MapError(err))
	}
	return result.RowsAffected()
}
