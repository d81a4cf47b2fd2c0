package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

const monitoringColumns = `id, topic_id, topic_name, industry, interval_minutes, max_sources,
	prioritize_freshness, active, sources, last_run_at, last_discovery_at, created_by,
	stopped_at, stop_reason, created_at, updated_at`

// PostgresMonitoringJobStore implements store.MonitoringJobStore.
type PostgresMonitoringJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.MonitoringJobStore = (*PostgresMonitoringJobStore)(nil)

// NewPostgresMonitoringJobStore creates a monitoring job store.
func NewPostgresMonitoringJobStore(db store.DBTX, logger *slog.Logger) *PostgresMonitoringJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMonitoringJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "monitoring_job_store")),
	}
}

func scanMonitoringJob(row interface{ Scan(...any) error }) (*domain.MonitoringJob, error) {
	var j domain.MonitoringJob
	var sources []byte
	var lastRun, lastDiscovery, stopped sql.NullTime
	if err := row.Scan(
		&j.ID, &j.TopicID, &j.TopicName, &j.Industry, &j.IntervalMinutes, &j.MaxSources,
		&j.PrioritizeFreshness, &j.Active, &sources, &lastRun, &lastDiscovery, &j.CreatedBy,
		&stopped, &j.StopReason, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sources, &j.Sources); err != nil {
		return nil, fmt.Errorf("%w: monitoring sources: %v", domain.ErrInvalidFormat, err)
	}
	j.LastRunAt = nullTimePtr(lastRun)
	j.LastDiscoveryAt = nullTimePtr(lastDiscovery)
	j.StoppedAt = nullTimePtr(stopped)
	return &j, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// Create implements store.MonitoringJobStore.
func (s *PostgresMonitoringJobStore) Create(ctx context.Context, job *domain.MonitoringJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		return err
	}
	sources, err := json.Marshal(job.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal monitoring sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitoring_jobs (`+monitoringColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.TopicID, job.TopicName, job.Industry, job.IntervalMinutes, job.MaxSources,
		job.PrioritizeFreshness, job.Active, sources, job.LastRunAt, job.LastDiscoveryAt, job.CreatedBy,
		job.StoppedAt, job.StopReason, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create monitoring job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return MapError(err)
	}

	log.Info("monitoring job created",
		slog.String("job_id", job.ID.String()),
		slog.String("topic", job.TopicName),
		slog.Int("interval_minutes", job.IntervalMinutes))
	return nil
}

// Update implements store.MonitoringJobStore.
func (s *PostgresMonitoringJobStore) Update(ctx context.Context, job *domain.MonitoringJob) error {
	sources, err := json.Marshal(job.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal monitoring sources: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE monitoring_jobs
		SET active = $2, sources = $3, last_run_at = $4, last_discovery_at = $5,
			stopped_at = $6, stop_reason = $7, updated_at = $8
		WHERE id = $1`,
		job.ID, job.Active, sources, job.LastRunAt, job.LastDiscoveryAt,
		job.StoppedAt, job.StopReason, job.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update monitoring job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrMonitoringJobNotFound)
}

// GetByID implements store.MonitoringJobStore.
func (s *PostgresMonitoringJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.MonitoringJob, error) {
	job, err := scanMonitoringJob(s.db.QueryRowContext(ctx,
		`SELECT `+monitoringColumns+` FROM monitoring_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, mapEntityError(err, store.ErrMonitoringJobNotFound, nil)
	}
	return job, nil
}

// ListActive implements store.MonitoringJobStore.
func (s *PostgresMonitoringJobStore) ListActive(ctx context.Context) ([]*domain.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+monitoringColumns+` FROM monitoring_jobs WHERE active ORDER BY created_at ASC`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.MonitoringJob, 0)
	for rows.Next() {
		j, err := scanMonitoringJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitoring job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
