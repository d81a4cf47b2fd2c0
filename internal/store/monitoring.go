package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// MonitoringJobStore defines the interface for freshness job persistence.
type MonitoringJobStore interface {
	// Create saves a new job.
	Create(ctx context.Context, job *domain.MonitoringJob) error

	// Update saves the mutable fields of a job: active, sources, run
	// timestamps and stop details.
	Update(ctx context.Context, job *domain.MonitoringJob) error

	// GetByID retrieves a job.
	// Returns ErrMonitoringJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MonitoringJob, error)

	// ListActive returns every active job.
	ListActive(ctx context.Context) ([]*domain.MonitoringJob, error)
}
