package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
)

// Monitor manages realtime freshness monitors.
type Monitor interface {
	Start(ctx context.Context, opts freshness.StartOptions) (*domain.MonitoringJob, []domain.ClassifiedSource, error)
	Stop(ctx context.Context, id uuid.UUID, reason string) (*domain.MonitoringJob, error)
	Status(ctx context.Context) ([]freshness.JobStatus, error)
}

// RealtimeHandler serves the monitoring endpoints. Routes are expected
// behind middleware.RequireModerator.
type RealtimeHandler struct {
	monitor Monitor
	logger  *slog.Logger
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(monitor Monitor, logger *slog.Logger) *RealtimeHandler {
	if monitor == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("monitor cannot be nil for RealtimeHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for RealtimeHandler")
	}
	return &RealtimeHandler{
		monitor: monitor,
		logger:  logger.With(slog.String("component", "realtime_handler")),
	}
}

// Start handles POST /api/realtime/start.
func (h *RealtimeHandler) Start(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}
	var req StartMonitoringRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job, sources, err := h.monitor.Start(r.Context(), freshness.StartOptions{
		Topic:               req.Topic,
		MaxSources:          req.MaxSources,
		IntervalMinutes:     req.MonitoringInterval,
		PrioritizeFreshness: req.PrioritizeFreshness,
		CreatedBy:           userID,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to start monitoring")
		return
	}

	log.Info("monitoring started",
		slog.String("job_id", job.ID.String()),
		slog.String("topic", job.TopicName),
		slog.Int("sources", len(sources)))
	shared.RespondWithJSON(w, r, http.StatusCreated, StartMonitoringResponse{
		MonitoringID: job.ID,
		Topic:        job.TopicName,
		Interval:     job.IntervalMinutes,
		Sources:      sources,
	})
}

// Stop handles POST /api/realtime/stop.
func (h *RealtimeHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req StopMonitoringRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	job, err := h.monitor.Stop(r.Context(), req.MonitoringID, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to stop monitoring")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, StopMonitoringResponse{
		MonitoringID: job.ID,
		Active:       job.Active,
		StopReason:   job.StopReason,
	})
}

// Status handles GET /api/realtime/status.
func (h *RealtimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.monitor.Status(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read monitoring status")
		return
	}
	if statuses == nil {
		statuses = []freshness.JobStatus{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"monitors": statuses,
		"count":    len(statuses),
	})
}
