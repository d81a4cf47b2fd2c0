package api

import (
	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/review"
)

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Topic         string   `json:"topic"         validate:"required,max=200"`
	Count         int      `json:"count"         validate:"gte=0"`
	Pipeline      string   `json:"pipeline"      validate:"omitempty,oneof=model-first source-first"`
	Complexity    string   `json:"complexity"    validate:"omitempty,oneof=beginner intermediate advanced"`
	Style         string   `json:"style"         validate:"omitempty,oneof=casual academic professional"`
	IncludeFacts  bool     `json:"includeFacts"`
	ExistingTerms []string `json:"existingTerms" validate:"max=500,dive,max=200"`
}

func (r GenerateRequest) toService() service.GenerateRequest {
	return service.GenerateRequest{
		Topic:         r.Topic,
		Count:         r.Count,
		Pipeline:      generation.Pipeline(r.Pipeline),
		Complexity:    generation.Complexity(r.Complexity),
		Style:         generation.Style(r.Style),
		IncludeFacts:  r.IncludeFacts,
		ExistingTerms: r.ExistingTerms,
	}
}

// ReviewDecisionRequest is the body of POST /api/review/{id}.
type ReviewDecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes"  validate:"max=2000"`
}

// BulkReviewRequest is the body of POST /api/review/bulk.
type BulkReviewRequest struct {
	IDs    []uuid.UUID `json:"ids"    validate:"required,min=1,max=100"`
	Action string      `json:"action" validate:"required,oneof=approve reject"`
	Notes  string      `json:"notes"  validate:"max=2000"`
}

// BulkReviewResponse wraps the per-item results of a bulk decision.
type BulkReviewResponse struct {
	Results   []review.BulkResult `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// StartMonitoringRequest is the body of POST /api/realtime/start.
type StartMonitoringRequest struct {
	Topic               string `json:"topic"               validate:"required,max=200"`
	MaxSources          int    `json:"maxSources"          validate:"gte=0,lte=100"`
	MonitoringInterval  int    `json:"monitoringInterval"  validate:"gte=0,lte=1440"`
	PrioritizeFreshness bool   `json:"prioritizeFreshness"`
}

// StartMonitoringResponse is returned by POST /api/realtime/start.
type StartMonitoringResponse struct {
	MonitoringID uuid.UUID                 `json:"monitoringId"`
	Topic        string                    `json:"topic"`
	Interval     int                       `json:"monitoringInterval"`
	Sources      []domain.ClassifiedSource `json:"sources"`
}

// StopMonitoringRequest is the body of POST /api/realtime/stop.
type StopMonitoringRequest struct {
	MonitoringID uuid.UUID `json:"monitoringId" validate:"required"`
	Reason       string    `json:"reason"       validate:"max=200"`
}

// StopMonitoringResponse is returned by POST /api/realtime/stop.
type StopMonitoringResponse struct {
	MonitoringID uuid.UUID `json:"monitoringId"`
	Active       bool      `json:"active"`
	StopReason   string    `json:"stopReason,omitempty"`
}
