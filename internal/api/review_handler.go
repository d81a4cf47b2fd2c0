package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service/review"
)

// ReviewHandler serves the moderation queue. Routes are expected behind
// middleware.RequireModerator.
type ReviewHandler struct {
	reviews review.Service
	logger  *slog.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(reviews review.Service, logger *slog.Logger) *ReviewHandler {
	if reviews == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("review service cannot be nil for ReviewHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ReviewHandler")
	}
	return &ReviewHandler{
		reviews: reviews,
		logger:  logger.With(slog.String("component", "review_handler")),
	}
}

// List handles GET /api/review?status=&topic=&limit=&offset=. The topic
// parameter accepts a topic ID or a topic name.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := review.Filter{Status: domain.ReviewStatus(q.Get("status"))}
	if filter.Status == "" {
		filter.Status = domain.ReviewStatusPending
	}
	if topic := q.Get("topic"); topic != "" {
		if id, err := uuid.Parse(topic); err == nil {
			filter.TopicID = &id
		} else {
			filter.TopicName = topic
		}
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.reviews.List(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list review items")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// Decide handles POST /api/review/{id}.
func (h *ReviewHandler) Decide(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	reviewerID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}
	itemID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	var req ReviewDecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	decision, err := h.reviews.Decide(r.Context(), itemID, domain.ReviewAction(req.Action), reviewerID, req.Notes)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to apply review decision")
		return
	}
	if decision.Conflict != nil {
		log.Info("conflicting review decision",
			slog.String("item_id", itemID.String()),
			slog.String("action", req.Action),
			slog.String("status", string(decision.Status)))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, decision)
}

// Bulk handles POST /api/review/bulk. Per-item failures are reported in the
// results and do not fail the request.
func (h *ReviewHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	reviewerID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}
	var req BulkReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	results, err := h.reviews.Bulk(r.Context(), req.IDs, domain.ReviewAction(req.Action), reviewerID, req.Notes)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to apply bulk decision")
		return
	}

	resp := BulkReviewResponse{Results: results}
	for _, res := range results {
		if res.Error != "" || res.Decision == nil || res.Decision.Conflict != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	log.Debug("bulk review applied",
		slog.String("action", req.Action),
		slog.Int("succeeded", resp.Succeeded),
		slog.Int("failed", resp.Failed))
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
