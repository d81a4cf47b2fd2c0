package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service"
)

// TermHandler serves the term graph.
type TermHandler struct {
	terms  service.TermService
	logger *slog.Logger
}

// NewTermHandler creates a TermHandler.
func NewTermHandler(terms service.TermService, logger *slog.Logger) *TermHandler {
	if terms == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("term service cannot be nil for TermHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TermHandler")
	}
	return &TermHandler{
		terms:  terms,
		logger: logger.With(slog.String("component", "term_handler")),
	}
}

// Related handles GET /api/terms/{id}/related?limit=.
func (h *TermHandler) Related(w http.ResponseWriter, r *http.Request) {
	termID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := queryInt(r, "limit", service.DefaultRelatedLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	related, err := h.terms.RelatedTerms(r.Context(), termID, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load related terms")
		return
	}
	if related == nil {
		related = []domain.RelatedTerm{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"term_id": termID,
		"related": related,
	})
}

// Tags handles GET /api/terms/{id}/tags.
func (h *TermHandler) Tags(w http.ResponseWriter, r *http.Request) {
	termID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tags, err := h.terms.TermTags(r.Context(), termID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load term tags")
		return
	}
	if tags == nil {
		tags = []domain.TermTag{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]interface{}{
		"term_id": termID,
		"tags":    tags,
	})
}

// ListTags handles GET /api/tags?limit=&offset=.
func (h *TermHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.terms.ListTags(r.Context(), limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tags")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// GraphStats handles GET /api/graph/stats.
func (h *TermHandler) GraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.terms.GraphStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load graph statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
