package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/api/middleware"
	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
)

// QuotaReader reports a user's current quota usage.
type QuotaReader interface {
	GetQuotaStatus(ctx context.Context, userID uuid.UUID) (*domain.QuotaStatus, error)
}

// GenerationHandler serves term generation and quota lookups.
type GenerationHandler struct {
	generation service.GenerationService
	quota      QuotaReader
	logger     *slog.Logger
}

// NewGenerationHandler creates a GenerationHandler. It panics if a
// dependency is nil.
func NewGenerationHandler(
	generation service.GenerationService,
	quota QuotaReader,
	logger *slog.Logger,
) *GenerationHandler {
	if generation == nil || quota == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("generation service and quota reader cannot be nil for GenerationHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for GenerationHandler")
	}
	return &GenerationHandler{
		generation: generation,
		quota:      quota,
		logger:     logger.With(slog.String("component", "generation_handler")),
	}
}

// Generate handles POST /api/generate.
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	var req GenerateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	outcome, err := h.generation.Generate(r.Context(), userID, req.toService())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to generate terms")
		return
	}

	log.Debug("generation complete",
		slog.String("topic", req.Topic),
		slog.Int("stored", outcome.Counts.Stored),
		slog.Int("review", outcome.Counts.Review),
		slog.Bool("cached", outcome.Cached))
	shared.RespondWithJSON(w, r, http.StatusOK, outcome)
}

// GetQuota handles GET /api/quota/{userId}. Callers may read their own
// quota; admins may read anyone's.
func (h *GenerationHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	callerID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}
	userID, err := getPathUUID(r, "userId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if role, _ := middleware.GetRole(r); userID != callerID && role != auth.RoleAdmin {
		log.Warn("quota lookup for another user denied",
			slog.String("target_user_id", userID.String()))
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	status, err := h.quota.GetQuotaStatus(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read quota")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, status)
}
