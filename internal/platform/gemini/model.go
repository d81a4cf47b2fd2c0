package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
)

// Model implements generation.Model on top of the genai client.
type Model struct {
	client  *genai.Client
	name    string
	pricing generation.Pricing
	logger  *slog.Logger
}

var _ generation.Model = (*Model)(nil)

// NewModel creates a Gemini-backed model from the LLM settings.
func NewModel(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*Model, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(cfg.GeminiBaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Model{
		client: client,
		name:   cfg.ModelName,
		pricing: generation.Pricing{
			InputPerMillion:  cfg.InputCostPerMillion,
			OutputPerMillion: cfg.OutputCostPerMillion,
		},
		logger: log.With(slog.String("component", "gemini_model")),
	}, nil
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.name
}

// Complete sends one generateContent request.
func (m *Model) Complete(ctx context.Context, req generation.Request) (*generation.Completion, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}}

	log.Debug("calling gemini", slog.String("model", m.name), slog.Int("prompt_length", len(req.Prompt)))
	resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, genConfig)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	completion, err := completionFromResponse(resp, m.pricing)
	if err != nil {
		log.Warn("gemini returned unusable response", slog.String("error", err.Error()))
		return nil, err
	}
	log.Debug("gemini call succeeded",
		slog.Int("prompt_tokens", completion.Usage.PromptTokens),
		slog.Int("completion_tokens", completion.Usage.CompletionTokens))
	return completion, nil
}

// completionFromResponse extracts text and usage from a response.
func completionFromResponse(resp *genai.GenerateContentResponse, pricing generation.Pricing) (*generation.Completion, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked: %s", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return nil, fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
	}

	var usage generation.Usage
	if md := resp.UsageMetadata; md != nil {
		usage.PromptTokens = int(md.PromptTokenCount)
		usage.CompletionTokens = int(md.CandidatesTokenCount)
		usage.TotalTokens = int(md.TotalTokenCount)
		if usage.TotalTokens == 0 {
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
	}
	usage.CostUSD = pricing.Cost(usage.PromptTokens, usage.CompletionTokens)

	return &generation.Completion{Text: text.String(), Usage: usage}, nil
}

// classifyError maps a client error onto the generation taxonomy.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gemini status %d: %v", generation.ErrTransientFailure, code, err)
	case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden ||
		code == http.StatusNotFound:
		return fmt.Errorf("%w: gemini status %d: %v", generation.ErrInvalidConfig, code, err)
	default:
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
}
