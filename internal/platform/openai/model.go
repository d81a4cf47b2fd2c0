// Package openai adapts OpenAI-compatible chat completion APIs to the
// generation.Model interface. Setting a base URL points it at any compatible
// gateway.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
)

// Model implements generation.Model with chat completions.
type Model struct {
	client  *goopenai.Client
	name    string
	pricing generation.Pricing
	logger  *slog.Logger
}

var _ generation.Model = (*Model)(nil)

// NewModel creates an OpenAI-backed model from the LLM settings.
func NewModel(cfg config.LLMConfig, log *slog.Logger) (*Model, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	clientConfig := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.OpenAIBaseURL, "/")
	}

	return &Model{
		client: goopenai.NewClientWithConfig(clientConfig),
		name:   cfg.ModelName,
		pricing: generation.Pricing{
			InputPerMillion:  cfg.InputCostPerMillion,
			OutputPerMillion: cfg.OutputCostPerMillion,
		},
		logger: log.With(slog.String("component", "openai_model")),
	}, nil
}

// Name returns the configured model name.
func (m *Model) Name() string {
	return m.name
}

// Complete sends one chat completion request.
func (m *Model) Complete(ctx context.Context, req generation.Request) (*generation.Completion, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	var messages []goopenai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := goopenai.ChatCompletionRequest{
		Model:       m.name,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == goopenai.FinishReasonContentFilter {
		return nil, fmt.Errorf("%w: content filter", generation.ErrContentBlocked)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty message content", generation.ErrInvalidResponse)
	}

	usage := generation.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CostUSD:          m.pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	log.Debug("openai completion generated",
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens))

	return &generation.Completion{Text: choice.Message.Content, Usage: usage}, nil
}

func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	code := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: openai status %d: %v", generation.ErrTransientFailure, code, err)
	case code == http.StatusBadRequest && isContentPolicy(apiErr):
		return fmt.Errorf("%w: %v", generation.ErrContentBlocked, err)
	case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden ||
		code == http.StatusNotFound:
		return fmt.Errorf("%w: openai status %d: %v", generation.ErrInvalidConfig, code, err)
	default:
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
}

func isContentPolicy(apiErr *goopenai.APIError) bool {
	if apiErr == nil {
		return false
	}
	code, _ := apiErr.Code.(string)
	return code == "content_policy_violation" || code == "content_filter"
}
