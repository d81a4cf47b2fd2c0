package relationships

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
)

//go:embed prompts/tags.tmpl
var promptFS embed.FS

var tagsTemplate = template.Must(template.ParseFS(promptFS, "prompts/tags.tmpl"))

const tagSystemPrompt = "You classify vocabulary terms into topical categories. You always answer with valid JSON."

// maxTagNameLength bounds tag names accepted from the model.
const maxTagNameLength = 40

// ModelTagger asks a generation model for tags.
type ModelTagger struct {
	model   generation.Model
	metrics *metrics.Metrics
}

var _ Tagger = (*ModelTagger)(nil)

// NewModelTagger creates a ModelTagger. m may be nil.
func NewModelTagger(model generation.Model, m *metrics.Metrics) *ModelTagger {
	if model == nil {
		panic("model cannot be nil")
	}
	return &ModelTagger{model: model, metrics: m}
}

type tagResponse struct {
	Tags []domain.TagScore `json:"tags"`
}

// Tags implements Tagger.
func (t *ModelTagger) Tags(ctx context.Context, term *domain.Term) ([]domain.TagScore, error) {
	var buf bytes.Buffer
	err := tagsTemplate.Execute(&buf, struct {
		Max        int
		Term       string
		Definition string
		Examples   []string
	}{maxTags, term.Text, term.Definition, term.Examples})
	if err != nil {
		return nil, fmt.Errorf("failed to render tag prompt: %w", err)
	}

	completion, err := t.model.Complete(ctx, generation.Request{
		System:      tagSystemPrompt,
		Prompt:      buf.String(),
		Temperature: 0.2,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}
	t.metrics.ObserveLLMUsage(t.model.Name(), completion.Usage.PromptTokens,
		completion.Usage.CompletionTokens, completion.Usage.CostUSD)

	return parseTags(completion.Text)
}

// parseTags decodes and normalizes a model reply.
func parseTags(text string) ([]domain.TagScore, error) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")

	var resp tagResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrNoTags, generation.ErrInvalidResponse, err)
	}

	seen := make(map[string]bool)
	var out []domain.TagScore
	for _, tag := range resp.Tags {
		name := domain.NormalizeKey(tag.Name)
		if name == "" || len(name) > maxTagNameLength || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, domain.TagScore{Name: name, Confidence: domain.Clamp01(tag.Confidence)})
	}
	if len(out) == 0 {
		return nil, ErrNoTags
	}
	sortTags(out)
	if len(out) > maxTags {
		out = out[:maxTags]
	}
	return out, nil
}

// FallbackTagger uses primary and switches to fallback on any error.
type FallbackTagger struct {
	primary  Tagger
	fallback Tagger
	logger   *slog.Logger
}

var _ Tagger = (*FallbackTagger)(nil)

// NewFallbackTagger creates a FallbackTagger.
func NewFallbackTagger(primary, fallback Tagger, logger *slog.Logger) *FallbackTagger {
	if primary == nil || fallback == nil {
		panic("taggers cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackTagger{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "fallback_tagger")),
	}
}

// Tags implements Tagger.
func (f *FallbackTagger) Tags(ctx context.Context, term *domain.Term) ([]domain.TagScore, error) {
	tags, err := f.primary.Tags(ctx, term)
	if err == nil {
		return tags, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.FromContextOrDefault(ctx, f.logger).Warn("model tagger failed, using heuristic tagger",
		slog.String("term_id", term.ID.String()),
		slog.String("error", err.Error()))
	return f.fallback.Tags(ctx, term)
}
