package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
)

// Config tunes the orchestrator.
type Config struct {
	CacheTTL            time.Duration
	DuplicateThreshold  float64
	MaxDuplicateRetries int
	SourceConcurrency   int
	MaxRetries          int
	RetryDelay          time.Duration
	CallTimeout         time.Duration
	Temperature         float64
}

// ConfigFromSettings builds a Config from the loaded settings.
func ConfigFromSettings(gen config.GenerationConfig, llm config.LLMConfig) Config {
	return Config{
		CacheTTL:            time.Duration(gen.CacheTTLSeconds) * time.Second,
		DuplicateThreshold:  gen.DuplicateRetryThreshold,
		MaxDuplicateRetries: gen.MaxDuplicateRetries,
		SourceConcurrency:   gen.SourceConcurrency,
		MaxRetries:          llm.MaxRetries,
		RetryDelay:          time.Duration(llm.RetryDelaySeconds) * time.Second,
		CallTimeout:         time.Duration(llm.TimeoutSeconds) * time.Second,
		Temperature:         llm.Temperature,
	}
}

// Result is the outcome of a generation request.
type Result struct {
	Candidates []domain.Candidate `json:"terms"`
	Facts      []string           `json:"facts,omitempty"`
	Usage      Usage              `json:"usage"`
	Cached     bool               `json:"cached"`
	Duplicates int                `json:"duplicates"`
	// Attempts counts model calls, including duplicate retries.
	Attempts int      `json:"attempts"`
	Pipeline Pipeline `json:"pipeline"`
}

// Orchestrator runs the generation pipelines.
type Orchestrator struct {
	model   Model
	sources []Source
	cache   Cache
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator. cache and m may be nil.
func NewOrchestrator(
	model Model,
	sources []Source,
	cache Cache,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Orchestrator, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model cannot be nil", ErrInvalidConfig)
	}
	if cfg.DuplicateThreshold <= 0 || cfg.DuplicateThreshold > 1 {
		return nil, fmt.Errorf("%w: duplicate threshold must be in (0,1]", ErrInvalidConfig)
	}
	if cfg.SourceConcurrency < 1 {
		cfg.SourceConcurrency = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		model:   model,
		sources: sources,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(slog.String("component", "generation_orchestrator")),
	}, nil
}

// Model returns the configured model.
func (o *Orchestrator) Model() Model {
	return o.model
}

// Generate runs the selected pipeline for p.
func (o *Orchestrator) Generate(ctx context.Context, params Params) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	p, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	if res, ok := o.fromCache(ctx, p); ok {
		log.Debug("serving generation from cache",
			slog.String("topic", p.Topic),
			slog.String("pipeline", string(p.Pipeline)))
		o.metrics.ObserveGeneration(string(p.Pipeline), "success", true)
		return res, nil
	}

	var res *Result
	switch p.Pipeline {
	case PipelineSourceFirst:
		res, err = o.sourceFirst(ctx, p)
	default:
		res, err = o.modelFirst(ctx, p)
	}
	if err != nil {
		o.metrics.ObserveGeneration(string(p.Pipeline), outcomeFor(err), false)
		log.Error("generation failed",
			slog.String("topic", p.Topic),
			slog.String("pipeline", string(p.Pipeline)),
			slog.String("error", err.Error()))
		if res != nil && !res.Usage.IsZero() {
			return nil, &UsageError{Usage: res.Usage, Err: err}
		}
		return nil, err
	}
	o.metrics.ObserveGeneration(string(p.Pipeline), "success", false)

	// Only material-free requests are shareable.
	if o.cache != nil && o.cfg.CacheTTL > 0 && len(p.Material) == 0 {
		entry := cachedResult{Candidates: res.Candidates, Facts: res.Facts}
		if err := o.cache.Set(ctx, cacheKey(p), entry, o.cfg.CacheTTL); err != nil {
			log.Warn("failed to cache generation result", slog.String("error", err.Error()))
		}
	}

	log.Info("generation completed",
		slog.String("topic", p.Topic),
		slog.String("pipeline", string(p.Pipeline)),
		slog.Int("requested", p.Count),
		slog.Int("generated", len(res.Candidates)),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("attempts", res.Attempts))
	return res, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrGenerationTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, ErrContentBlocked):
		return "blocked"
	default:
		return "error"
	}
}

// fromCache returns a cached result re-filtered against p's exclusions. A
// cached entry that no longer covers the requested count is treated as a miss.
func (o *Orchestrator) fromCache(ctx context.Context, p Params) (*Result, bool) {
	if o.cache == nil || o.cfg.CacheTTL <= 0 || len(p.Material) > 0 {
		return nil, false
	}
	var entry cachedResult
	hit, err := o.cache.Get(ctx, cacheKey(p), &entry)
	if err != nil {
		logger.FromContextOrDefault(ctx, o.logger).Warn("generation cache read failed",
			slog.String("error", err.Error()))
		return nil, false
	}
	if !hit {
		return nil, false
	}

	kept, duplicates := newExclusions(p.ExistingTerms).filter(entry.Candidates, p.Count)
	if len(kept) < p.Count {
		return nil, false
	}
	return &Result{
		Candidates: kept,
		Facts:      entry.Facts,
		Cached:     true,
		Duplicates: duplicates,
		Pipeline:   p.Pipeline,
	}, true
}

func (o *Orchestrator) modelFirst(ctx context.Context, p Params) (*Result, error) {
	res := &Result{Pipeline: p.Pipeline}
	excl := newExclusions(p.ExistingTerms)
	if err := o.fillFromModel(ctx, p, p.Count, excl, res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) sourceFirst(ctx context.Context, p Params) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)
	res := &Result{Pipeline: p.Pipeline}
	excl := newExclusions(p.ExistingTerms)

	// Each source writes its own slot so ordering follows source order.
	found := make([][]Reference, len(o.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SourceConcurrency)
	for i, src := range o.sources {
		g.Go(func() error {
			refs, err := src.Lookup(gctx, p.Topic, p.Count)
			if err != nil {
				log.Warn("reference source lookup failed",
					slog.String("source", src.Name()),
					slog.String("topic", p.Topic),
					slog.String("error", err.Error()))
				return nil
			}
			found[i] = refs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	var batch []domain.Candidate
	for _, refs := range found {
		for _, ref := range refs {
			batch = append(batch, ref.Candidate())
		}
	}
	kept, duplicates := excl.filter(batch, p.Count)
	res.Candidates = kept
	res.Duplicates = duplicates

	missing := p.Count - len(kept)
	if missing <= 0 {
		return res, nil
	}
	log.Debug("sources did not cover request, asking model for the rest",
		slog.Int("found", len(kept)),
		slog.Int("missing", missing))
	if err := o.fillFromModel(ctx, p, missing, excl, res); err != nil {
		return res, err
	}
	return res, nil
}

// fillFromModel asks the model for up to need new candidates and appends them
// to res. A batch whose duplicate ratio reaches the threshold is retried with
// the grown exclusion list. Usage of completed calls stays in res on error.
func (o *Orchestrator) fillFromModel(ctx context.Context, p Params, need int, excl *exclusions, res *Result) error {
	log := logger.FromContextOrDefault(ctx, o.logger)

	for retries := 0; need > 0; retries++ {
		prompt, err := renderPrompt(p, need, excl.list())
		if err != nil {
			return err
		}

		completion, err := o.complete(ctx, Request{
			System:      systemPrompt,
			Prompt:      prompt,
			Temperature: o.cfg.Temperature,
			JSON:        true,
		})
		res.Attempts++
		if err != nil {
			return err
		}
		res.Usage = res.Usage.Add(completion.Usage)
		o.metrics.ObserveLLMUsage(o.model.Name(),
			completion.Usage.PromptTokens, completion.Usage.CompletionTokens, completion.Usage.CostUSD)

		batch, facts, err := parseResponse(completion.Text)
		if err != nil {
			return err
		}
		if len(res.Facts) == 0 && p.IncludeFacts {
			res.Facts = facts
		}

		kept, duplicates := excl.filter(batch, need)
		res.Candidates = append(res.Candidates, kept...)
		res.Duplicates += duplicates
		need -= len(kept)

		ratio := duplicateRatio(duplicates, len(batch))
		if need <= 0 || ratio < o.cfg.DuplicateThreshold || retries >= o.cfg.MaxDuplicateRetries {
			break
		}
		log.Info("model batch mostly duplicates, retrying with expanded exclusions",
			slog.Float64("duplicate_ratio", ratio),
			slog.Int("exclusions", len(excl.order)),
			slog.Int("retry", retries+1))
	}
	return nil
}

// complete calls the model with a per-call timeout and retries transient
// failures with jittered exponential backoff.
func (o *Orchestrator) complete(ctx context.Context, req Request) (*Completion, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	backoff := retry.WithMaxRetries(uint64(o.cfg.MaxRetries),
		retry.WithJitterPercent(25, retry.NewExponential(o.cfg.RetryDelay)))

	var (
		completion *Completion
		lastErr    error
		timedOut   bool
		attempt    int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()

		c, err := o.model.Complete(callCtx, req)
		if err == nil {
			completion = c
			return nil
		}
		lastErr = err
		timedOut = errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
		log.Warn("model call failed",
			slog.String("model", o.model.Name()),
			slog.Int("attempt", attempt),
			slog.Bool("timeout", timedOut),
			slog.String("error", err.Error()))
		if !timedOut && !IsRetryable(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return completion, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, contextError(ctxErr)
	}
	if lastErr != nil && !timedOut && !IsRetryable(lastErr) {
		return nil, lastErr
	}
	if timedOut {
		return nil, fmt.Errorf("%w: model call exceeded %s after %d attempts",
			ErrGenerationTimeout, o.cfg.CallTimeout, attempt)
	}
	return nil, fmt.Errorf("%w: %d attempts: %v", ErrRetriesExhausted, attempt, lastErr)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}
