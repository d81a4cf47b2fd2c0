package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/generation"
	"github.com/phrazzld/lexis-api/internal/platform/gemini"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	graphmirror "github.com/phrazzld/lexis-api/internal/platform/neo4j"
	"github.com/phrazzld/lexis-api/internal/platform/openai"
	"github.com/phrazzld/lexis-api/internal/platform/postgres"
	"github.com/phrazzld/lexis-api/internal/platform/redis"
	"github.com/phrazzld/lexis-api/internal/platform/sources"
	"github.com/phrazzld/lexis-api/internal/quota"
	"github.com/phrazzld/lexis-api/internal/relationships"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
	"github.com/phrazzld/lexis-api/internal/validation"
)

// keyPrefix namespaces every Redis key written by the service.
const keyPrefix = "lexis:"

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	db      *sql.DB
	redis   *goredis.Client
	graph   *graphmirror.Client
	metrics *metrics.Metrics

	jwtService auth.JWTService
	governor   *quota.Governor
	reviews    review.Service
	generation service.GenerationService
	terms      service.TermService
	monitor    *freshness.Monitor

	eventEmitter *events.InMemoryEventEmitter
	taskRunner   *task.TaskRunner
}

// newApplication wires every component. Redis and Neo4j are optional; without
// them quota counters fall back to Postgres, the generation cache to memory,
// and the graph mirror is skipped.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	m := app.metrics
	defer func() {
		if err != nil {
			app.closeBackends()
		}
	}()

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	tx := store.NewDBTransactor(db)
	topics := postgres.NewPostgresTopicStore(db, logger)
	sets := postgres.NewPostgresCanonicalSetStore(db, logger)
	terms := postgres.NewPostgresTermStore(db, logger)
	reviewStore := postgres.NewPostgresReviewStore(db, logger)
	tags := postgres.NewPostgresTagStore(db, logger)
	edges := postgres.NewPostgresEdgeStore(db, logger)
	jobs := postgres.NewPostgresMonitoringJobStore(db, logger)
	taskStore := postgres.NewPostgresTaskStore(db, logger)

	var (
		counters store.QuotaCounterStore
		cache    generation.Cache
	)
	if cfg.Redis.Enabled() {
		app.redis, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		counters = redis.NewQuotaCounterStore(app.redis, keyPrefix+"quota:", logger)
		cache = redis.NewCache(app.redis, keyPrefix+"gen:", logger)
		logger.Info("redis quota counters and generation cache enabled")
	} else {
		counters = postgres.NewPostgresQuotaCounterStore(db, logger)
		cache = generation.NewMemoryCache(time.Now)
		logger.Info("redis not configured, using postgres quota counters and in-process cache")
	}
	app.governor = quota.NewGovernor(counters, postgres.NewPostgresQuotaAccountStore(db),
		quota.ConfigFromSettings(cfg.Quota), logger, m)

	model, err := newModel(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	orchestrator, err := generation.NewOrchestrator(
		model,
		[]generation.Source{
			sources.NewWikipedia(cfg.Sources, nil),
			sources.NewGlossary(cfg.Sources, nil),
		},
		cache,
		generation.ConfigFromSettings(cfg.Generation, cfg.LLM),
		logger,
		m,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.reviews = review.NewService(tx, topics, sets, terms, reviewStore, app.eventEmitter, cfg.Review, m, logger)

	genSvc := service.NewGenerationService(
		tx, topics, sets, terms,
		orchestrator,
		app.governor,
		validation.New(cfg.Validation),
		app.reviews,
		app.eventEmitter,
		generation.Pricing{
			InputPerMillion:  cfg.LLM.InputCostPerMillion,
			OutputPerMillion: cfg.LLM.OutputCostPerMillion,
		},
		cfg.Generation,
		cfg.Review,
		m,
		logger,
	)
	app.generation = genSvc
	app.terms = service.NewTermService(terms, tags, edges, logger)

	var tagger relationships.Tagger = relationships.NewHeuristicTagger(logger)
	if cfg.Relationships.UseModelTagger {
		tagger = relationships.NewFallbackTagger(relationships.NewModelTagger(model, m), tagger, logger)
	}
	var mirror relationships.Mirror
	if cfg.Neo4j.Enabled() {
		app.graph, err = graphmirror.NewClient(ctx, cfg.Neo4j, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		mirror = graphmirror.NewMirror(app.graph)
		logger.Info("neo4j graph mirror enabled")
	}
	extractor := relationships.NewExtractor(tx, topics, terms, tags, edges, tagger, mirror, cfg.Relationships, logger)

	registry := task.NewRegistry()
	registry.Register(task.TaskTypeRelationshipExtraction, task.NewRelationshipTaskFactory(extractor))
	registry.Register(task.TaskTypeFreshnessIngest, task.NewFreshnessIngestTaskFactory(genSvc))

	app.taskRunner = task.NewTaskRunner(taskStore, registry, task.TaskRunnerConfig{
		WorkerCount:  cfg.Task.WorkerCount,
		QueueSize:    cfg.Task.QueueSize,
		PollInterval: time.Duration(cfg.Task.PollIntervalSeconds) * time.Second,
		StuckTaskAge: time.Duration(cfg.Task.StuckTaskAgeMinutes) * time.Minute,
		MaxAttempts:  cfg.Task.MaxAttempts,
		BaseBackoff:  time.Duration(cfg.Task.BaseBackoffSeconds) * time.Second,
	}, logger, m)
	app.eventEmitter.RegisterHandler(task.NewTaskFactoryEventHandler(registry, app.taskRunner, logger))

	app.monitor = freshness.NewMonitor(
		topics,
		jobs,
		sources.NewNews(cfg.Sources, nil),
		app.taskRunner,
		freshness.NewScorer(cfg.Freshness),
		freshness.ConfigFromSettings(cfg.Freshness),
		logger,
		m,
	)

	logger.Info("application initialized",
		slog.String("model", model.Name()),
		slog.Any("task_types", registry.Types()))
	return app, nil
}

// newModel builds the configured language model adapter.
func newModel(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Model, error) {
	switch cfg.Provider {
	case "gemini":
		model, err := gemini.NewModel(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini model: %w", err)
		}
		return model, nil
	case "openai":
		model, err := openai.NewModel(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", generation.ErrInvalidConfig, cfg.Provider)
	}
}

// Run starts the task runner, resumes persisted monitors and serves HTTP
// until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	resumed, err := app.monitor.Resume(ctx)
	if err != nil {
		app.logger.Error("failed to resume monitoring jobs", slog.String("error", err.Error()))
	} else {
		app.logger.Info("monitoring jobs resumed", slog.Int("count", resumed))
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Monitors stop
// first so no new tasks are submitted while the runner drains.
func (app *application) cleanup() {
	if app.monitor != nil {
		app.monitor.Close()
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	app.closeBackends()
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}

// closeBackends releases the optional Redis and Neo4j connections.
func (app *application) closeBackends() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	var errs []error
	if app.graph != nil {
		errs = append(errs, app.graph.Close(ctx))
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("error releasing backends", slog.String("error", err.Error()))
	}
}
