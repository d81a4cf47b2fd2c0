package freshness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	"github.com/phrazzld/lexis-api/internal/store"
	"github.com/phrazzld/lexis-api/internal/task"
)

// Poll outcomes, also used as metric labels.
const (
	OutcomeNewItems = "new_items"
	OutcomeNoItems  = "no_items"
	OutcomeSkipped  = "skipped"
	OutcomeInactive = "inactive"
	OutcomeStopped  = "stopped"
	OutcomeError    = "error"
)

// TopicResolver finds or creates topics by name.
type TopicResolver interface {
	GetOrCreateByName(ctx context.Context, name string) (*domain.Topic, bool, error)
}

// Config tunes the monitor.
type Config struct {
	DefaultIntervalMinutes int
	DefaultMaxSources      int
	InactivityTimeout      time.Duration
}

// ConfigFromSettings builds a Config from the freshness settings.
func ConfigFromSettings(cfg config.FreshnessConfig) Config {
	return Config{
		DefaultIntervalMinutes: cfg.DefaultIntervalMinutes,
		DefaultMaxSources:      cfg.MaxSources,
		InactivityTimeout:      time.Duration(cfg.InactivityTimeoutHours) * time.Hour,
	}
}

// StartOptions describes a new monitor. Zero values take the defaults.
type StartOptions struct {
	Topic               string
	MaxSources          int
	IntervalMinutes     int
	PrioritizeFreshness bool
	CreatedBy           uuid.UUID
}

// JobStatus is an active job with its local run state.
type JobStatus struct {
	Job          *domain.MonitoringJob `json:"job"`
	Scheduled    bool                  `json:"scheduled"`
	Polling      bool                  `json:"polling"`
	NextRunAt    *time.Time            `json:"next_run_at,omitempty"`
	SkippedPolls int64                 `json:"skipped_polls"`
	LastOutcome  string                `json:"last_outcome,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
}

// schedule is the in-process state of one job's recurring poll.
type schedule struct {
	cancel  context.CancelFunc
	skipped atomic.Int64

	mu          sync.Mutex
	nextRunAt   time.Time
	lastOutcome string
	lastError   string
}

// Monitor runs recurring discovery polls.
type Monitor struct {
	topics    TopicResolver
	jobs      store.MonitoringJobStore
	feed      Feed
	submitter task.Submitter
	scorer    *Scorer
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[uuid.UUID]*schedule
	// polling holds jobs with a poll in flight, scheduled or not.
	polling map[uuid.UUID]bool
}

// NewMonitor creates a monitor. Schedules run until Close. It panics if a
// required dependency is nil.
func NewMonitor(
	topics TopicResolver,
	jobs store.MonitoringJobStore,
	feed Feed,
	submitter task.Submitter,
	scorer *Scorer,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Monitor {
	if topics == nil || jobs == nil || feed == nil || submitter == nil || scorer == nil {
		panic("freshness monitor dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	root, stop := context.WithCancel(context.Background())
	return &Monitor{
		topics:    topics,
		jobs:      jobs,
		feed:      feed,
		submitter: submitter,
		scorer:    scorer,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.With(slog.String("component", "freshness_monitor")),
		now:       time.Now,
		root:      root,
		stop:      stop,
		active:    make(map[uuid.UUID]*schedule),
		polling:   make(map[uuid.UUID]bool),
	}
}

// SetClock replaces the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Start creates a monitoring job, runs the first discovery pass and schedules
// recurring polls.
func (m *Monitor) Start(ctx context.Context, opts StartOptions) (*domain.MonitoringJob, []domain.ClassifiedSource, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	if opts.IntervalMinutes == 0 {
		opts.IntervalMinutes = m.cfg.DefaultIntervalMinutes
	}
	if opts.MaxSources == 0 {
		opts.MaxSources = m.cfg.DefaultMaxSources
	}

	topic, _, err := m.topics.GetOrCreateByName(ctx, opts.Topic)
	if err != nil {
		if errors.Is(err, domain.ErrTopicNameEmpty) || errors.Is(err, domain.ErrTopicNameLong) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		return nil, nil, fmt.Errorf("failed to resolve topic: %w", err)
	}

	industry := Industry(topic.Name)
	job, err := domain.NewMonitoringJob(topic, industry, opts.IntervalMinutes, opts.MaxSources,
		opts.PrioritizeFreshness, opts.CreatedBy)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	items, err := m.feed.Fetch(ctx, topic.Name, job.MaxSources)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	now := m.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	discovered := m.score(job, items, now)
	job.Sources = sourcesOf(discovered)
	job.LastRunAt = &now
	if len(discovered) > 0 {
		job.LastDiscoveryAt = &now
	}

	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("failed to save monitoring job: %w", err)
	}
	if len(discovered) > 0 {
		if err := m.submit(ctx, job, discovered, now); err != nil {
			log.Error("failed to submit initial discovery",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	m.schedule(job)
	log.Info("monitoring started",
		slog.String("job_id", job.ID.String()),
		slog.String("topic", job.TopicName),
		slog.String("industry", industry),
		slog.Int("interval_minutes", job.IntervalMinutes),
		slog.Int("sources", len(job.Sources)))
	return job, job.Sources, nil
}

// Stop deactivates a job and cancels its schedule. Stopping a stopped job
// returns it unchanged.
func (m *Monitor) Stop(ctx context.Context, id uuid.UUID, reason string) (*domain.MonitoringJob, error) {
	if reason == "" {
		reason = domain.StopReasonManual
	}
	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.unschedule(id)
	if !job.Active {
		return job, nil
	}

	job.Stop(reason, m.now())
	if err := m.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to stop monitoring job: %w", err)
	}
	logger.FromContextOrDefault(ctx, m.logger).Info("monitoring stopped",
		slog.String("job_id", id.String()),
		slog.String("reason", reason))
	return job, nil
}

// Status lists active jobs with their local run state.
func (m *Monitor) Status(ctx context.Context) ([]JobStatus, error) {
	jobs, err := m.jobs.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		st := JobStatus{Job: job}
		st.Polling = m.polling[job.ID]
		if s, ok := m.active[job.ID]; ok {
			st.Scheduled = true
			st.SkippedPolls = s.skipped.Load()
			s.mu.Lock()
			if !s.nextRunAt.IsZero() {
				next := s.nextRunAt
				st.NextRunAt = &next
			}
			st.LastOutcome = s.lastOutcome
			st.LastError = s.lastError
			s.mu.Unlock()
		}
		out = append(out, st)
	}
	return out, nil
}

// Resume schedules every persisted active job that is not already running.
func (m *Monitor) Resume(ctx context.Context) (int, error) {
	jobs, err := m.jobs.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active monitoring jobs: %w", err)
	}
	resumed := 0
	for _, job := range jobs {
		if m.schedule(job) {
			resumed++
		}
	}
	logger.FromContextOrDefault(ctx, m.logger).Info("resumed monitoring jobs", slog.Int("count", resumed))
	return resumed, nil
}

// Close cancels every schedule and waits for in-flight polls.
func (m *Monitor) Close() {
	m.stop()
	m.wg.Wait()
}

// Poll runs one poll for the job unless one is already running, in which
// case it returns OutcomeSkipped.
func (m *Monitor) Poll(ctx context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	s, scheduled := m.active[id]
	if m.polling[id] {
		m.mu.Unlock()
		if scheduled {
			s.skipped.Add(1)
		}
		m.metrics.ObserveFreshnessPoll(OutcomeSkipped)
		logger.FromContextOrDefault(ctx, m.logger).Info("previous poll still running, skipping",
			slog.String("job_id", id.String()))
		return OutcomeSkipped, nil
	}
	m.polling[id] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.polling, id)
		m.mu.Unlock()
	}()

	outcome, err := m.poll(ctx, id)
	m.metrics.ObserveFreshnessPoll(outcome)
	if !scheduled {
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = outcome
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()
	return outcome, err
}

func (m *Monitor) poll(ctx context.Context, id uuid.UUID) (string, error) {
	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("job_id", id.String()))

	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return OutcomeError, err
	}
	if !job.Active {
		m.unschedule(id)
		return OutcomeStopped, nil
	}

	items, err := m.feed.Fetch(ctx, job.TopicName, job.MaxSources)
	if err != nil {
		log.Warn("freshness poll fetch failed", slog.String("error", err.Error()))
		return OutcomeError, fmt.Errorf("%w: %v", ErrDiscoveryFailed, err)
	}

	since := job.CreatedAt
	if job.LastRunAt != nil {
		since = *job.LastRunAt
	}
	var fresh []FeedItem
	for _, it := range items {
		if isNewer(it, since) {
			fresh = append(fresh, it)
		}
	}

	now := m.now().UTC()
	job.LastRunAt = &now
	outcome := OutcomeNoItems

	if len(fresh) > 0 {
		discovered := m.score(job, fresh, now)
		if err := m.submit(ctx, job, discovered, now); err != nil {
			return OutcomeError, err
		}
		job.LastDiscoveryAt = &now
		job.Sources = mergeSources(job.Sources, sourcesOf(discovered), job.MaxSources)
		outcome = OutcomeNewItems
	} else if job.Inactive(now, m.cfg.InactivityTimeout) {
		job.Stop(domain.StopReasonInactive, now)
		outcome = OutcomeInactive
	}

	if err := m.jobs.Update(ctx, job); err != nil {
		return OutcomeError, fmt.Errorf("failed to update monitoring job: %w", err)
	}
	if outcome == OutcomeInactive {
		m.unschedule(id)
		log.Info("monitoring stopped for inactivity",
			slog.Duration("timeout", m.cfg.InactivityTimeout))
	}
	log.Debug("freshness poll finished",
		slog.String("outcome", outcome),
		slog.Int("fetched", len(items)),
		slog.Int("new", len(fresh)))
	return outcome, nil
}

// score classifies and scores items. Jobs that prioritize freshness order
// by final score, others by base quality.
func (m *Monitor) score(job *domain.MonitoringJob, items []FeedItem, now time.Time) []task.DiscoveredItem {
	out := make([]task.DiscoveredItem, 0, len(items))
	for _, it := range items {
		src := Classify(it, job.Industry)
		base := BaseQuality(src, it.Summary)
		score, mult, breaking := m.scorer.Score(base, it.PublishedAt, now)
		summary := it.Summary
		if summary == "" {
			summary = it.Title
		}
		out = append(out, task.DiscoveredItem{
			Source:      src,
			Summary:     summary,
			BaseQuality: base,
			Multiplier:  mult,
			Score:       score,
			Breaking:    breaking,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if job.PrioritizeFreshness {
			return out[i].Score > out[j].Score
		}
		return out[i].BaseQuality > out[j].BaseQuality
	})
	if len(out) > job.MaxSources {
		out = out[:job.MaxSources]
	}
	return out
}

func (m *Monitor) submit(ctx context.Context, job *domain.MonitoringJob, items []task.DiscoveredItem, now time.Time) error {
	_, err := m.submitter.Submit(ctx, task.TaskTypeFreshnessIngest, task.FreshnessPayload{
		JobID:        job.ID,
		TopicID:      job.TopicID,
		Topic:        job.TopicName,
		Items:        items,
		DiscoveredAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to submit freshness ingest: %w", err)
	}
	return nil
}

// schedule starts the recurring poll for job. It reports false if the job
// is already scheduled.
func (m *Monitor) schedule(job *domain.MonitoringJob) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[job.ID]; ok {
		return false
	}
	if m.root.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(m.root)
	s := &schedule{cancel: cancel}
	m.active[job.ID] = s

	interval := job.Interval()
	id := job.ID
	s.setNext(time.Now().Add(interval))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var polls sync.WaitGroup
		defer polls.Wait()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.setNext(time.Now().Add(interval))
				// Polls run beside the ticker so an overrunning poll makes
				// the next tick observe it and skip.
				polls.Add(1)
				go func() {
					defer polls.Done()
					if _, err := m.Poll(ctx, id); err != nil && ctx.Err() == nil {
						m.logger.Warn("scheduled poll failed",
							slog.String("job_id", id.String()),
							slog.String("error", err.Error()))
					}
				}()
			}
		}
	}()
	return true
}

func (m *Monitor) unschedule(id uuid.UUID) {
	m.mu.Lock()
	s, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if ok {
		s.cancel()
	}
}

func (s *schedule) setNext(t time.Time) {
	s.mu.Lock()
	s.nextRunAt = t.UTC()
	s.mu.Unlock()
}

func sourcesOf(items []task.DiscoveredItem) []domain.ClassifiedSource {
	out := make([]domain.ClassifiedSource, len(items))
	for i, it := range items {
		out[i] = it.Source
	}
	return out
}

// mergeSources puts fresh sources first, drops repeated URLs and keeps at
// most limit entries.
func mergeSources(existing, fresh []domain.ClassifiedSource, limit int) []domain.ClassifiedSource {
	seen := make(map[string]struct{}, len(existing)+len(fresh))
	out := make([]domain.ClassifiedSource, 0, limit)
	for _, list := range [][]domain.ClassifiedSource{fresh, existing} {
		for _, src := range list {
			if len(out) >= limit {
				return out
			}
			if _, ok := seen[src.URL]; ok {
				continue
			}
			seen[src.URL] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}
