// Package metrics holds the Prometheus collectors for the content pipeline.
// A nil *Metrics is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lexis"

// Metrics groups every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	LLMTokens          *prometheus.CounterVec
	LLMCost            *prometheus.CounterVec
	GenerationRequests *prometheus.CounterVec
	CacheHits          *prometheus.CounterVec
	QuotaDecisions     *prometheus.CounterVec
	CandidatesRouted   *prometheus.CounterVec
	Confidence         prometheus.Histogram
	ReviewDecisions    *prometheus.CounterVec
	FreshnessPolls     *prometheus.CounterVec
	TaskExecutions     *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Model tokens consumed",
		}, []string{"model", "type"}),
		LLMCost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated model cost in USD",
		}, []string{"model"}),
		GenerationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation requests by pipeline and outcome",
		}, []string{"pipeline", "outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cache_hits_total",
			Help:      "Generation requests served from cache",
		}, []string{"pipeline"}),
		QuotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota admissions by reason",
		}, []string{"reason"}),
		CandidatesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_routed_total",
			Help:      "Generated candidates by routing status",
		}, []string{"status"}),
		Confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_confidence",
			Help:      "Candidate confidence scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		ReviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "Moderator decisions by action and result",
		}, []string{"action", "result"}),
		FreshnessPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "freshness_polls_total",
			Help:      "Freshness polls by outcome",
		}, []string{"outcome"}),
		TaskExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_executions_total",
			Help:      "Background task executions by type and outcome",
		}, []string{"type", "outcome"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.LLMTokens, m.LLMCost, m.GenerationRequests, m.CacheHits, m.QuotaDecisions,
		m.CandidatesRouted, m.Confidence, m.ReviewDecisions, m.FreshnessPolls,
		m.TaskExecutions, m.TaskDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLLMUsage records one model call.
func (m *Metrics) ObserveLLMUsage(model string, promptTokens, completionTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.LLMTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.LLMTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	m.LLMCost.WithLabelValues(model).Add(costUSD)
}

// ObserveGeneration records a finished orchestrator run.
func (m *Metrics) ObserveGeneration(pipeline, outcome string, cached bool) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(pipeline, outcome).Inc()
	if cached {
		m.CacheHits.WithLabelValues(pipeline).Inc()
	}
}

// ObserveQuotaDecision records an admission result. Allowed requests use
// the reason "allowed".
func (m *Metrics) ObserveQuotaDecision(reason string) {
	if m == nil {
		return
	}
	m.QuotaDecisions.WithLabelValues(reason).Inc()
}

// ObserveCandidate records where a candidate was routed.
func (m *Metrics) ObserveCandidate(status string, confidence float64) {
	if m == nil {
		return
	}
	m.CandidatesRouted.WithLabelValues(status).Inc()
	m.Confidence.Observe(confidence)
}

// ObserveReviewDecision records a moderator decision.
func (m *Metrics) ObserveReviewDecision(action, result string) {
	if m == nil {
		return
	}
	m.ReviewDecisions.WithLabelValues(action, result).Inc()
}

// ObserveFreshnessPoll records a poll, including skipped ones.
func (m *Metrics) ObserveFreshnessPoll(outcome string) {
	if m == nil {
		return
	}
	m.FreshnessPolls.WithLabelValues(outcome).Inc()
}

// ObserveTask records one task execution.
func (m *Metrics) ObserveTask(taskType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TaskExecutions.WithLabelValues(taskType, outcome).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}
