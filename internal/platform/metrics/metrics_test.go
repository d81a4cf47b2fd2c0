package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLLMUsage("gemini", 1, 2, 0.1)
		m.ObserveGeneration("model-first", "ok", true)
		m.ObserveQuotaDecision("allowed")
		m.ObserveCandidate("stored", 0.9)
		m.ObserveReviewDecision("approve", "applied")
		m.ObserveFreshnessPoll("skipped")
		m.ObserveTask("freshness_ingest", "completed", time.Second)
	})
}

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveLLMUsage("gemini-2.0-flash", 100, 50, 0.25)
	m.ObserveGeneration("source-first", "ok", true)
	m.ObserveGeneration("source-first", "ok", false)
	m.ObserveQuotaDecision("cost_gate")
	m.ObserveFreshnessPoll("skipped")
	m.ObserveFreshnessPoll("skipped")

	assert.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("gemini-2.0-flash", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("gemini-2.0-flash", "completion")))
	assert.InDelta(t, 0.25, testutil.ToFloat64(m.LLMCost.WithLabelValues("gemini-2.0-flash")), 1e-9)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GenerationRequests.WithLabelValues("source-first", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("source-first")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("cost_gate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FreshnessPolls.WithLabelValues("skipped")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveTask("relationship_extraction", "completed", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lexis_task_executions_total{outcome="completed",type="relationship_extraction"} 1`)
}
