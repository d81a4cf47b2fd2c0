package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/store"
)

func TestRealtimeHandler_Start(t *testing.T) {
	moderator := uuid.New()
	job := &domain.MonitoringJob{ID: uuid.New(), TopicName: "semiconductors", IntervalMinutes: 15, Active: true}
	published := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	sources := []domain.ClassifiedSource{{
		Name:        "Reuters",
		URL:         "https://www.reuters.com/technology/chips",
		Type:        domain.SourceTypeNews,
		Reliability: domain.ReliabilityHigh,
		Industry:    "technology",
		PublishedAt: &published,
	}}

	t.Run("created", func(t *testing.T) {
		mon := &fakeMonitor{job: job, sources: sources}
		h := NewRealtimeHandler(mon, discard)

		w := httptest.NewRecorder()
		h.Start(w, newRequest(t, http.MethodPost, "/api/realtime/start", map[string]interface{}{
			"topic":               "semiconductors",
			"maxSources":          5,
			"monitoringInterval":  15,
			"prioritizeFreshness": true,
		}, moderator, auth.RoleModerator))

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, freshness.StartOptions{
			Topic:               "semiconductors",
			MaxSources:          5,
			IntervalMinutes:     15,
			PrioritizeFreshness: true,
			CreatedBy:           moderator,
		}, mon.opts)

		var resp StartMonitoringResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, job.ID, resp.MonitoringID)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "Reuters", resp.Sources[0].Name)
	})

	t.Run("invalid options", func(t *testing.T) {
		mon := &fakeMonitor{err: fmt.Errorf("%w: interval too short", freshness.ErrInvalidOptions)}
		w := httptest.NewRecorder()
		NewRealtimeHandler(mon, discard).Start(w, newRequest(t, http.MethodPost, "/api/realtime/start",
			map[string]interface{}{"topic": "semiconductors"}, moderator, auth.RoleModerator))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("discovery failure", func(t *testing.T) {
		mon := &fakeMonitor{err: fmt.Errorf("%w: every source failed", freshness.ErrDiscoveryFailed)}
		w := httptest.NewRecorder()
		NewRealtimeHandler(mon, discard).Start(w, newRequest(t, http.MethodPost, "/api/realtime/start",
			map[string]interface{}{"topic": "semiconductors"}, moderator, auth.RoleModerator))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("interval out of range", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewRealtimeHandler(&fakeMonitor{}, discard).Start(w, newRequest(t, http.MethodPost, "/api/realtime/start",
			map[string]interface{}{"topic": "semiconductors", "monitoringInterval": 100000}, moderator, auth.RoleModerator))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRealtimeHandler_Stop(t *testing.T) {
	id := uuid.New()

	t.Run("stopped", func(t *testing.T) {
		mon := &fakeMonitor{job: &domain.MonitoringJob{ID: id, StopReason: domain.StopReasonManual}}
		w := httptest.NewRecorder()
		NewRealtimeHandler(mon, discard).Stop(w, newRequest(t, http.MethodPost, "/api/realtime/stop",
			map[string]string{"monitoringId": id.String()}, uuid.New(), auth.RoleAdmin))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, mon.stopped)
		var resp StopMonitoringResponse
		decodeBody(t, w, &resp)
		assert.False(t, resp.Active)
		assert.Equal(t, domain.StopReasonManual, resp.StopReason)
	})

	t.Run("unknown job", func(t *testing.T) {
		mon := &fakeMonitor{err: store.ErrMonitoringJobNotFound}
		w := httptest.NewRecorder()
		NewRealtimeHandler(mon, discard).Stop(w, newRequest(t, http.MethodPost, "/api/realtime/stop",
			map[string]string{"monitoringId": id.String()}, uuid.New(), auth.RoleAdmin))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRealtimeHandler_Status(t *testing.T) {
	w := httptest.NewRecorder()
	NewRealtimeHandler(&fakeMonitor{}, discard).Status(w, newRequest(t, http.MethodGet, "/api/realtime/status",
		nil, uuid.New(), auth.RoleModerator))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"monitors":[],"count":0}`, w.Body.String())
}
