package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
)

func TestTermHandler_Related(t *testing.T) {
	termID := uuid.New()
	caller := uuid.New()

	tests := []struct {
		name           string
		query          string
		svcErr         error
		expectedStatus int
		expectedLimit  int
	}{
		{"default limit", "", nil, http.StatusOK, service.DefaultRelatedLimit},
		{"explicit limit", "?limit=5", nil, http.StatusOK, 5},
		{"bad limit", "?limit=abc", nil, http.StatusBadRequest, 0},
		{"unknown term", "", service.ErrTermNotFound, http.StatusNotFound, service.DefaultRelatedLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTermService{
				related: []domain.RelatedTerm{{TermID: uuid.New(), Term: "boson", Type: domain.RelationshipRelated, Strength: 0.6}},
				err:     tt.svcErr,
			}
			w := httptest.NewRecorder()
			NewTermHandler(svc, discard).Related(w, newRequest(t, http.MethodGet,
				"/api/terms/"+termID.String()+"/related"+tt.query, nil, caller, auth.RoleUser, "id", termID.String()))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedLimit, svc.limit)
			if tt.expectedStatus == http.StatusOK {
				var resp struct {
					Related []domain.RelatedTerm `json:"related"`
				}
				decodeBody(t, w, &resp)
				require.Len(t, resp.Related, 1)
				assert.Equal(t, "boson", resp.Related[0].Term)
			}
		})
	}
}

func TestTermHandler_Tags(t *testing.T) {
	termID := uuid.New()

	t.Run("empty list is not null", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewTermHandler(&fakeTermService{}, discard).Tags(w, newRequest(t, http.MethodGet,
			"/api/terms/"+termID.String()+"/tags", nil, uuid.New(), auth.RoleUser, "id", termID.String()))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"term_id":%q,"tags":[]}`, termID), w.Body.String())
	})

	t.Run("invalid id", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewTermHandler(&fakeTermService{}, discard).Tags(w, newRequest(t, http.MethodGet,
			"/api/terms/xyz/tags", nil, uuid.New(), auth.RoleUser, "id", "xyz"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTermHandler_ListTags(t *testing.T) {
	svc := &fakeTermService{page: &service.TagPage{Tags: []*domain.Tag{}, Total: 0, Limit: 2, Offset: 1}}
	w := httptest.NewRecorder()
	NewTermHandler(svc, discard).ListTags(w, newRequest(t, http.MethodGet, "/api/tags?limit=2&offset=1",
		nil, uuid.New(), auth.RoleUser))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.limit)
	assert.Equal(t, 1, svc.offset)
}

func TestTermHandler_GraphStats(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := &fakeTermService{stats: &domain.GraphStats{Terms: 3, Edges: 4, Tags: 2}}
		w := httptest.NewRecorder()
		NewTermHandler(svc, discard).GraphStats(w, newRequest(t, http.MethodGet, "/api/graph/stats",
			nil, uuid.New(), auth.RoleUser))

		require.Equal(t, http.StatusOK, w.Code)
		var stats domain.GraphStats
		decodeBody(t, w, &stats)
		assert.Equal(t, 4, stats.Edges)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &fakeTermService{err: errors.New("neo4j: connection reset")}
		w := httptest.NewRecorder()
		NewTermHandler(svc, discard).GraphStats(w, newRequest(t, http.MethodGet, "/api/graph/stats",
			nil, uuid.New(), auth.RoleUser))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Failed to load graph statistics")
	})
}
