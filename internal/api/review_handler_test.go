package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
)

func TestReviewHandler_List(t *testing.T) {
	moderator := uuid.New()
	topicID := uuid.New()

	tests := []struct {
		name           string
		query          string
		svcErr         error
		expectedStatus int
		check          func(t *testing.T, f review.Filter)
	}{
		{
			name:           "defaults to pending",
			query:          "",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f review.Filter) {
				assert.Equal(t, domain.ReviewStatusPending, f.Status)
				assert.Nil(t, f.TopicID)
				assert.Zero(t, f.Limit)
			},
		},
		{
			name:           "topic name and paging",
			query:          "?status=rejected&topic=Particle%20Physics&limit=5&offset=10",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f review.Filter) {
				assert.Equal(t, domain.ReviewStatusRejected, f.Status)
				assert.Equal(t, "Particle Physics", f.TopicName)
				assert.Equal(t, 5, f.Limit)
				assert.Equal(t, 10, f.Offset)
			},
		},
		{
			name:           "topic id",
			query:          "?topic=" + topicID.String(),
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f review.Filter) {
				require.NotNil(t, f.TopicID)
				assert.Equal(t, topicID, *f.TopicID)
				assert.Empty(t, f.TopicName)
			},
		},
		{
			name:           "negative limit",
			query:          "?limit=-1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid status from service",
			query:          "?status=archived",
			svcErr:         fmt.Errorf("%w: unknown status", review.ErrInvalidFilter),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeReviewService{page: &review.Page{Items: []*domain.ReviewItem{}}, err: tt.svcErr}
			h := NewReviewHandler(svc, discard)

			w := httptest.NewRecorder()
			h.List(w, newRequest(t, http.MethodGet, "/api/review"+tt.query, nil, moderator, auth.RoleModerator))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.check != nil {
				tt.check(t, svc.filter)
			}
		})
	}
}

func TestReviewHandler_Decide(t *testing.T) {
	moderator := uuid.New()
	itemID := uuid.New()
	termID := uuid.New()

	tests := []struct {
		name           string
		pathID         string
		body           interface{}
		decision       *review.Decision
		svcErr         error
		expectedStatus int
	}{
		{
			name:           "approve",
			pathID:         itemID.String(),
			body:           ReviewDecisionRequest{Action: "approve", Notes: "looks right"},
			decision:       &review.Decision{ItemID: itemID, Action: domain.ReviewActionApprove, Status: domain.ReviewStatusApproved, Applied: true, TermID: &termID},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "conflict is reported in the decision",
			pathID: itemID.String(),
			body:   ReviewDecisionRequest{Action: "approve"},
			decision: &review.Decision{
				ItemID: itemID, Action: domain.ReviewActionApprove, Status: domain.ReviewStatusRejected,
				Conflict: &review.TransitionError{ItemID: itemID, From: domain.ReviewStatusRejected, Action: domain.ReviewActionApprove},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown action",
			pathID:         itemID.String(),
			body:           map[string]string{"action": "escalate"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid id",
			pathID:         "nope",
			body:           ReviewDecisionRequest{Action: "reject"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing item",
			pathID:         itemID.String(),
			body:           ReviewDecisionRequest{Action: "reject"},
			svcErr:         review.ErrItemNotFound,
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeReviewService{decision: tt.decision, err: tt.svcErr}
			h := NewReviewHandler(svc, discard)

			w := httptest.NewRecorder()
			h.Decide(w, newRequest(t, http.MethodPost, "/api/review/"+tt.pathID, tt.body, moderator,
				auth.RoleModerator, "id", tt.pathID))

			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				return
			}
			assert.Equal(t, moderator, svc.reviewerID)
			assert.Equal(t, []uuid.UUID{itemID}, svc.ids)

			var got review.Decision
			decodeBody(t, w, &got)
			assert.Equal(t, tt.decision.Applied, got.Applied)
			assert.Equal(t, tt.decision.Conflict != nil, got.Conflict != nil)
		})
	}
}

func TestReviewHandler_Bulk(t *testing.T) {
	moderator := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	t.Run("partial failure", func(t *testing.T) {
		svc := &fakeReviewService{results: []review.BulkResult{
			{ID: ids[0], Decision: &review.Decision{ItemID: ids[0], Applied: true}},
			{ID: ids[1], Error: "Review item not found"},
			{ID: ids[2], Decision: &review.Decision{ItemID: ids[2], Conflict: &review.TransitionError{ItemID: ids[2]}}},
		}}
		h := NewReviewHandler(svc, discard)

		w := httptest.NewRecorder()
		h.Bulk(w, newRequest(t, http.MethodPost, "/api/review/bulk",
			BulkReviewRequest{IDs: ids, Action: "reject", Notes: "off-topic"}, moderator, auth.RoleAdmin))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.ReviewActionReject, svc.action)
		assert.Equal(t, ids, svc.ids)

		var resp BulkReviewResponse
		decodeBody(t, w, &resp)
		assert.Equal(t, 1, resp.Succeeded)
		assert.Equal(t, 2, resp.Failed)
		assert.Len(t, resp.Results, 3)
	})

	t.Run("empty ids", func(t *testing.T) {
		h := NewReviewHandler(&fakeReviewService{}, discard)
		w := httptest.NewRecorder()
		h.Bulk(w, newRequest(t, http.MethodPost, "/api/review/bulk",
			map[string]interface{}{"ids": []string{}, "action": "approve"}, moderator, auth.RoleAdmin))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
