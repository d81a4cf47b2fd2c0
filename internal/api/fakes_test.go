package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/freshness"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/review"
	"github.com/phrazzld/lexis-api/internal/task"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newRequest builds a request with an authenticated caller and chi URL
// parameters given as name/value pairs.
func newRequest(
	t *testing.T,
	method, path string,
	body interface{},
	userID uuid.UUID,
	role auth.Role,
	params ...string,
) *http.Request {
	t.Helper()
	var buf io.Reader = http.NoBody
	if body != nil {
		if raw, ok := body.(string); ok {
			buf = bytes.NewBufferString(raw)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			buf = bytes.NewReader(b)
		}
	}
	r := httptest.NewRequest(method, path, buf)
	ctx := r.Context()
	if userID != uuid.Nil {
		ctx = context.WithValue(ctx, shared.UserIDContextKey, userID)
		ctx = context.WithValue(ctx, shared.RoleContextKey, role)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for i := 0; i+1 < len(params); i += 2 {
			rctx.URLParams.Add(params[i], params[i+1])
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return r.WithContext(ctx)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type fakeGenerationService struct {
	outcome *service.Outcome
	err     error
	userID  uuid.UUID
	req     service.GenerateRequest
	calls   int
}

func (f *fakeGenerationService) Generate(_ context.Context, userID uuid.UUID, req service.GenerateRequest) (*service.Outcome, error) {
	f.calls++
	f.userID, f.req = userID, req
	return f.outcome, f.err
}

func (f *fakeGenerationService) IngestDiscovered(context.Context, task.FreshnessPayload) error {
	return nil
}

type fakeQuotaReader struct {
	status *domain.QuotaStatus
	err    error
	asked  uuid.UUID
}

func (f *fakeQuotaReader) GetQuotaStatus(_ context.Context, userID uuid.UUID) (*domain.QuotaStatus, error) {
	f.asked = userID
	return f.status, f.err
}

type fakeReviewService struct {
	page       *review.Page
	filter     review.Filter
	decision   *review.Decision
	results    []review.BulkResult
	err        error
	action     domain.ReviewAction
	reviewerID uuid.UUID
	ids        []uuid.UUID
}

var _ review.Service = (*fakeReviewService)(nil)

func (f *fakeReviewService) Submit(context.Context, uuid.UUID, domain.Candidate, float64, float64, string) (*domain.ReviewItem, error) {
	return nil, f.err
}

func (f *fakeReviewService) Approve(ctx context.Context, id, reviewerID uuid.UUID, notes string) (*review.Decision, error) {
	return f.Decide(ctx, id, domain.ReviewActionApprove, reviewerID, notes)
}

func (f *fakeReviewService) Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*review.Decision, error) {
	return f.Decide(ctx, id, domain.ReviewActionReject, reviewerID, reason)
}

func (f *fakeReviewService) Decide(_ context.Context, id uuid.UUID, action domain.ReviewAction, reviewerID uuid.UUID, _ string) (*review.Decision, error) {
	f.action, f.reviewerID, f.ids = action, reviewerID, []uuid.UUID{id}
	return f.decision, f.err
}

func (f *fakeReviewService) Bulk(_ context.Context, ids []uuid.UUID, action domain.ReviewAction, reviewerID uuid.UUID, _ string) ([]review.BulkResult, error) {
	f.action, f.reviewerID, f.ids = action, reviewerID, ids
	return f.results, f.err
}

func (f *fakeReviewService) List(_ context.Context, filter review.Filter) (*review.Page, error) {
	f.filter = filter
	return f.page, f.err
}

type fakeMonitor struct {
	job      *domain.MonitoringJob
	sources  []domain.ClassifiedSource
	statuses []freshness.JobStatus
	err      error
	opts     freshness.StartOptions
	stopped  uuid.UUID
}

func (f *fakeMonitor) Start(_ context.Context, opts freshness.StartOptions) (*domain.MonitoringJob, []domain.ClassifiedSource, error) {
	f.opts = opts
	return f.job, f.sources, f.err
}

func (f *fakeMonitor) Stop(_ context.Context, id uuid.UUID, _ string) (*domain.MonitoringJob, error) {
	f.stopped = id
	return f.job, f.err
}

func (f *fakeMonitor) Status(context.Context) ([]freshness.JobStatus, error) {
	return f.statuses, f.err
}

type fakeTermService struct {
	related []domain.RelatedTerm
	tags    []domain.TermTag
	page    *service.TagPage
	stats   *domain.GraphStats
	err     error
	limit   int
	offset  int
}

func (f *fakeTermService) RelatedTerms(_ context.Context, _ uuid.UUID, limit int) ([]domain.RelatedTerm, error) {
	f.limit = limit
	return f.related, f.err
}

func (f *fakeTermService) TermTags(context.Context, uuid.UUID) ([]domain.TermTag, error) {
	return f.tags, f.err
}

func (f *fakeTermService) ListTags(_ context.Context, limit, offset int) (*service.TagPage, error) {
	f.limit, f.offset = limit, offset
	return f.page, f.err
}

func (f *fakeTermService) GraphStats(context.Context) (*domain.GraphStats, error) {
	return f.stats, f.err
}
