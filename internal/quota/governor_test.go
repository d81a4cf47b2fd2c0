package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// fakeClock is a settable time source shared by the governor and the store.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	return Config{
		SoftThreshold:      0.8,
		GlobalDailyCostUSD: 100,
		Tiers: map[domain.Tier]config.TierLimits{
			domain.TierFree: {
				RequestsPerMinute: 1000, RequestsPerHour: 1000, RequestsPerDay: 1000,
				TokensPerMinute: 0, TokensPerHour: 1000, TokensPerDay: 100_000,
				CostPerHourUSD: 10, CostPerDayUSD: 50, MaxCostPerRequest: 1,
			},
			domain.TierBasic: {RequestsPerMinute: 3},
		},
	}
}

func newTestGovernor(t *testing.T, cfg Config) (*Governor, *fakeClock, *MemoryAccountStore) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 15, 30, 0, time.UTC)}
	accounts := NewMemoryAccountStore()
	g := NewGovernor(NewMemoryCounterStore(clock.Now), accounts, cfg, nil, nil)
	g.SetClock(clock.Now)
	return g, clock, accounts
}

func TestCheckIncrementCheck(t *testing.T) {
	g, _, _ := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()

	before, err := g.GetQuotaStatus(ctx, user)
	require.NoError(t, err)

	const callers = 100
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.CheckQuota(ctx, user)
			assert.NoError(t, err)
			assert.NoError(t, g.IncrementUsage(ctx, user, 3, 0.01))
		}()
	}
	wg.Wait()

	after, err := g.GetQuotaStatus(ctx, user)
	require.NoError(t, err)
	for i, w := range after.Windows {
		assert.Equal(t, before.Windows[i].Tokens+3*callers, w.Tokens, "window %s", w.Window)
		assert.InDelta(t, 1.0, w.CostUSD, 1e-9, "window %s", w.Window)
	}
	assert.InDelta(t, 1.0, after.GlobalDailyCostUSD, 1e-9)
}

func TestAdmitIsExactUnderConcurrency(t *testing.T) {
	g, _, accounts := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, accounts.SetTier(ctx, user, domain.TierBasic))

	var allowed, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Admit(ctx, user, Estimate{})
			if d.Allowed {
				allowed.Add(1)
				return
			}
			if assert.ErrorIs(t, err, ErrQuotaExceeded) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), allowed.Load())
	assert.Equal(t, int64(97), rejected.Load())

	st, err := g.GetQuotaStatus(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Windows[0].Requests)
}

func TestAdmitReservesEstimatedTokensUnderConcurrency(t *testing.T) {
	g, _, _ := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.Admit(ctx, user, Estimate{Tokens: 600})
			if d.Allowed {
				allowed.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrQuotaExceeded)
		}()
	}
	wg.Wait()

	// The hourly cap of 1000 leaves room for one 600 token reservation.
	assert.Equal(t, int64(1), allowed.Load())
	st, err := g.GetQuotaStatus(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(600), st.Windows[1].Tokens)
	assert.Equal(t, int64(1), st.Windows[1].Requests)
}

func TestSettle(t *testing.T) {
	t.Run("usage above the estimate is added", func(t *testing.T) {
		g, _, _ := newTestGovernor(t, testConfig())
		ctx := context.Background()
		user := uuid.New()
		est := Estimate{Tokens: 100, CostUSD: 0.01}

		_, err := g.Admit(ctx, user, est)
		require.NoError(t, err)
		require.NoError(t, g.Settle(ctx, user, est, 250, 0.03))

		st, err := g.GetQuotaStatus(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(250), st.Windows[1].Tokens)
		assert.InDelta(t, 0.03, st.Windows[1].CostUSD, 1e-9)
		assert.InDelta(t, 0.03, st.GlobalDailyCostUSD, 1e-9)
	})

	t.Run("usage below the estimate keeps the reservation", func(t *testing.T) {
		g, _, _ := newTestGovernor(t, testConfig())
		ctx := context.Background()
		user := uuid.New()
		est := Estimate{Tokens: 400, CostUSD: 0.05}

		_, err := g.Admit(ctx, user, est)
		require.NoError(t, err)
		require.NoError(t, g.Settle(ctx, user, est, 10, 0))

		st, err := g.GetQuotaStatus(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(400), st.Windows[1].Tokens)
		assert.InDelta(t, 0.05, st.Windows[1].CostUSD, 1e-9)
	})

	t.Run("negative usage", func(t *testing.T) {
		g, _, _ := newTestGovernor(t, testConfig())
		assert.ErrorIs(t, g.Settle(context.Background(), uuid.New(), Estimate{}, -1, 0), ErrInvalidUsage)
	})
}

func TestHourlyTokenCapRetryAfter(t *testing.T) {
	g, clock, _ := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, g.IncrementUsage(ctx, user, 1000, 0))

	d, err := g.CheckQuota(ctx, user)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimited, d.Reason)

	remaining := domain.WindowHour.End(clock.Now()).Sub(clock.Now())
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, remaining)
	assert.Contains(t, d.Suggestion, "wait until")
	assert.Contains(t, d.Suggestion, "upgrade to basic")

	clock.Advance(d.RetryAfter + time.Second)
	d, err = g.CheckQuota(ctx, user)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAdmitRejections(t *testing.T) {
	t.Run("per request ceiling", func(t *testing.T) {
		g, _, _ := newTestGovernor(t, testConfig())
		d, err := g.Admit(context.Background(), uuid.New(), Estimate{Tokens: 10, CostUSD: 2})

		var exceeded *ExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.Equal(t, ReasonCostGate, d.Reason)
		assert.Equal(t, d, exceeded.Decision)
		assert.Zero(t, d.RetryAfter)
	})

	t.Run("cost window", func(t *testing.T) {
		g, _, _ := newTestGovernor(t, testConfig())
		ctx := context.Background()
		user := uuid.New()
		require.NoError(t, g.IncrementUsage(ctx, user, 0, 9.99))

		d, err := g.Admit(ctx, user, Estimate{CostUSD: 0.5})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, ReasonCostGate, d.Reason)
		assert.Contains(t, d.Message, "hour")
	})

	t.Run("global budget", func(t *testing.T) {
		cfg := testConfig()
		cfg.GlobalDailyCostUSD = 1
		g, _, _ := newTestGovernor(t, cfg)
		ctx := context.Background()
		require.NoError(t, g.IncrementUsage(ctx, uuid.New(), 0, 1))

		d, err := g.Admit(ctx, uuid.New(), Estimate{CostUSD: 0.01})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, ReasonCostGate, d.Reason)
		assert.Equal(t, "global daily cost budget reached", d.Message)
		assert.NotContains(t, d.Suggestion, "upgrade")
	})

	t.Run("rejection does not count", func(t *testing.T) {
		g, _, accounts := newTestGovernor(t, testConfig())
		ctx := context.Background()
		user := uuid.New()
		require.NoError(t, accounts.SetTier(ctx, user, domain.TierBasic))
		for i := 0; i < 5; i++ {
			_, _ = g.Admit(ctx, user, Estimate{})
		}
		st, err := g.GetQuotaStatus(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.Windows[0].Requests)
	})
}

func TestSoftThresholdWarning(t *testing.T) {
	g, _, _ := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, g.IncrementUsage(ctx, user, 850, 0))

	d, err := g.Admit(ctx, user, Estimate{Tokens: 10})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.True(t, d.Warning)
	assert.Contains(t, d.Message, "hour")
}

func TestIncrementUsageRejectsNegative(t *testing.T) {
	g, _, _ := newTestGovernor(t, testConfig())
	assert.ErrorIs(t, g.IncrementUsage(context.Background(), uuid.New(), -1, 0), ErrInvalidUsage)
}

func TestGetQuotaStatus(t *testing.T) {
	g, clock, _ := newTestGovernor(t, testConfig())
	ctx := context.Background()
	user := uuid.New()

	st, err := g.GetQuotaStatus(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, st.Tier)
	require.Len(t, st.Windows, 3)
	assert.Equal(t, domain.WindowMinute, st.Windows[0].Window)
	assert.Equal(t, clock.Now().Truncate(time.Minute).Add(time.Minute), st.Windows[0].ResetsAt)
	assert.Equal(t, int64(1000), st.Windows[1].TokenLimit)
	assert.InDelta(t, 50.0, st.Windows[2].CostLimitUSD, 1e-9)
}

func TestMemoryCounterStoreExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	s := NewMemoryCounterStore(clock.Now)
	ctx := context.Background()
	b := []store.Bucket{{Key: "k", TTL: time.Minute}}

	require.NoError(t, s.Add(ctx, b, 5, 0))
	usage, err := s.Read(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(5), usage[0].Tokens)

	clock.Advance(2 * time.Minute)
	usage, err = s.Read(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, usage[0].Tokens)
}
