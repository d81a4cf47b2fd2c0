package quota

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/platform/metrics"
	"github.com/phrazzld/lexis-api/internal/store"
)

// Reason explains a rejection.
type Reason string

// Rejection reasons
const (
	ReasonNone        Reason = ""
	ReasonRateLimited Reason = "rate_limited"
	ReasonCostGate    Reason = "cost_gate"
)

var windowsOrder = [...]domain.Window{domain.WindowMinute, domain.WindowHour, domain.WindowDay}

// globalBucket is the index of the global budget bucket in a bucket list.
const globalBucket = len(windowsOrder)

// keyTTLSlack keeps a bucket readable briefly after its window ends.
const keyTTLSlack = time.Minute

// Estimate is the expected size of a request before it runs.
type Estimate struct {
	Tokens  int64
	CostUSD float64
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed    bool                `json:"allowed"`
	Reason     Reason              `json:"reason,omitempty"`
	Warning    bool                `json:"warning"`
	Message    string              `json:"message,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
	RetryAfter time.Duration       `json:"-"`
	Status     *domain.QuotaStatus `json:"usage,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Config holds the governor's limits.
type Config struct {
	SoftThreshold      float64
	GlobalDailyCostUSD float64
	Tiers              map[domain.Tier]config.TierLimits
}

// ConfigFromSettings converts the loaded quota settings.
func ConfigFromSettings(cfg config.QuotaConfig) Config {
	tiers := make(map[domain.Tier]config.TierLimits, len(cfg.Tiers))
	for name, limits := range cfg.Tiers {
		tiers[domain.Tier(name)] = limits
	}
	return Config{
		SoftThreshold:      cfg.SoftThreshold,
		GlobalDailyCostUSD: cfg.GlobalDailyCostUSD,
		Tiers:              tiers,
	}
}

// Governor enforces per-user and global limits.
type Governor struct {
	counters store.QuotaCounterStore
	accounts store.QuotaAccountStore
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewGovernor creates a governor. m may be nil.
func NewGovernor(
	counters store.QuotaCounterStore,
	accounts store.QuotaAccountStore,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Governor {
	if counters == nil {
		panic("counters cannot be nil")
	}
	if accounts == nil {
		panic("accounts cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		counters: counters,
		accounts: accounts,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With(slog.String("component", "quota_governor")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the governor's time source.
func (g *Governor) SetClock(now func() time.Time) {
	g.now = now
}

// ToMicros converts dollars to the integer micro-dollars used by counters.
func ToMicros(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Round(usd * 1e6))
}

func fromMicros(micros int64) float64 {
	return float64(micros) / 1e6
}

func (g *Governor) limits(tier domain.Tier) config.TierLimits {
	if l, ok := g.cfg.Tiers[tier]; ok {
		return l
	}
	return g.cfg.Tiers[domain.TierFree]
}

// buckets returns the user's minute, hour and day buckets followed by the
// global daily bucket.
func (g *Governor) buckets(userID uuid.UUID, limits config.TierLimits, now time.Time) []store.Bucket {
	out := make([]store.Bucket, 0, len(windowsOrder)+1)
	for _, w := range windowsOrder {
		b := store.Bucket{
			Key: fmt.Sprintf("user:%s:%s:%s", userID, w, strconv.FormatInt(w.Start(now).Unix(), 10)),
			TTL: w.End(now).Sub(now) + keyTTLSlack,
		}
		switch w {
		case domain.WindowMinute:
			b.MaxRequests, b.MaxTokens = limits.RequestsPerMinute, limits.TokensPerMinute
		case domain.WindowHour:
			b.MaxRequests, b.MaxTokens = limits.RequestsPerHour, limits.TokensPerHour
			b.MaxCostMicros = ToMicros(limits.CostPerHourUSD)
		case domain.WindowDay:
			b.MaxRequests, b.MaxTokens = limits.RequestsPerDay, limits.TokensPerDay
			b.MaxCostMicros = ToMicros(limits.CostPerDayUSD)
		}
		out = append(out, b)
	}
	out = append(out, store.Bucket{
		Key:           "global:day:" + strconv.FormatInt(domain.WindowDay.Start(now).Unix(), 10),
		TTL:           domain.WindowDay.End(now).Sub(now) + keyTTLSlack,
		MaxCostMicros: ToMicros(g.cfg.GlobalDailyCostUSD),
	})
	return out
}

func bucketWindow(i int) domain.Window {
	if i < len(windowsOrder) {
		return windowsOrder[i]
	}
	return domain.WindowDay
}

// CheckQuota reports whether the user could make one more request now. It
// does not change any counter.
func (g *Governor) CheckQuota(ctx context.Context, userID uuid.UUID) (Decision, error) {
	tier, err := g.accounts.GetTier(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve tier: %w", err)
	}
	now := g.now()
	limits := g.limits(tier)
	buckets := g.buckets(userID, limits, now)

	usage, err := g.counters.Read(ctx, buckets)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read quota usage: %w", err)
	}

	violations := store.Violations(buckets, usage, 0, 0)
	return g.decide(userID, tier, limits, buckets, usage, violations, now), nil
}

// Admit atomically checks every window against est and, when all pass,
// records the request and reserves est.Tokens and est.CostUSD in every
// window. Callers report the measured usage with Settle. A rejected decision
// is returned with an *ExceededError.
func (g *Governor) Admit(ctx context.Context, userID uuid.UUID, est Estimate) (Decision, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	tier, err := g.accounts.GetTier(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to resolve tier: %w", err)
	}
	now := g.now()
	limits := g.limits(tier)

	if limits.MaxCostPerRequest > 0 && est.CostUSD > limits.MaxCostPerRequest {
		d := Decision{
			Reason: ReasonCostGate,
			Message: fmt.Sprintf("estimated cost $%.4f exceeds the $%.4f per-request ceiling of the %s tier",
				est.CostUSD, limits.MaxCostPerRequest, tier),
			Suggestion: "request fewer terms",
		}
		if next, ok := tier.Next(); ok {
			d.Suggestion += " or upgrade to " + string(next)
		}
		g.metrics.ObserveQuotaDecision(string(d.Reason))
		log.Info("request rejected by cost ceiling",
			slog.String("user_id", userID.String()),
			slog.Float64("estimated_cost_usd", est.CostUSD))
		return d, &ExceededError{Decision: d}
	}

	buckets := g.buckets(userID, limits, now)
	res, err := g.counters.Admit(ctx, buckets, est.Tokens, ToMicros(est.CostUSD))
	if err != nil {
		return Decision{}, err
	}

	d := g.decide(userID, tier, limits, buckets, res.Usage, res.Violations, now)
	if !res.Allowed && d.Allowed {
		// A backend that rejects without naming a bucket still rejects.
		d.Allowed, d.Reason = false, ReasonRateLimited
	}
	if !d.Allowed {
		log.Info("request rejected by quota",
			slog.String("user_id", userID.String()),
			slog.String("reason", string(d.Reason)),
			slog.Duration("retry_after", d.RetryAfter))
		return d, &ExceededError{Decision: d}
	}
	return d, nil
}

// IncrementUsage adds the measured tokens and cost of a completed request to
// every window and to the global budget.
func (g *Governor) IncrementUsage(ctx context.Context, userID uuid.UUID, tokens int64, costUSD float64) error {
	if tokens < 0 || costUSD < 0 {
		return ErrInvalidUsage
	}
	tier, err := g.accounts.GetTier(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve tier: %w", err)
	}
	buckets := g.buckets(userID, g.limits(tier), g.now())
	if err := g.counters.Add(ctx, buckets, tokens, ToMicros(costUSD)); err != nil {
		logger.FromContextOrDefault(ctx, g.logger).Error("failed to record usage",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Settle reconciles an admitted request's reservation with its measured
// usage. Usage above the estimate is added to every window; usage below it
// leaves the reservation in place, since counters never decrease. Call it
// whether or not the request succeeded.
func (g *Governor) Settle(ctx context.Context, userID uuid.UUID, est Estimate, tokens int64, costUSD float64) error {
	if tokens < 0 || costUSD < 0 {
		return ErrInvalidUsage
	}
	extraTokens := max(tokens-max(est.Tokens, 0), 0)
	extraMicros := max(ToMicros(costUSD)-ToMicros(est.CostUSD), 0)
	if extraTokens == 0 && extraMicros == 0 {
		return nil
	}

	tier, err := g.accounts.GetTier(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve tier: %w", err)
	}
	buckets := g.buckets(userID, g.limits(tier), g.now())
	if err := g.counters.Add(ctx, buckets, extraTokens, extraMicros); err != nil {
		logger.FromContextOrDefault(ctx, g.logger).Error("failed to settle usage",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// GetQuotaStatus returns the user's usage snapshot.
func (g *Governor) GetQuotaStatus(ctx context.Context, userID uuid.UUID) (*domain.QuotaStatus, error) {
	tier, err := g.accounts.GetTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tier: %w", err)
	}
	now := g.now()
	limits := g.limits(tier)
	buckets := g.buckets(userID, limits, now)
	usage, err := g.counters.Read(ctx, buckets)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return g.status(userID, tier, limits, buckets, usage, now), nil
}

func (g *Governor) status(
	userID uuid.UUID,
	tier domain.Tier,
	limits config.TierLimits,
	buckets []store.Bucket,
	usage []store.Usage,
	now time.Time,
) *domain.QuotaStatus {
	st := &domain.QuotaStatus{
		UserID:              userID,
		Tier:                tier,
		MaxCostPerRequest:   limits.MaxCostPerRequest,
		GlobalDailyCostUSD:  fromMicros(usage[globalBucket].CostMicros),
		GlobalDailyLimitUSD: g.cfg.GlobalDailyCostUSD,
		CheckedAt:           now,
	}
	for i, w := range windowsOrder {
		b, u := buckets[i], usage[i]
		fraction := maxFraction(u, b)
		st.Windows = append(st.Windows, domain.WindowUsage{
			Window:        w,
			Requests:      u.Requests,
			Tokens:        u.Tokens,
			CostUSD:       fromMicros(u.CostMicros),
			RequestLimit:  b.MaxRequests,
			TokenLimit:    b.MaxTokens,
			CostLimitUSD:  fromMicros(b.MaxCostMicros),
			ResetsAt:      w.End(now),
			UsedFraction:  fraction,
			SoftThreshold: fraction >= g.cfg.SoftThreshold,
		})
	}
	return st
}

// maxFraction is the highest used share of any limited dimension.
func maxFraction(u store.Usage, b store.Bucket) float64 {
	var f float64
	for _, pair := range [][2]int64{
		{u.Requests, b.MaxRequests},
		{u.Tokens, b.MaxTokens},
		{u.CostMicros, b.MaxCostMicros},
	} {
		if pair[1] > 0 {
			f = math.Max(f, float64(pair[0])/float64(pair[1]))
		}
	}
	return f
}

func (g *Governor) decide(
	userID uuid.UUID,
	tier domain.Tier,
	limits config.TierLimits,
	buckets []store.Bucket,
	usage []store.Usage,
	violations []store.Violation,
	now time.Time,
) Decision {
	st := g.status(userID, tier, limits, buckets, usage, now)
	d := Decision{Allowed: len(violations) == 0, Status: st}

	if !d.Allowed {
		d.Reason = ReasonRateLimited
		var latest time.Time
		var window domain.Window
		for _, v := range violations {
			if v.Dimension == store.DimensionCost {
				d.Reason = ReasonCostGate
			}
			w := bucketWindow(v.Bucket)
			if end := w.End(now); end.After(latest) {
				latest, window = end, w
			}
		}
		d.RetryAfter = latest.Sub(now)
		if d.Reason == ReasonCostGate {
			d.Message = fmt.Sprintf("%s cost limit reached", window)
		} else {
			d.Message = fmt.Sprintf("%s rate limit reached", window)
		}
		if violatesGlobal(violations) {
			d.Message = "global daily cost budget reached"
		}
		d.Suggestion = "wait until " + latest.Format(time.RFC3339)
		if next, ok := tier.Next(); ok && !violatesGlobal(violations) {
			d.Suggestion += " or upgrade to " + string(next)
		}
		g.metrics.ObserveQuotaDecision(string(d.Reason))
		return d
	}

	for _, w := range st.Windows {
		if w.SoftThreshold {
			d.Warning = true
			d.Message = fmt.Sprintf("%.0f%% of %s quota used", w.UsedFraction*100, w.Window)
			if next, ok := tier.Next(); ok {
				d.Suggestion = "consider upgrading to " + string(next)
			}
			break
		}
	}
	if d.Warning {
		g.metrics.ObserveQuotaDecision("warning")
	} else {
		g.metrics.ObserveQuotaDecision("allowed")
	}
	return d
}

func violatesGlobal(violations []store.Violation) bool {
	for _, v := range violations {
		if v.Bucket == globalBucket {
			return true
		}
	}
	return false
}
