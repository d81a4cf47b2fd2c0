package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is a quota plan. Unknown or missing tiers resolve to free.
type Tier string

// Quota tiers, cheapest first
const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Tiers lists every tier in upgrade order.
var Tiers = []Tier{TierFree, TierBasic, TierPremium, TierEnterprise}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown tier %q", ErrValidation, s)
}

// Next returns the next tier up and false when t is already the highest.
func (t Tier) Next() (Tier, bool) {
	for i, candidate := range Tiers {
		if candidate == t && i+1 < len(Tiers) {
			return Tiers[i+1], true
		}
	}
	return "", false
}

// Window is a quota accounting period.
type Window string

// Quota windows, shortest first
const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists every window, shortest first.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Start returns the beginning of the window containing t, aligned in UTC.
func (w Window) Start(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// End returns the boundary at which the window containing t rolls over.
func (w Window) End(t time.Time) time.Time {
	return w.Start(t).Add(w.Duration())
}

// WindowUsage is a snapshot of one window's counters against its limits.
// A zero limit means unlimited.
type WindowUsage struct {
	Window        Window    `json:"window"`
	Requests      int64     `json:"requests"`
	Tokens        int64     `json:"tokens"`
	CostUSD       float64   `json:"cost_usd"`
	RequestLimit  int64     `json:"request_limit"`
	TokenLimit    int64     `json:"token_limit"`
	CostLimitUSD  float64   `json:"cost_limit_usd"`
	ResetsAt      time.Time `json:"resets_at"`
	UsedFraction  float64   `json:"used_fraction"`
	SoftThreshold bool      `json:"soft_threshold_reached"`
}

// QuotaStatus is the full usage snapshot for a user.
type QuotaStatus struct {
	UserID              uuid.UUID     `json:"user_id"`
	Tier                Tier          `json:"tier"`
	Windows             []WindowUsage `json:"windows"`
	MaxCostPerRequest   float64       `json:"max_cost_per_request_usd"`
	GlobalDailyCostUSD  float64       `json:"global_daily_cost_usd"`
	GlobalDailyLimitUSD float64       `json:"global_daily_limit_usd"`
	CheckedAt           time.Time     `json:"checked_at"`
}

// QuotaAccount assigns a tier to a user.
type QuotaAccount struct {
	UserID    uuid.UUID `json:"user_id"`
	Tier      Tier      `json:"tier"`
	UpdatedAt time.Time `json:"updated_at"`
}
