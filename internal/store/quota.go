package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
)

// QuotaAccountStore resolves a user's tier.
type QuotaAccountStore interface {
	// GetTier returns the user's tier, or domain.TierFree when the user has
	// no account row.
	GetTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error)

	// SetTier assigns a tier to a user.
	SetTier(ctx context.Context, userID uuid.UUID, tier domain.Tier) error
}

// Bucket is one counter set with its limits. Keys embed the window start,
// so a new window always starts from zero. A zero limit means unlimited.
type Bucket struct {
	Key           string
	TTL           time.Duration
	MaxRequests   int64
	MaxTokens     int64
	MaxCostMicros int64
}

// Usage is the current value of one bucket's counters.
type Usage struct {
	Requests   int64
	Tokens     int64
	CostMicros int64
}

// Dimension names the counter that caused a rejection.
type Dimension string

// Counter dimensions
const (
	DimensionRequests Dimension = "requests"
	DimensionTokens   Dimension = "tokens"
	DimensionCost     Dimension = "cost"
)

// AdmitResult reports the outcome of an atomic admission.
type AdmitResult struct {
	Allowed bool
	// Violations lists every bucket index and dimension that would exceed
	// its limit. Empty when Allowed.
	Violations []Violation
	// Usage holds the counters after the call, in bucket order. On success
	// they include this admission's request and reserved estimate.
	Usage []Usage
}

// Violation identifies one exceeded limit.
type Violation struct {
	Bucket    int
	Dimension Dimension
}

// QuotaCounterStore is the atomic counter backend used by the governor.
// Every method must be safe under concurrent calls for the same keys.
type QuotaCounterStore interface {
	// Admit checks every bucket as one atomic step. A bucket is violated when
	// requests+1 exceeds MaxRequests, or when tokens (cost) already reached
	// MaxTokens (MaxCostMicros) or would pass it by the estimate. Only when no
	// bucket is violated is every bucket changed: requests grow by one and
	// tokens and cost by the estimate, so concurrent admissions see each
	// other's reservations.
	Admit(ctx context.Context, buckets []Bucket, estTokens, estCostMicros int64) (AdmitResult, error)

	// Add atomically adds tokens and cost to every bucket.
	Add(ctx context.Context, buckets []Bucket, tokens, costMicros int64) error

	// Read returns the current counters of every bucket without changing them.
	Read(ctx context.Context, buckets []Bucket) ([]Usage, error)
}

// Violations evaluates the admission rule for buckets whose counters are
// usage. It is shared by backends that read counters under a lock.
func Violations(buckets []Bucket, usage []Usage, estTokens, estCostMicros int64) []Violation {
	var out []Violation
	for i, b := range buckets {
		u := usage[i]
		if b.MaxRequests > 0 && u.Requests+1 > b.MaxRequests {
			out = append(out, Violation{Bucket: i, Dimension: DimensionRequests})
		}
		if exceeds(u.Tokens, estTokens, b.MaxTokens) {
			out = append(out, Violation{Bucket: i, Dimension: DimensionTokens})
		}
		if exceeds(u.CostMicros, estCostMicros, b.MaxCostMicros) {
			out = append(out, Violation{Bucket: i, Dimension: DimensionCost})
		}
	}
	return out
}

func exceeds(current, estimate, limit int64) bool {
	if limit <= 0 {
		return false
	}
	return current >= limit || current+estimate > limit
}
