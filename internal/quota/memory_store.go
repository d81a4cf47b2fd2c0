package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

type memoryEntry struct {
	usage   store.Usage
	expires time.Time
}

// MemoryCounterStore is a mutex guarded store.QuotaCounterStore for
// single-process deployments and tests.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

var _ store.QuotaCounterStore = (*MemoryCounterStore)(nil)

// NewMemoryCounterStore creates an empty store. now may be nil.
func NewMemoryCounterStore(now func() time.Time) *MemoryCounterStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounterStore{entries: make(map[string]*memoryEntry), now: now}
}

// get returns the live entry for b, replacing an expired one. Callers hold mu.
func (s *MemoryCounterStore) get(b store.Bucket, now time.Time) *memoryEntry {
	e, ok := s.entries[b.Key]
	if !ok || (!e.expires.IsZero() && now.After(e.expires)) {
		e = &memoryEntry{}
		s.entries[b.Key] = e
	}
	if b.TTL > 0 {
		e.expires = now.Add(b.TTL)
	}
	return e
}

// Admit implements store.QuotaCounterStore.
func (s *MemoryCounterStore) Admit(
	_ context.Context,
	buckets []store.Bucket,
	estTokens, estCostMicros int64,
) (store.AdmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entries := make([]*memoryEntry, len(buckets))
	usage := make([]store.Usage, len(buckets))
	for i, b := range buckets {
		entries[i] = s.get(b, now)
		usage[i] = entries[i].usage
	}

	violations := store.Violations(buckets, usage, estTokens, estCostMicros)
	if len(violations) > 0 {
		return store.AdmitResult{Violations: violations, Usage: usage}, nil
	}
	for i, e := range entries {
		e.usage.Requests++
		e.usage.Tokens += estTokens
		e.usage.CostMicros += estCostMicros
		usage[i] = e.usage
	}
	return store.AdmitResult{Allowed: true, Usage: usage}, nil
}

// Add implements store.QuotaCounterStore.
func (s *MemoryCounterStore) Add(_ context.Context, buckets []store.Bucket, tokens, costMicros int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, b := range buckets {
		e := s.get(b, now)
		e.usage.Tokens += tokens
		e.usage.CostMicros += costMicros
	}
	return nil
}

// Read implements store.QuotaCounterStore.
func (s *MemoryCounterStore) Read(_ context.Context, buckets []store.Bucket) ([]store.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	usage := make([]store.Usage, len(buckets))
	for i, b := range buckets {
		if e, ok := s.entries[b.Key]; ok && (e.expires.IsZero() || !now.After(e.expires)) {
			usage[i] = e.usage
		}
	}
	return usage, nil
}

// MemoryAccountStore is an in-memory store.QuotaAccountStore.
type MemoryAccountStore struct {
	mu    sync.RWMutex
	tiers map[uuid.UUID]domain.Tier
}

var _ store.QuotaAccountStore = (*MemoryAccountStore)(nil)

// NewMemoryAccountStore creates an empty account store where everyone is free.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{tiers: make(map[uuid.UUID]domain.Tier)}
}

// GetTier implements store.QuotaAccountStore.
func (s *MemoryAccountStore) GetTier(_ context.Context, userID uuid.UUID) (domain.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tier, ok := s.tiers[userID]; ok {
		return tier, nil
	}
	return domain.TierFree, nil
}

// SetTier implements store.QuotaAccountStore.
func (s *MemoryAccountStore) SetTier(_ context.Context, userID uuid.UUID, tier domain.Tier) error {
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
	return nil
}
