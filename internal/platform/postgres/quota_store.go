package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/store"
)

// PostgresQuotaAccountStore implements store.QuotaAccountStore.
type PostgresQuotaAccountStore struct {
	db store.DBTX
}

var _ store.QuotaAccountStore = (*PostgresQuotaAccountStore)(nil)

// NewPostgresQuotaAccountStore creates a quota account store.
func NewPostgresQuotaAccountStore(db store.DBTX) *PostgresQuotaAccountStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresQuotaAccountStore{db: db}
}

// GetTier implements store.QuotaAccountStore.
func (s *PostgresQuotaAccountStore) GetTier(ctx context.Context, userID uuid.UUID) (domain.Tier, error) {
	var tier string
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM quota_accounts WHERE user_id = $1`, userID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TierFree, nil
	}
	if err != nil {
		return "", MapError(err)
	}
	parsed, err := domain.ParseTier(tier)
	if err != nil {
		return domain.TierFree, nil
	}
	return parsed, nil
}

// SetTier implements store.QuotaAccountStore.
func (s *PostgresQuotaAccountStore) SetTier(ctx context.Context, userID uuid.UUID, tier domain.Tier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_accounts (user_id, tier, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = NOW()`,
		userID, string(tier))
	return MapError(err)
}

// PostgresQuotaCounterStore implements store.QuotaCounterStore with one row
// per bucket. Admission locks the rows in key order so concurrent callers on
// overlapping buckets serialize without deadlocking.
type PostgresQuotaCounterStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ store.QuotaCounterStore = (*PostgresQuotaCounterStore)(nil)

// NewPostgresQuotaCounterStore creates a counter store.
func NewPostgresQuotaCounterStore(db *sql.DB, logger *slog.Logger) *PostgresQuotaCounterStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresQuotaCounterStore{
		db:     db,
		logger: logger.With(slog.String("component", "quota_counter_store")),
		now:    time.Now,
	}
}

// lockOrder returns bucket indexes sorted by key.
func lockOrder(buckets []store.Bucket) []int {
	order := make([]int, len(buckets))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return buckets[order[a]].Key < buckets[order[b]].Key })
	return order
}

// lockBuckets ensures every bucket row exists and reads it under FOR UPDATE.
func (s *PostgresQuotaCounterStore) lockBuckets(ctx context.Context, tx *sql.Tx, buckets []store.Bucket) ([]store.Usage, error) {
	now := s.now().UTC()
	usage := make([]store.Usage, len(buckets))
	for _, i := range lockOrder(buckets) {
		b := buckets[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quota_usage (bucket_key, expires_at, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (bucket_key) DO NOTHING`, b.Key, now.Add(b.TTL), now); err != nil {
			return nil, MapError(err)
		}
		err := tx.QueryRowContext(ctx,
			`SELECT requests, tokens, cost_micros FROM quota_usage WHERE bucket_key = $1 FOR UPDATE`, b.Key,
		).Scan(&usage[i].Requests, &usage[i].Tokens, &usage[i].CostMicros)
		if err != nil {
			return nil, MapError(err)
		}
	}
	return usage, nil
}

// Admit implements store.QuotaCounterStore.
func (s *PostgresQuotaCounterStore) Admit(
	ctx context.Context,
	buckets []store.Bucket,
	estTokens, estCostMicros int64,
) (store.AdmitResult, error) {
	var result store.AdmitResult
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		usage, err := s.lockBuckets(ctx, tx, buckets)
		if err != nil {
			return err
		}
		result.Usage = usage
		result.Violations = store.Violations(buckets, usage, estTokens, estCostMicros)
		if len(result.Violations) > 0 {
			return nil
		}
		for i, b := range buckets {
			if _, err := tx.ExecContext(ctx, `
				UPDATE quota_usage
				SET requests = requests + 1, tokens = tokens + $2, cost_micros = cost_micros + $3,
					updated_at = NOW()
				WHERE bucket_key = $1`, b.Key, estTokens, estCostMicros); err != nil {
				return MapError(err)
			}
			result.Usage[i].Requests++
			result.Usage[i].Tokens += estTokens
			result.Usage[i].CostMicros += estCostMicros
		}
		result.Allowed = true
		return nil
	})
	if err != nil {
		return store.AdmitResult{}, fmt.Errorf("quota admission failed: %w", err)
	}
	return result, nil
}

// Add implements store.QuotaCounterStore.
func (s *PostgresQuotaCounterStore) Add(ctx context.Context, buckets []store.Bucket, tokens, costMicros int64) error {
	now := s.now().UTC()
	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, i := range lockOrder(buckets) {
			b := buckets[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO quota_usage (bucket_key, tokens, cost_micros, expires_at, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (bucket_key) DO UPDATE
				SET tokens = quota_usage.tokens + EXCLUDED.tokens,
					cost_micros = quota_usage.cost_micros + EXCLUDED.cost_micros,
					updated_at = EXCLUDED.updated_at`,
				b.Key, tokens, costMicros, now.Add(b.TTL), now); err != nil {
				return MapError(err)
			}
		}
		return nil
	})
}

// Read implements store.QuotaCounterStore.
func (s *PostgresQuotaCounterStore) Read(ctx context.Context, buckets []store.Bucket) ([]store.Usage, error) {
	usage := make([]store.Usage, len(buckets))
	for i, b := range buckets {
		err := s.db.QueryRowContext(ctx,
			`SELECT requests, tokens, cost_micros FROM quota_usage WHERE bucket_key = $1`, b.Key,
		).Scan(&usage[i].Requests, &usage[i].Tokens, &usage[i].CostMicros)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, MapError(err)
		}
	}
	return usage, nil
}

// PurgeExpired removes bucket rows whose window has ended.
func (s *PostgresQuotaCounterStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quota_usage WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("purged expired quota buckets", slog.Int64("count", n))
	}
	return n, nil
}
