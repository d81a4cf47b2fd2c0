package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/lexis-api/internal/platform/logger"
	"github.com/phrazzld/lexis-api/internal/store"
)

// admitScript checks every bucket and, when all pass, counts the request and
// reserves the estimate in one server-side step.
//
// KEYS: bucket keys.
// ARGV: est_tokens, est_cost, then max_requests, max_tokens, max_cost, ttl_ms
// for each bucket.
// Returns: allowed flag followed by requests, tokens, cost for each bucket.
var admitScript = goredis.NewScript(`
local est_tokens = tonumber(ARGV[1])
local est_cost = tonumber(ARGV[2])

local function exceeds(current, estimate, limit)
  if limit <= 0 then
    return false
  end
  return current >= limit or current + estimate > limit
end

local usage = {}
local allowed = 1
for i = 1, #KEYS do
  local base = 2 + (i - 1) * 4
  local max_requests = tonumber(ARGV[base + 1])
  local max_tokens = tonumber(ARGV[base + 2])
  local max_cost = tonumber(ARGV[base + 3])

  local values = redis.call('HMGET', KEYS[i], 'r', 't', 'c')
  local r = tonumber(values[1]) or 0
  local t = tonumber(values[2]) or 0
  local c = tonumber(values[3]) or 0
  usage[i] = {r, t, c}

  if max_requests > 0 and r + 1 > max_requests then
    allowed = 0
  end
  if exceeds(t, est_tokens, max_tokens) or exceeds(c, est_cost, max_cost) then
    allowed = 0
  end
end

local out = {allowed}
for i = 1, #KEYS do
  local r, t, c = usage[i][1], usage[i][2], usage[i][3]
  if allowed == 1 then
    r = redis.call('HINCRBY', KEYS[i], 'r', 1)
    t = redis.call('HINCRBY', KEYS[i], 't', est_tokens)
    c = redis.call('HINCRBY', KEYS[i], 'c', est_cost)
    redis.call('PEXPIRE', KEYS[i], ARGV[2 + (i - 1) * 4 + 4])
  end
  table.insert(out, r)
  table.insert(out, t)
  table.insert(out, c)
end
return out
`)

// QuotaCounterStore implements store.QuotaCounterStore on Redis hashes.
// Each bucket is a hash with fields r (requests), t (tokens) and c (cost in
// micro-dollars) that expires once its window is over.
type QuotaCounterStore struct {
	rdb    goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

var _ store.QuotaCounterStore = (*QuotaCounterStore)(nil)

// NewQuotaCounterStore creates a counter store that namespaces keys under prefix.
func NewQuotaCounterStore(rdb goredis.UniversalClient, prefix string, logger *slog.Logger) *QuotaCounterStore {
	if rdb == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaCounterStore{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With(slog.String("component", "redis_quota_store")),
	}
}

func (s *QuotaCounterStore) keys(buckets []store.Bucket) []string {
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = s.prefix + b.Key
	}
	return keys
}

// Admit implements store.QuotaCounterStore.
func (s *QuotaCounterStore) Admit(
	ctx context.Context,
	buckets []store.Bucket,
	estTokens, estCostMicros int64,
) (store.AdmitResult, error) {
	args := make([]any, 0, 2+4*len(buckets))
	args = append(args, estTokens, estCostMicros)
	for _, b := range buckets {
		ttl := b.TTL.Milliseconds()
		if ttl <= 0 {
			ttl = 1
		}
		args = append(args, b.MaxRequests, b.MaxTokens, b.MaxCostMicros, ttl)
	}

	values, err := admitScript.Run(ctx, s.rdb, s.keys(buckets), args...).Int64Slice()
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("quota admission script failed",
			slog.String("error", err.Error()))
		return store.AdmitResult{}, fmt.Errorf("quota admission failed: %w", err)
	}
	if len(values) != 1+3*len(buckets) {
		return store.AdmitResult{}, fmt.Errorf("quota admission failed: unexpected reply length %d", len(values))
	}

	usage := make([]store.Usage, len(buckets))
	for i := range buckets {
		base := 1 + 3*i
		usage[i] = store.Usage{Requests: values[base], Tokens: values[base+1], CostMicros: values[base+2]}
	}

	result := store.AdmitResult{Allowed: values[0] == 1, Usage: usage}
	if !result.Allowed {
		result.Violations = store.Violations(buckets, usage, estTokens, estCostMicros)
	}
	return result, nil
}

// Add implements store.QuotaCounterStore. All increments run in one
// MULTI/EXEC block.
func (s *QuotaCounterStore) Add(ctx context.Context, buckets []store.Bucket, tokens, costMicros int64) error {
	if tokens == 0 && costMicros == 0 {
		return nil
	}
	keys := s.keys(buckets)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, b := range buckets {
			pipe.HIncrBy(ctx, keys[i], "t", tokens)
			pipe.HIncrBy(ctx, keys[i], "c", costMicros)
			pipe.PExpire(ctx, keys[i], b.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("quota usage update failed: %w", err)
	}
	return nil
}

// Read implements store.QuotaCounterStore.
func (s *QuotaCounterStore) Read(ctx context.Context, buckets []store.Bucket) ([]store.Usage, error) {
	keys := s.keys(buckets)
	cmds := make([]*goredis.SliceCmd, len(keys))
	_, err := s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HMGet(ctx, key, "r", "t", "c")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quota usage read failed: %w", err)
	}

	usage := make([]store.Usage, len(keys))
	for i, cmd := range cmds {
		vals := cmd.Val()
		usage[i] = store.Usage{
			Requests:   parseField(vals, 0),
			Tokens:     parseField(vals, 1),
			CostMicros: parseField(vals, 2),
		}
	}
	return usage, nil
}

// parseField reads one HMGET value. Missing fields come back as nil.
func parseField(vals []any, i int) int64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	s, ok := vals[i].(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
