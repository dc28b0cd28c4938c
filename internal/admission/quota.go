package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter persists usage per learner, resource and period.
type Counter interface {
	Usage(ctx context.Context, userID, resource string, periodStart time.Time) (int64, error)
	AddUsage(ctx context.Context, userID, resource string, periodStart time.Time, amount int64) (int64, error)
}

// QuotaResult is the outcome of a quota check.
type QuotaResult struct {
	Allowed bool
	Current int64
	Limit   int64
}

// Quota enforces a tier's usage limits on top of a Counter. Daily resources
// are counted per UTC day, so their usage resets when the day changes.
type Quota struct {
	tier    TierConfig
	counter Counter
}

// NewQuota returns a quota for tier backed by counter.
func NewQuota(tier TierConfig, counter Counter) *Quota {
	return &Quota{tier: tier, counter: counter}
}

// Period returns the start of the counting period of resource at now.
func Period(resource Resource, now time.Time) time.Time {
	if !resource.Daily() {
		return time.Unix(0, 0).UTC()
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Check reports whether adding amount to the learner's usage stays within the
// limit. Resources the tier does not limit are always allowed.
func (q *Quota) Check(ctx context.Context, userID string, resource Resource, amount int64, now time.Time) (QuotaResult, error) {
	limit, ok := q.tier.Quotas[resource]
	if !ok {
		return QuotaResult{Allowed: true}, nil
	}
	current, err := q.counter.Usage(ctx, userID, string(resource), Period(resource, now))
	if err != nil {
		return QuotaResult{}, fmt.Errorf("failed to read usage of %s: %w", resource, err)
	}
	return QuotaResult{
		Allowed: current+amount <= limit,
		Current: current,
		Limit:   limit,
	}, nil
}

// Record adds amount to the learner's usage of resource.
func (q *Quota) Record(ctx context.Context, userID string, resource Resource, amount int64, now time.Time) error {
	if _, err := q.counter.AddUsage(ctx, userID, string(resource), Period(resource, now), amount); err != nil {
		return fmt.Errorf("failed to record usage of %s: %w", resource, err)
	}
	return nil
}

// MemoryCounter keeps usage in process memory.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (m *MemoryCounter) Usage(_ context.Context, userID, resource string, periodStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[usageKey(userID, resource, periodStart)], nil
}

func (m *MemoryCounter) AddUsage(_ context.Context, userID, resource string, periodStart time.Time, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := usageKey(userID, resource, periodStart)
	m.counts[key] += amount
	return m.counts[key], nil
}

// RedisCounter shares usage between processes through Redis. Keys of a
// period expire after RetainFor.
type RedisCounter struct {
	client    redis.UniversalClient
	prefix    string
	RetainFor time.Duration
}

// NewRedisCounter returns a counter storing keys under prefix.
func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, RetainFor: 48 * time.Hour}
}

func (r *RedisCounter) Usage(ctx context.Context, userID, resource string, periodStart time.Time) (int64, error) {
	n, err := r.client.Get(ctx, r.prefix+usageKey(userID, resource, periodStart)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage from redis: %w", err)
	}
	return n, nil
}

func (r *RedisCounter) AddUsage(ctx context.Context, userID, resource string, periodStart time.Time, amount int64) (int64, error) {
	key := r.prefix + usageKey(userID, resource, periodStart)

	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, amount)
	if Resource(resource).Daily() && r.RetainFor > 0 {
		pipe.Expire(ctx, key, r.RetainFor)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to add usage in redis: %w", err)
	}
	return incr.Val(), nil
}

func usageKey(userID, resource string, periodStart time.Time) string {
	return fmt.Sprintf("usage:%s:%s:%d", userID, resource, periodStart.Unix())
}
