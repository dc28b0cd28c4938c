package admission

import (
	"context"
	"log/slog"
	"time"
)

// Reason explains a denial.
type Reason string

const (
	ReasonRateLimited   Reason = "rate_limited"
	ReasonQuotaExceeded Reason = "quota_exceeded"
)

// Decision is the result of an admission check. A denial is a normal value,
// not an error.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Current    int64         `json:"current,omitempty"`
	Limit      int64         `json:"limit,omitempty"`
}

// Checker gates quota-tracked actions of a learner.
type Checker interface {
	Check(ctx context.Context, userID string, op Operation, resource Resource, amount int64) Decision
	RecordSuccess(ctx context.Context, userID string, resource Resource, amount int64) error
}

// Guard combines a RateLimiter and a Quota. The rate limiter is checked
// first so a rate denial wins over a quota denial.
type Guard struct {
	limiter *RateLimiter
	quota   *Quota
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLogger sets the logger used for counter failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// NewGuard builds a guard for tier with usage kept in counter.
func NewGuard(tier TierConfig, counter Counter, opts ...Option) *Guard {
	g := &Guard{
		limiter: NewRateLimiter(tier),
		quota:   NewQuota(tier, counter),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs the rate limiter for op and, when resource is not empty, the
// quota for amount units of it. An amount below 1 counts as 1. A counter
// that cannot be read does not block the learner.
func (g *Guard) Check(ctx context.Context, userID string, op Operation, resource Resource, amount int64) Decision {
	now := g.now()

	if ok, retry := g.limiter.Allow(userID, op, now); !ok {
		return Decision{Reason: ReasonRateLimited, RetryAfter: retry}
	}

	if resource == "" {
		return Decision{Allowed: true}
	}
	if amount < 1 {
		amount = 1
	}
	res, err := g.quota.Check(ctx, userID, resource, amount, now)
	if err != nil {
		g.logger.Warn("quota check failed, allowing", "user_id", userID, "resource", resource, "error", err)
		return Decision{Allowed: true}
	}
	if !res.Allowed {
		return Decision{Reason: ReasonQuotaExceeded, Current: res.Current, Limit: res.Limit}
	}
	return Decision{Allowed: true, Current: res.Current, Limit: res.Limit}
}

// RecordSuccess counts amount units of resource once the action completed.
func (g *Guard) RecordSuccess(ctx context.Context, userID string, resource Resource, amount int64) error {
	if amount < 1 {
		amount = 1
	}
	return g.quota.Record(ctx, userID, resource, amount, g.now())
}
