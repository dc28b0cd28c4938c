// Package admission decides whether a learner may start a quota-tracked
// action. A cheap in-process rate limiter is consulted first and a persisted
// usage quota second.
package admission

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTier is returned when a tier name is not configured.
var ErrUnknownTier = errors.New("admission: unknown tier")

// Operation is a rate-limited action.
type Operation string

const (
	OpAPICall           Operation = "api_call"
	OpStudySessionStart Operation = "study_session_start"
)

// Resource is a quota-tracked resource.
type Resource string

const (
	ResAPIRequestsDaily   Resource = "api_requests_daily"
	ResStudySessionsDaily Resource = "study_sessions_daily"
)

// Daily reports whether the resource's usage resets every day. Any other
// resource is counted over its lifetime.
func (r Resource) Daily() bool {
	switch r {
	case ResAPIRequestsDaily, ResStudySessionsDaily:
		return true
	default:
		return false
	}
}

// RateConfig allows MaxRequests per Window.
type RateConfig struct {
	MaxRequests int
	Window      time.Duration
}

// TierConfig holds the quotas and rates of one subscription tier.
type TierConfig struct {
	Name   string
	Quotas map[Resource]int64
	Rates  map[Operation]RateConfig
}

func perMinute(n int) RateConfig {
	return RateConfig{MaxRequests: n, Window: time.Minute}
}

var tiers = map[string]TierConfig{
	"free": {
		Name: "free",
		Quotas: map[Resource]int64{
			ResAPIRequestsDaily:   1_000,
			ResStudySessionsDaily: 100,
		},
		Rates: map[Operation]RateConfig{
			OpAPICall:           perMinute(60),
			OpStudySessionStart: perMinute(10),
		},
	},
	"pro": {
		Name: "pro",
		Quotas: map[Resource]int64{
			ResAPIRequestsDaily:   10_000,
			ResStudySessionsDaily: 1_000,
		},
		Rates: map[Operation]RateConfig{
			OpAPICall:           perMinute(300),
			OpStudySessionStart: perMinute(60),
		},
	},
	"enterprise": {
		Name: "enterprise",
		Quotas: map[Resource]int64{
			ResAPIRequestsDaily:   100_000,
			ResStudySessionsDaily: 10_000,
		},
		Rates: map[Operation]RateConfig{
			OpAPICall:           perMinute(1_000),
			OpStudySessionStart: perMinute(200),
		},
	},
}

// Tier returns the configuration of a named tier.
func Tier(name string) (TierConfig, error) {
	t, ok := tiers[name]
	if !ok {
		return TierConfig{}, fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return t, nil
}
