// Package ratelimit paces requests to the catalog API.
// It combines a client-side token bucket with the quota the API reports in
// X-RateLimit-* headers and the pause it requests with Retry-After.
package ratelimit

import (
	"time"
)

// Thresholds for rate limit decisions.
const (
	// ThrottleThreshold slows requests down when fewer requests than this
	// remain in the API's current window.
	ThrottleThreshold = 5

	// ThrottleDelay is the extra pause applied while throttling.
	ThrottleDelay = 1 * time.Second
)

// State is the last rate limit information reported by the API.
type State struct {
	// Limit is the window quota from X-RateLimit-Limit, -1 when unknown.
	Limit int `json:"limit"`

	// Remaining is the quota left from X-RateLimit-Remaining, -1 when unknown.
	Remaining int `json:"remaining"`

	// BlockedUntil is set from Retry-After; requests wait until then.
	BlockedUntil time.Time `json:"blocked_until"`

	LastUpdate time.Time `json:"last_update"`
}

// unknownState is the state before any response has been seen.
func unknownState() State {
	return State{Limit: -1, Remaining: -1}
}

// IsBlocked reports whether the API asked us to back off until after now.
func (s State) IsBlocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// NeedsThrottling reports whether the remaining quota is low.
func (s State) NeedsThrottling() bool {
	return s.Remaining >= 0 && s.Remaining < ThrottleThreshold
}

// TimeUntilUnblocked returns how long until the block expires, or 0.
func (s State) TimeUntilUnblocked(now time.Time) time.Duration {
	if d := s.BlockedUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
