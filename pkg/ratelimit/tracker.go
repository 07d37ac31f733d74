package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artic_rate_limit_remaining",
		Help: "Requests remaining in the current API rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artic_rate_limit_blocks_total",
		Help: "Total number of waits caused by a Retry-After header",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artic_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the remaining quota was low",
	})
)

// Tracker gates outgoing requests.
type Tracker struct {
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu    sync.Mutex
	state State

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a tracker allowing requestsPerSecond with the given burst.
// A non-positive rate disables client-side pacing.
func NewTracker(requestsPerSecond float64, burst int, logger zerolog.Logger) *Tracker {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}

	return &Tracker{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		state:   unknownState(),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// State returns a snapshot of the last reported state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Wait blocks until a request may be sent or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state := t.State()

	if wait := state.TimeUntilUnblocked(t.now()); wait > 0 {
		t.logger.Warn().
			Dur("wait_duration", wait).
			Msg("API asked to retry later - waiting")
		rateLimitBlocksTotal.Inc()
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("API quota low - throttling request")
		rateLimitThrottlesTotal.Inc()
		if err := t.sleep(ctx, ThrottleDelay); err != nil {
			return err
		}
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// UpdateFromHeaders records X-RateLimit-Limit, X-RateLimit-Remaining and
// Retry-After. Missing headers leave the previous values in place.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if v := headers.Get("X-RateLimit-Limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
		t.state.Limit = limit
	}

	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		remaining, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
		}
		t.state.Remaining = remaining
		rateLimitRemaining.Set(float64(remaining))
	}

	if v := headers.Get("Retry-After"); v != "" {
		wait, err := ParseRetryAfter(v, now)
		if err != nil {
			return err
		}
		t.state.BlockedUntil = now.Add(wait)
		t.logger.Warn().
			Dur("retry_after", wait).
			Msg("API rate limit hit")
	}

	t.state.LastUpdate = now
	return nil
}

// ParseRetryAfter accepts delay-seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("negative Retry-After: %d", seconds)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, fmt.Errorf("parse Retry-After header: %w", err)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
