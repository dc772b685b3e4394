package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wanikani_rate_limit_remaining",
		Help: "Requests remaining in the current WaniKani rate limit window",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wanikani_rate_limit_waits_total",
		Help: "Total number of requests delayed until the rate limit window reset",
	})
)

// Tracker records the rate limit window and delays requests while it is exhausted.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new rate limit tracker. A nil store means in-memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the recorded state, or a fresh full window when none
// exists or the recorded one is older than MaxStateAge.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	now := t.now()
	if state != nil && state.IsStale(now, MaxStateAge) {
		t.logger.Debug().
			Time("last_update", state.LastUpdate).
			Msg("Discarding stale rate limit state")
		state = nil
	}
	if state == nil {
		return &State{
			Limit:      DefaultLimit,
			Remaining:  DefaultLimit,
			ResetAt:    now,
			LastUpdate: now,
		}, nil
	}
	return state, nil
}

// UpdateFromHeaders parses the RateLimit headers and stores the new window.
// Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return fmt.Errorf("%s header missing", HeaderReset)
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := DefaultLimit
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	state := &State{
		Limit:      limit,
		Remaining:  remain,
		ResetAt:    time.Unix(resetUnix, 0),
		LastUpdate: t.now(),
	}
	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("store rate limit state: %w", err)
	}

	rateLimitRemaining.Set(float64(remain))

	t.logger.Debug().
		Int("limit", limit).
		Int("remaining", remain).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit state updated")

	return nil
}

// Wait blocks until a request may be sent. It returns immediately unless the
// window is exhausted, and returns ctx.Err() if ctx ends first.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	if !state.Exhausted(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	rateLimitWaitsTotal.Inc()
	t.logger.Warn().
		Int("limit", state.Limit).
		Dur("wait_duration", wait).
		Msg("Rate limit exhausted - waiting for reset")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
