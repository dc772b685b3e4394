// Package ratelimit tracks the WaniKani request budget reported in the
// RateLimit-Limit, RateLimit-Remaining and RateLimit-Reset response headers
// and paces outgoing requests while the current window is exhausted.
package ratelimit

import (
	"time"
)

// Response headers carrying the rate limit window.
const (
	HeaderLimit     = "RateLimit-Limit"
	HeaderRemaining = "RateLimit-Remaining"
	HeaderReset     = "RateLimit-Reset"
)

// DefaultLimit is the documented WaniKani budget of requests per minute.
const DefaultLimit = 60

// MaxStateAge is how long a recorded window is trusted. WaniKani windows
// last one minute, so anything older has certainly reset.
const MaxStateAge = 2 * time.Minute

// State is the last observed rate limit window.
type State struct {
	// Limit is the request budget of the window.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window starts over (RateLimit-Reset is epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// Exhausted reports whether no requests remain and the window has not reset yet.
func (s *State) Exhausted(now time.Time) bool {
	return s.Remaining <= 0 && now.Before(s.ResetAt)
}

// TimeUntilReset returns the duration until the window resets, 0 if it already did.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state was recorded more than maxAge before now.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}
