// Package retry re-runs WaniKani operations that failed with a transient
// error. The transport itself never retries; callers opt in by wrapping a
// whole operation, such as a full listing, in Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanikani_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wanikani_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanikani_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each attempt.
	BackoffMultiplier float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ConfigForClass returns the retry configuration suited to an error class.
func ConfigForClass(class client.ErrorClass) Config {
	switch class {
	case client.ErrorClassServer:
		return Config{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case client.ErrorClassRateLimit:
		// WaniKani windows are one minute long.
		return Config{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case client.ErrorClassNetwork:
		return Config{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultConfig()
	}
}

// policy builds the backoff schedule. Jitter is ±20%.
func (c Config) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialBackoff
	exp.MaxInterval = c.MaxBackoff
	exp.Multiplier = c.BackoffMultiplier
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)
}

// Do runs op until it succeeds, fails with an error that client.IsRetryable
// rejects, ctx is done, or cfg.MaxAttempts is reached. Non-retryable errors
// are returned unchanged after the first attempt.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	attempt := 0
	var lastErr error

	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(client.ClassOf(lastErr))).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err
		if !client.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, cfg.policy(ctx), func(err error, wait time.Duration) {
		class := string(client.ClassOf(err))
		retriesTotal.WithLabelValues(class).Inc()
		retryBackoffSeconds.WithLabelValues(class).Observe(wait.Seconds())

		log.Debug().
			Err(err).
			Str("error_class", class).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")
	})

	switch {
	case err == nil:
		return nil
	case lastErr == nil || !errors.Is(err, lastErr):
		// ctx ended while waiting between attempts.
		log.Warn().
			Int("attempt", attempt).
			Msg("Context cancelled during retry backoff")
		if lastErr != nil {
			return fmt.Errorf("%w (last error: %w)", err, lastErr)
		}
		return err
	case !client.IsRetryable(err):
		return err
	}

	class := string(client.ClassOf(err))
	retryExhaustedTotal.WithLabelValues(class).Inc()
	log.Warn().
		Str("error_class", class).
		Int("max_attempts", attempt).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
}
