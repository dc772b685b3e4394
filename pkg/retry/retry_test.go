package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func serverError() error {
	return &client.HTTPError{StatusCode: http.StatusInternalServerError, ErrorClass: client.ErrorClassServer}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

func TestConfigForClass(t *testing.T) {
	tests := []struct {
		name             string
		errorClass       client.ErrorClass
		expectedInitial  time.Duration
		expectedMax      time.Duration
		expectedAttempts int
	}{
		{"server error config", client.ErrorClassServer, 1 * time.Second, 10 * time.Second, 3},
		{"rate limit config", client.ErrorClassRateLimit, 5 * time.Second, 60 * time.Second, 3},
		{"network error config", client.ErrorClassNetwork, 2 * time.Second, 30 * time.Second, 3},
		{"unknown error class uses default", "", 1 * time.Second, 30 * time.Second, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ConfigForClass(tt.errorClass)
			assert.Equal(t, tt.expectedInitial, cfg.InitialBackoff)
			assert.Equal(t, tt.expectedMax, cfg.MaxBackoff)
			assert.Equal(t, tt.expectedAttempts, cfg.MaxAttempts)
		})
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return serverError()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		return serverError()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr, "the last error stays inspectable")
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client error", &client.HTTPError{StatusCode: http.StatusNotFound, ErrorClass: client.ErrorClassClient}},
		{"configuration error", &client.ConfigurationError{Setting: "token", Err: client.ErrMissingToken}},
		{"foreign error", errors.New("decode failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastConfig(5), func(context.Context) error {
				calls++
				return tt.err
			})

			assert.Equal(t, tt.err, err, "returned unchanged")
			assert.Equal(t, 1, calls)
		})
	}
}

func TestDo_NetworkAndRateLimitRetried(t *testing.T) {
	errs := []error{
		&client.TransportError{Method: http.MethodGet, URL: "http://x", Err: errors.New("connection reset")},
		&client.HTTPError{StatusCode: http.StatusTooManyRequests, ErrorClass: client.ErrorClassRateLimit},
	}

	calls := 0
	err := Do(context.Background(), fastConfig(3), func(context.Context) error {
		calls++
		if calls <= len(errs) {
			return errs[calls-1]
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:       5,
		InitialBackoff:    time.Minute,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	start := time.Now()
	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		cancel()
		return serverError()
	})

	assert.ErrorIs(t, err, context.Canceled)
	var httpErr *client.HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDo_SingleAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(0), func(context.Context) error {
		calls++
		return serverError()
	})

	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}
