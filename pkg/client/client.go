// Package client provides the authenticated WaniKani HTTP transport.
// It sends single requests and maps failures onto ConfigurationError,
// TransportError and HTTPError. It never retries.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for WaniKani requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanikani_requests_total",
		Help: "Total WaniKani requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wanikani_request_duration_seconds",
		Help:    "WaniKani request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wanikani_errors_total",
		Help: "Total WaniKani errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassConfiguration represents a missing credential or setting.
	ErrorClassConfiguration ErrorClass = "configuration"
)

// Defaults for the public WaniKani API v2.
const (
	DefaultBaseURL   = "https://api.wanikani.com/v2/"
	DefaultRevision  = "20170710"
	DefaultUserAgent = "wanikani-client/0.1.0"
	DefaultTimeout   = 30 * time.Second
)

// Client is the WaniKani transport. It is configured once and safe for
// concurrent use; the underlying http.Client reuses connections.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	token       TokenSource
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root every relative endpoint is resolved against.
	BaseURL string

	// Token supplies the bearer credential. It is consulted on every request.
	Token TokenSource

	// UserAgent header sent with each request.
	UserAgent string

	// Revision is the Wanikani-Revision header selecting the API revision.
	Revision string

	// Timeout bounds a single request including reading the body.
	Timeout time.Duration

	// RateLimiter paces requests when set. Optional.
	RateLimiter *ratelimit.Tracker

	// HTTPClient overrides the default http.Client. Optional.
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration reading the token from WANIKANI_TOKEN.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     EnvToken(DefaultTokenEnv),
		UserAgent: DefaultUserAgent,
		Revision:  DefaultRevision,
		Timeout:   DefaultTimeout,
	}
}

// New creates a new WaniKani transport. The credential itself is not read
// here; a missing token surfaces on the first request.
func New(cfg Config) (*Client, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("token source is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     base,
		token:       cfg.Token,
		rateLimiter: cfg.RateLimiter,
		config:      cfg,
		logger:      log.With().Str("component", "wanikani-client").Logger(),
	}, nil
}

// Send performs one request and returns the response body.
// target is either an endpoint relative to BaseURL ("subjects") or an
// absolute URL such as a pagination cursor, which is used verbatim.
func (c *Client) Send(ctx context.Context, method, target string, params url.Values) ([]byte, error) {
	token, err := c.token.Token()
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassConfiguration)).Inc()
		c.logger.Error().Err(err).Msg("No API token available")
		return nil, &ConfigurationError{Setting: "token", Err: err}
	}

	reqURL, err := c.resolve(target, params)
	if err != nil {
		if strings.Contains(target, "://") {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
		}
		errorsTotal.WithLabelValues(string(ErrorClassConfiguration)).Inc()
		return nil, &ConfigurationError{Setting: "endpoint", Err: err}
	}
	endpoint := reqURL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, c.networkError(method, reqURL, err)
			}
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassConfiguration)).Inc()
		return nil, &ConfigurationError{Setting: "method", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Revision != "" {
		req.Header.Set("Wanikani-Revision", c.config.Revision)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing WaniKani request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, c.networkError(method, reqURL, err)
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, c.networkError(method, reqURL, fmt.Errorf("read response body: %w", err))
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := c.classifyError(resp, nil)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("WaniKani request error")

		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Method:     method,
			URL:        reqURL.String(),
			Body:       body,
		}
	}

	return body, nil
}

// Get sends a GET request. See Send.
func (c *Client) Get(ctx context.Context, target string, params url.Values) ([]byte, error) {
	return c.Send(ctx, http.MethodGet, target, params)
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// resolve builds the request URL. Absolute targets are kept as-is and only
// gain params when some are given.
func (c *Client) resolve(target string, params url.Values) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", target, err)
	}

	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery})
	}

	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (c *Client) networkError(method string, u *url.URL, err error) error {
	errorsTotal.WithLabelValues(string(c.classifyError(nil, err))).Inc()
	return &TransportError{Method: method, URL: u.String(), Err: err}
}

// classifyError categorizes a failure for observability and for IsRetryable.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		c.logger.Debug().Str("class", string(ErrorClassNetwork)).Msg("Error classified")
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logger.Debug().Str("class", string(ErrorClassRateLimit)).Msg("Error classified")
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.logger.Debug().Str("class", string(ErrorClassClient)).Msg("Error classified")
		return ErrorClassClient
	case resp.StatusCode >= 500:
		c.logger.Debug().Str("class", string(ErrorClassServer)).Msg("Error classified")
		return ErrorClassServer
	default:
		return ""
	}
}
