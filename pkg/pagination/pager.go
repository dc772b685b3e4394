package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"time"

	"github.com/Sternrassler/wanikani-client/pkg/resource"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wanikani_pages_fetched_total",
	Help: "Total collection pages fetched by endpoint",
}, []string{"endpoint"})

// ErrDone is returned by Next once the last page has been produced.
var ErrDone = errors.New("no more pages")

// Fetcher sends a single request and returns the response body.
// target is an endpoint relative to the API root or an absolute cursor URL.
type Fetcher interface {
	Send(ctx context.Context, method, target string, params url.Values) ([]byte, error)
}

// State is the position of a Pager in its lifecycle.
type State int

const (
	// StateMorePages means another page may be requested.
	StateMorePages State = iota
	// StateExhausted means the last page was produced or the page limit reached.
	StateExhausted
	// StateError means a request failed; the error is sticky.
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateMorePages:
		return "more_pages"
	case StateExhausted:
		return "exhausted"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds pager configuration.
type Config struct {
	// MaxPages bounds the number of requests; 0 or less means unbounded.
	MaxPages int
	// Logger receives per-page debug events.
	Logger zerolog.Logger
}

// DefaultConfig returns an unbounded configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages: 0,
		Logger:   log.With().Str("component", "pagination").Logger(),
	}
}

// Option customizes a Pager.
type Option func(*Config)

// WithMaxPages bounds the number of pages requested. n <= 0 means unbounded.
func WithMaxPages(n int) Option {
	return func(c *Config) { c.MaxPages = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Pager walks a cursor-paginated collection. It holds only the current
// cursor and page count and is not safe for concurrent use.
type Pager struct {
	fetcher  Fetcher
	method   string
	endpoint string
	params   url.Values
	config   Config

	id     string
	state  State
	next   string
	pages  int
	err    error
	start  time.Time
	logger zerolog.Logger
}

// New creates a pager for endpoint. No request is made until Next.
func New(fetcher Fetcher, method, endpoint string, params url.Values, opts ...Option) *Pager {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	return &Pager{
		fetcher:  fetcher,
		method:   method,
		endpoint: endpoint,
		params:   params,
		config:   cfg,
		id:       id,
		state:    StateMorePages,
		logger: cfg.Logger.With().
			Str("sequence_id", id).
			Str("endpoint", endpoint).
			Logger(),
	}
}

// ID identifies this pagination sequence in logs.
func (p *Pager) ID() string { return p.id }

// State returns the current state.
func (p *Pager) State() State { return p.state }

// Pages returns how many pages have been fetched so far.
func (p *Pager) Pages() int { return p.pages }

// Err returns the error that moved the pager to StateError, if any.
func (p *Pager) Err() error { return p.err }

// Next fetches and returns the next page. It returns ErrDone once the
// collection is exhausted and the same error on every call after a failure.
func (p *Pager) Next(ctx context.Context) (*resource.Page, error) {
	switch p.state {
	case StateExhausted:
		return nil, ErrDone
	case StateError:
		return nil, p.err
	}

	if p.pages == 0 {
		p.start = time.Now()
	}

	target, params := p.endpoint, p.params
	if p.pages > 0 {
		target, params = p.next, nil
	}
	pageNum := p.pages + 1

	body, err := p.fetcher.Send(ctx, p.method, target, params)
	if err != nil {
		return nil, p.fail(pageNum, err)
	}

	page, err := resource.DecodePage(body)
	if err != nil {
		return nil, p.fail(pageNum, err)
	}

	p.pages = pageNum
	p.next = page.Next()
	pagesFetchedTotal.WithLabelValues(p.endpoint).Inc()

	p.logger.Debug().
		Int("page", pageNum).
		Int("records", len(page.Data)).
		Int("total_count", page.TotalCount).
		Bool("has_next", p.next != "").
		Msg("Fetched page")

	if p.next == "" || (p.config.MaxPages > 0 && p.pages >= p.config.MaxPages) {
		p.state = StateExhausted
		p.logger.Debug().
			Int("pages", p.pages).
			Bool("limit_reached", p.next != "").
			Dur("duration", time.Since(p.start)).
			Msg("Pagination complete")
	}

	return page, nil
}

// All returns an iterator over the remaining pages. A failure is yielded
// once as the final element. Breaking out of the loop stops fetching.
func (p *Pager) All(ctx context.Context) iter.Seq2[*resource.Page, error] {
	return func(yield func(*resource.Page, error) bool) {
		for {
			page, err := p.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (p *Pager) fail(pageNum int, err error) error {
	p.state = StateError
	p.err = fmt.Errorf("fetch %s page %d: %w", p.endpoint, pageNum, err)

	p.logger.Warn().
		Err(err).
		Int("page", pageNum).
		Int("fetched_pages", p.pages).
		Msg("Page fetch failed")

	return p.err
}
