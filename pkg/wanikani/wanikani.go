// Package wanikani exposes the three WaniKani reads the rest of the
// application needs: the current user, subjects and assignments.
//
// Subjects and Assignments return a *Records iterator. Nothing is fetched
// until the iterator is advanced, and each page is requested only after the
// previous one has been consumed.
package wanikani

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Sternrassler/wanikani-client/pkg/pagination"
	"github.com/Sternrassler/wanikani-client/pkg/query"
	"github.com/Sternrassler/wanikani-client/pkg/resource"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Endpoints relative to the API root.
const (
	EndpointUser        = "user"
	EndpointSubjects    = "subjects"
	EndpointAssignments = "assignments"
)

// Sender is the transport used by the accessors. *client.Client implements it.
type Sender interface {
	Send(ctx context.Context, method, target string, params url.Values) ([]byte, error)
}

// Client reads WaniKani resources through a shared transport.
type Client struct {
	transport Sender
	logger    zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger handed to accessors and pagers.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates accessors over transport.
func New(transport Sender, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    log.With().Str("component", "wanikani").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubjectQuery filters a subjects listing.
type SubjectQuery struct {
	// SubjectType is sent as subject_type; empty means no type filter.
	SubjectType string
	// Level is the level to filter on; 0 means all levels.
	Level int
	// Cumulative includes every level from 1 through Level.
	Cumulative bool
	// MaxPages bounds the number of pages requested; 0 means unbounded.
	MaxPages int
}

// DefaultSubjectQuery returns the filters the vocabulary builder uses.
func DefaultSubjectQuery() SubjectQuery {
	return SubjectQuery{
		SubjectType: query.DefaultSubjectType,
		Cumulative:  true,
	}
}

// AssignmentQuery filters an assignments listing.
type AssignmentQuery struct {
	SubjectType string
	Level       int
	Cumulative  bool
	// MinSRSStage selects assignments at this stage or above.
	MinSRSStage int
	MaxPages    int
}

// DefaultAssignmentQuery returns Guru-and-above assignments of every level.
func DefaultAssignmentQuery() AssignmentQuery {
	return AssignmentQuery{
		SubjectType: query.DefaultSubjectType,
		Cumulative:  true,
		MinSRSStage: query.DefaultMinSRSStage,
	}
}

// GetUser fetches the current user with a single request.
func (c *Client) GetUser(ctx context.Context) (resource.Record, error) {
	body, err := c.transport.Send(ctx, http.MethodGet, EndpointUser, nil)
	if err != nil {
		return resource.Record{}, err
	}
	return resource.DecodeRecord(body)
}

// Subjects lists subjects matching q in server order.
func (c *Client) Subjects(ctx context.Context, q SubjectQuery) *Records {
	params := query.Params{
		SubjectType: q.SubjectType,
		Level:       q.Level,
		Cumulative:  q.Cumulative,
	}
	return c.list(ctx, EndpointSubjects, params, q.MaxPages)
}

// Assignments lists assignments matching q in server order.
func (c *Client) Assignments(ctx context.Context, q AssignmentQuery) *Records {
	params := query.Params{
		SubjectType: q.SubjectType,
		Level:       q.Level,
		Cumulative:  q.Cumulative,
		MinSRSStage: query.Stage(q.MinSRSStage),
	}
	return c.list(ctx, EndpointAssignments, params, q.MaxPages)
}

// list prepares a lazy listing. ctx governs every page request made while
// iterating. Invalid filters surface through Records.Err.
func (c *Client) list(ctx context.Context, endpoint string, params query.Params, maxPages int) *Records {
	values, err := params.Values()
	if err != nil {
		return newRecords(ctx, endpoint, nil, err)
	}

	pager := pagination.New(c.transport, http.MethodGet, endpoint, values,
		pagination.WithMaxPages(maxPages),
		pagination.WithLogger(c.logger),
	)
	return newRecords(ctx, endpoint, pager, nil)
}
