// Package testutil provides testing utilities for the WaniKani client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIPrefix is the path prefix the mock serves, mirroring /v2/.
const APIPrefix = "/v2/"

// Item is one record served in a collection page.
type Item struct {
	ID     int64
	Object string
	Data   map[string]any
}

// Collection is a paginated fixture. Page numbers are 1-based.
type Collection struct {
	Pages [][]Item

	// FailPage, when > 0, makes the request for that page fail with
	// FailStatus and FailBody instead of serving it.
	FailPage   int
	FailStatus int
	FailBody   string
	// FailTimes limits the failures of FailPage; 0 means always fail.
	FailTimes int
}

// MockWaniKani is a configurable mock of the WaniKani v2 API.
type MockWaniKani struct {
	server *httptest.Server

	mu          sync.RWMutex
	collections map[string]Collection
	failures    map[string]int
	handlers    map[string]http.HandlerFunc
	requests    []*url.URL
	lastHeader  http.Header
	rateLimit   *rateLimitHeaders
}

type rateLimitHeaders struct {
	limit, remaining int
	reset            time.Time
}

// NewMockWaniKani starts a mock server.
func NewMockWaniKani() *MockWaniKani {
	m := &MockWaniKani{
		collections: make(map[string]Collection),
		failures:    make(map[string]int),
		handlers:    make(map[string]http.HandlerFunc),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the API root, e.g. http://127.0.0.1:1234/v2/.
func (m *MockWaniKani) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockWaniKani) Close() {
	m.server.Close()
}

// Reset clears the request log.
func (m *MockWaniKani) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.lastHeader = nil
}

// SetHandler overrides the handler for an endpoint such as "user".
func (m *MockWaniKani) SetHandler(endpoint string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[endpoint] = h
}

// SetCollection serves c under endpoint such as "subjects".
func (m *MockWaniKani) SetCollection(endpoint string, c Collection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[endpoint] = c
	delete(m.failures, endpoint)
}

// SetUser serves data as the /user resource.
func (m *MockWaniKani) SetUser(data map[string]any) {
	m.SetHandler("user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"object":          "user",
			"url":             m.URL() + "user",
			"data_updated_at": time.Now().UTC().Format(time.RFC3339Nano),
			"data":            data,
		})
	})
}

// SetRateLimit adds RateLimit-* headers to every response.
func (m *MockWaniKani) SetRateLimit(limit, remaining int, reset time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = &rateLimitHeaders{limit: limit, remaining: remaining, reset: reset}
}

// RequestCount returns the number of requests served.
func (m *MockWaniKani) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns the URLs of all requests in arrival order.
func (m *MockWaniKani) Requests() []*url.URL {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*url.URL, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequestHeader returns the headers of the latest request.
func (m *MockWaniKani) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

func (m *MockWaniKani) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	u := *r.URL
	m.requests = append(m.requests, &u)
	m.lastHeader = r.Header.Clone()
	rl := m.rateLimit
	m.mu.Unlock()

	if rl != nil {
		w.Header().Set("RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(rl.remaining))
		w.Header().Set("RateLimit-Reset", strconv.FormatInt(rl.reset.Unix(), 10))
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized. Nice try.", "code": 401})
		return
	}

	endpoint := strings.TrimPrefix(r.URL.Path, APIPrefix)

	m.mu.RLock()
	handler, hasHandler := m.handlers[endpoint]
	collection, hasCollection := m.collections[endpoint]
	m.mu.RUnlock()

	switch {
	case hasHandler:
		handler(w, r)
	case hasCollection:
		m.serveCollection(w, r, endpoint, collection)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found", "code": 404})
	}
}

func (m *MockWaniKani) serveCollection(w http.ResponseWriter, r *http.Request, endpoint string, c Collection) {
	pageNum := 1
	if after := r.URL.Query().Get("page_after_id"); after != "" {
		id, err := strconv.ParseInt(after, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid page_after_id", "code": 422})
			return
		}
		pageNum = pageAfter(c.Pages, id)
		if pageNum == 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "unknown cursor", "code": 422})
			return
		}
	}

	if c.FailPage == pageNum && m.shouldFail(endpoint, c.FailTimes) {
		w.WriteHeader(c.FailStatus)
		w.Write([]byte(c.FailBody))
		return
	}

	var items []Item
	if pageNum <= len(c.Pages) {
		items = c.Pages[pageNum-1]
	}
	filters := newItemFilters(r.URL.Query())

	data := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if !filters.match(it) {
			continue
		}
		data = append(data, map[string]any{
			"id":              it.ID,
			"object":          it.Object,
			"url":             fmt.Sprintf("%s%s/%d", m.URL(), endpoint, it.ID),
			"data_updated_at": "2024-01-01T00:00:00.000000Z",
			"data":            it.Data,
		})
	}

	// The cursor follows the unfiltered page so filtered-out items never
	// break the chain.
	var next any
	if pageNum < len(c.Pages) && len(items) > 0 {
		q := r.URL.Query()
		q.Set("page_after_id", strconv.FormatInt(items[len(items)-1].ID, 10))
		next = m.server.URL + r.URL.Path + "?" + q.Encode()
	}

	total := 0
	for _, p := range c.Pages {
		total += len(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "collection",
		"url":    m.server.URL + r.URL.RequestURI(),
		"pages": map[string]any{
			"per_page":     len(items),
			"next_url":     next,
			"previous_url": nil,
		},
		"total_count":     total,
		"data_updated_at": "2024-01-01T00:00:00.000000Z",
		"data":            data,
	})
}

// itemFilters applies the levels and srs_stages query filters the way the
// server does. Items without the filtered field are kept.
type itemFilters struct {
	levels, stages map[int]bool
}

func newItemFilters(q url.Values) itemFilters {
	return itemFilters{
		levels: intSet(q.Get("levels")),
		stages: intSet(q.Get("srs_stages")),
	}
}

func (f itemFilters) match(it Item) bool {
	return matchField(f.levels, it.Data["level"]) && matchField(f.stages, it.Data["srs_stage"])
}

func matchField(set map[int]bool, v any) bool {
	if set == nil {
		return true
	}
	n, ok := v.(int)
	if !ok {
		return true
	}
	return set[n]
}

func intSet(csv string) map[int]bool {
	if csv == "" {
		return nil
	}
	set := make(map[int]bool)
	for _, part := range strings.Split(csv, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			set[n] = true
		}
	}
	return set
}

func (m *MockWaniKani) shouldFail(endpoint string, limit int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && m.failures[endpoint] >= limit {
		return false
	}
	m.failures[endpoint]++
	return true
}

// pageAfter returns the 1-based page following the page whose last id is id,
// or 0 when no page ends with id.
func pageAfter(pages [][]Item, id int64) int {
	for i, p := range pages {
		if len(p) > 0 && p[len(p)-1].ID == id {
			return i + 2
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Subject builds a vocabulary subject item.
func Subject(id int64, characters string, level int) Item {
	return Item{
		ID:     id,
		Object: "vocabulary",
		Data: map[string]any{
			"characters": characters,
			"level":      level,
			"slug":       characters,
		},
	}
}

// Assignment builds an assignment item for subjectID at srsStage.
func Assignment(id, subjectID int64, srsStage int) Item {
	return Item{
		ID:     id,
		Object: "assignment",
		Data: map[string]any{
			"subject_id":   subjectID,
			"subject_type": "vocabulary",
			"srs_stage":    srsStage,
		},
	}
}
