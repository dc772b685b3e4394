// Package resource holds the WaniKani response shapes shared by the
// transport, the paginator and the domain accessors.
package resource

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Record is a single WaniKani resource (user, subject, assignment).
// The payload under "data" is kept opaque; use Get and friends to read it.
type Record struct {
	ID            int64           `json:"id"`
	Object        string          `json:"object"`
	URL           string          `json:"url"`
	DataUpdatedAt *time.Time      `json:"data_updated_at"`
	Data          json.RawMessage `json:"data"`
}

// Get returns the field at path (gjson syntax) inside the record data.
func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Data, path)
}

// Int returns the integer at path, or 0 when the field is absent.
func (r Record) Int(path string) int64 {
	return r.Get(path).Int()
}

// String returns the string at path, or "" when the field is absent or null.
func (r Record) String(path string) string {
	return r.Get(path).String()
}

// Has reports whether the field at path exists and is not null.
func (r Record) Has(path string) bool {
	res := r.Get(path)
	return res.Exists() && res.Type != gjson.Null
}

// Pages is the pagination block of a collection response.
type Pages struct {
	PerPage     int     `json:"per_page"`
	NextURL     *string `json:"next_url"`
	PreviousURL *string `json:"previous_url"`
}

// Page is one collection response body.
type Page struct {
	Object        string     `json:"object"`
	URL           string     `json:"url"`
	Pages         Pages      `json:"pages"`
	TotalCount    int        `json:"total_count"`
	DataUpdatedAt *time.Time `json:"data_updated_at"`
	Data          []Record   `json:"data"`
}

// Next returns the cursor for the following page, or "" on the last page.
func (p *Page) Next() string {
	if p.Pages.NextURL == nil {
		return ""
	}
	return *p.Pages.NextURL
}

// Terminal reports whether no page follows this one.
func (p *Page) Terminal() bool {
	return p.Next() == ""
}

// DecodePage parses a collection response body.
func DecodePage(body []byte) (*Page, error) {
	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}

// DecodeRecord parses a single-resource response body such as /user.
func DecodeRecord(body []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if len(rec.Data) == 0 {
		return Record{}, fmt.Errorf("decode record: missing data field")
	}
	return rec, nil
}
