package wanikani

import (
	"context"
	"errors"
	"iter"

	"github.com/Sternrassler/wanikani-client/pkg/pagination"
	"github.com/Sternrassler/wanikani-client/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsYieldedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wanikani_records_yielded_total",
	Help: "Total records handed to consumers by endpoint",
}, []string{"endpoint"})

// Records iterates the records of a paginated listing, flattening pages in
// server order. Duplicates across pages are passed through unchanged.
//
//	rows := c.Subjects(ctx, q)
//	for rows.Next() {
//		rec := rows.Record()
//		...
//	}
//	if err := rows.Err(); err != nil {
//		...
//	}
type Records struct {
	ctx      context.Context
	endpoint string
	pager    *pagination.Pager

	page []resource.Record
	idx  int
	cur  resource.Record
	err  error
	done bool
}

func newRecords(ctx context.Context, endpoint string, pager *pagination.Pager, err error) *Records {
	return &Records{ctx: ctx, endpoint: endpoint, pager: pager, err: err}
}

// Next advances to the next record, fetching the following page only when
// the current one is used up. It returns false at the end or on error.
func (r *Records) Next() bool {
	if r.err != nil || r.done {
		return false
	}

	for r.idx >= len(r.page) {
		page, err := r.pager.Next(r.ctx)
		if errors.Is(err, pagination.ErrDone) {
			r.done = true
			return false
		}
		if err != nil {
			r.err = err
			return false
		}
		r.page, r.idx = page.Data, 0
	}

	r.cur = r.page[r.idx]
	r.idx++
	recordsYieldedTotal.WithLabelValues(r.endpoint).Inc()
	return true
}

// Record returns the current record.
func (r *Records) Record() resource.Record {
	return r.cur
}

// ID returns the identifier of the current record.
func (r *Records) ID() int64 {
	return r.cur.ID
}

// Err returns the error that stopped iteration, if any.
func (r *Records) Err() error {
	return r.err
}

// Pages returns the number of pages fetched so far.
func (r *Records) Pages() int {
	if r.pager == nil {
		return 0
	}
	return r.pager.Pages()
}

// All returns an iterator of (id, record) pairs. Check Err after the loop.
func (r *Records) All() iter.Seq2[int64, resource.Record] {
	return func(yield func(int64, resource.Record) bool) {
		for r.Next() {
			rec := r.Record()
			if !yield(rec.ID, rec) {
				return
			}
		}
	}
}

// Collect drains the iterator. On failure it returns the records read
// before the error together with the error.
func (r *Records) Collect() ([]resource.Record, error) {
	var out []resource.Record
	for r.Next() {
		out = append(out, r.Record())
	}
	return out, r.Err()
}
