package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/Sternrassler/wanikani-client/internal/testutil"
	"github.com/Sternrassler/wanikani-client/pkg/client"
	"github.com/Sternrassler/wanikani-client/pkg/resource"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type call struct {
	target string
	params url.Values
}

// fakeFetcher serves pages from memory. Page i links to "cursor/<i+1>".
type fakeFetcher struct {
	pages  []string
	failAt int
	err    error
	calls  []call
}

func (f *fakeFetcher) Send(_ context.Context, _ string, target string, params url.Values) ([]byte, error) {
	f.calls = append(f.calls, call{target: target, params: params})
	n := len(f.calls)
	if f.failAt == n {
		return nil, f.err
	}
	return []byte(f.pages[n-1]), nil
}

func pageBody(next string, ids ...int) string {
	nextJSON := "null"
	if next != "" {
		nextJSON = fmt.Sprintf("%q", next)
	}
	data := ""
	for i, id := range ids {
		if i > 0 {
			data += ","
		}
		data += fmt.Sprintf(`{"id": %d, "object": "vocabulary", "data": {"level": 1}}`, id)
	}
	return fmt.Sprintf(`{"object": "collection", "pages": {"next_url": %s}, "data": [%s]}`, nextJSON, data)
}

func threePages() *fakeFetcher {
	return &fakeFetcher{pages: []string{
		pageBody("https://api.example/v2/subjects?page_after_id=2", 1, 2),
		pageBody("https://api.example/v2/subjects?page_after_id=4", 3, 4),
		pageBody("", 5),
	}}
}

func newPager(f Fetcher, opts ...Option) *Pager {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(f, http.MethodGet, "subjects", url.Values{"levels": {"1,2"}}, opts...)
}

func ids(pages []*resource.Page) []int64 {
	var out []int64
	for _, p := range pages {
		for _, r := range p.Data {
			out = append(out, r.ID)
		}
	}
	return out
}

func TestPager_FollowsCursorsToTerminalPage(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := threePages()
	p := newPager(f)
	ctx := context.Background()

	var pages []*resource.Page
	for {
		page, err := p.Next(ctx)
		if errors.Is(err, ErrDone) {
			break
		}
		require.NoError(t, err)
		pages = append(pages, page)
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(pages))
	require.Len(t, f.calls, 3, "exactly three requests, none after the terminal page")
	assert.Equal(t, StateExhausted, p.State())
	assert.Equal(t, 3, p.Pages())

	_, err := p.Next(ctx)
	assert.ErrorIs(t, err, ErrDone)
	assert.Len(t, f.calls, 3, "an exhausted pager never fetches again")
}

func TestPager_FirstRequestUsesParamsThenCursorVerbatim(t *testing.T) {
	f := threePages()
	p := newPager(f)

	for _, err := range p.All(context.Background()) {
		require.NoError(t, err)
	}

	require.Len(t, f.calls, 3)
	assert.Equal(t, "subjects", f.calls[0].target)
	assert.Equal(t, url.Values{"levels": {"1,2"}}, f.calls[0].params)
	assert.Equal(t, "https://api.example/v2/subjects?page_after_id=2", f.calls[1].target)
	assert.Nil(t, f.calls[1].params)
	assert.Equal(t, "https://api.example/v2/subjects?page_after_id=4", f.calls[2].target)
	assert.Nil(t, f.calls[2].params)
}

func TestPager_MaxPages(t *testing.T) {
	tests := []struct {
		name     string
		maxPages int
		requests int
		ids      []int64
	}{
		{"one page", 1, 1, []int64{1, 2}},
		{"two pages", 2, 2, []int64{1, 2, 3, 4}},
		{"limit above page count", 10, 3, []int64{1, 2, 3, 4, 5}},
		{"zero is unbounded", 0, 3, []int64{1, 2, 3, 4, 5}},
		{"negative is unbounded", -1, 3, []int64{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := threePages()
			p := newPager(f, WithMaxPages(tt.maxPages))

			var pages []*resource.Page
			for page, err := range p.All(context.Background()) {
				require.NoError(t, err)
				pages = append(pages, page)
			}

			assert.Equal(t, tt.ids, ids(pages))
			assert.Len(t, f.calls, tt.requests)
			assert.Equal(t, StateExhausted, p.State())
		})
	}
}

func TestPager_ErrorOnSecondPage(t *testing.T) {
	f := threePages()
	f.failAt = 2
	f.err = &client.HTTPError{StatusCode: http.StatusInternalServerError, ErrorClass: client.ErrorClassServer}
	p := newPager(f)
	ctx := context.Background()

	page, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids([]*resource.Page{page}))

	_, err = p.Next(ctx)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "page 2")
	assert.Equal(t, StateError, p.State())
	assert.Equal(t, 1, p.Pages())

	_, again := p.Next(ctx)
	assert.Equal(t, err, again, "the error is sticky")
	assert.Len(t, f.calls, 2, "no retry after a failure")
	assert.Equal(t, err, p.Err())
}

func TestPager_AllYieldsErrorOnce(t *testing.T) {
	f := threePages()
	f.failAt = 2
	f.err = errors.New("boom")
	p := newPager(f)

	var got []int64
	var errs []error
	for page, err := range p.All(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, ids([]*resource.Page{page})...)
	}

	assert.Equal(t, []int64{1, 2}, got)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "boom")
}

func TestPager_DecodeError(t *testing.T) {
	f := &fakeFetcher{pages: []string{`{"data": [`}}
	p := newPager(f)

	_, err := p.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, p.State())
}

func TestPager_LazyAndEarlyBreak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := threePages()
	p := newPager(f)
	assert.Empty(t, f.calls, "constructing a pager fetches nothing")

	for range p.All(context.Background()) {
		break
	}
	assert.Len(t, f.calls, 1, "breaking after the first page stops fetching")
	assert.Equal(t, StateMorePages, p.State())
}

func TestPager_KeepsDuplicatesAcrossPages(t *testing.T) {
	f := &fakeFetcher{pages: []string{
		pageBody("https://api.example/v2/subjects?page_after_id=2", 1, 2),
		pageBody("", 2, 3),
	}}
	p := newPager(f)

	var pages []*resource.Page
	for page, err := range p.All(context.Background()) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	assert.Equal(t, []int64{1, 2, 2, 3}, ids(pages))
	assert.Len(t, f.calls, 2)
}

func TestPager_EmptyCollection(t *testing.T) {
	f := &fakeFetcher{pages: []string{pageBody("")}}
	p := newPager(f)

	page, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, page.Data)

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, ErrDone)
	assert.Len(t, f.calls, 1)
}

func TestPager_SequenceIDs(t *testing.T) {
	a := newPager(threePages())
	b := newPager(threePages())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "more_pages", StateMorePages.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func TestPager_AgainstMockServer(t *testing.T) {
	mock := testutil.NewMockWaniKani()
	defer mock.Close()

	mock.SetCollection("subjects", testutil.Collection{Pages: [][]testutil.Item{
		{testutil.Subject(1, "一", 1), testutil.Subject(2, "二", 1)},
		{testutil.Subject(3, "三", 1), testutil.Subject(4, "四", 2)},
		{testutil.Subject(5, "五", 2)},
	}})

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Token = client.StaticToken("test-token")
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	p := New(c, http.MethodGet, "subjects", url.Values{"levels": {"1,2"}}, WithLogger(zerolog.Nop()))

	var pages []*resource.Page
	for page, err := range p.All(context.Background()) {
		require.NoError(t, err)
		pages = append(pages, page)
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(pages))
	requests := mock.Requests()
	require.Len(t, requests, 3)
	for _, r := range requests {
		assert.Equal(t, "1,2", r.Query().Get("levels"), "the cursor keeps the original filters")
	}
	assert.Empty(t, requests[0].Query().Get("page_after_id"))
	assert.Equal(t, "2", requests[1].Query().Get("page_after_id"))
	assert.Equal(t, "4", requests[2].Query().Get("page_after_id"))
}
