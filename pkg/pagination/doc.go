// Package pagination follows WaniKani collection cursors one page at a time.
//
// Every collection response carries pages.next_url; the last page has none.
// A Pager requests the first page from the endpoint and its parameters, then
// each following page from the cursor URL verbatim, and stops at the last
// page or at the configured page limit, whichever comes first.
//
// Example usage:
//
//	pager := pagination.New(transport, http.MethodGet, "subjects", params,
//		pagination.WithMaxPages(3))
//	for page, err := range pager.All(ctx) {
//		if err != nil {
//			return err
//		}
//		process(page.Data)
//	}
//
// The pager:
//   - requests nothing until Next is called
//   - never requests past a page without a cursor
//   - stops after MaxPages pages when a limit is set
//   - reports a failure once and keeps returning it; earlier pages stay valid
//   - does not retry and cannot be restarted
package pagination
