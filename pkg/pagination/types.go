package pagination

import (
	"context"
	"fmt"
)

// Row maps a column name to a scalar cell value.
type Row map[string]any

// Table is a materialized result set. Rows[i] holds the row found at source
// offset i.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Values returns the values of a single column in row order.
func (t *Table) Values(column string) []any {
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[column]
	}
	return values
}

// Page is one fetched chunk of a paginated result.
type Page struct {
	// Offset is the source offset of the first row in the page.
	Offset int
	// Limit is the row limit the page was requested with.
	Limit int
	// Columns in display order. Only the first page's columns are kept.
	Columns []string
	Rows    []Row
	// RawByteSize is the size of the response body the page was parsed from.
	RawByteSize int
	// TotalCount is the number of rows in the whole result.
	TotalCount int
}

// FetchTask is a pending chunk fetch.
type FetchTask struct {
	Offset int
	Limit  int
}

// String implements fmt.Stringer.
func (t FetchTask) String() string {
	return fmt.Sprintf("offset=%d limit=%d", t.Offset, t.Limit)
}

// PageFetcher is implemented by anything that can fetch a single page of a
// paginated result.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, limit int) (*Page, error)
}

// PageFetcherFunc adapts an ordinary function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, offset, limit int) (*Page, error)

// FetchPage calls f(ctx, offset, limit).
func (f PageFetcherFunc) FetchPage(ctx context.Context, offset, limit int) (*Page, error) {
	return f(ctx, offset, limit)
}

// Progress describes how far a materialization has come. Chunk and row counts
// include the initial page and never decrease during a run.
type Progress struct {
	Chunks      int
	TotalChunks int
	Rows        int
	TotalRows   int
}

// ProgressFunc receives progress updates. It must not block for long; it is
// called from the goroutine that merges pages.
type ProgressFunc func(Progress)
