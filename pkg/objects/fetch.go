package objects

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/rs/zerolog/log"
)

// DefaultChunkSize is the page size of chunked listings.
const DefaultChunkSize = 1000

// FetchRequest describes a listing endpoint paged with offset and limit and
// counted by the x-mstr-total-count header.
type FetchRequest struct {
	Path  string
	Query url.Values
	// UnpackKey names the array inside an object body, e.g. "subscriptions".
	// Empty means the body is the array itself.
	UnpackKey string
	// Limit caps the number of objects returned (0 = all).
	Limit int
	// ChunkSize is the page size (0 = DefaultChunkSize).
	ChunkSize int
	// Filter is applied to the listing after all pages are fetched.
	Filter   *filter.Filter
	Parallel bool
	Progress pagination.ProgressFunc
}

// Fetch retrieves every object of a listing in server order.
func Fetch(ctx context.Context, c *client.Client, req FetchRequest) ([]pagination.Row, error) {
	chunk := req.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	firstLimit := chunk
	if req.Limit > 0 && req.Limit < chunk {
		firstLimit = req.Limit
	}

	src := &listing{client: c, req: req}
	first, err := src.FetchPage(ctx, 0, firstLimit)
	if err != nil {
		return nil, err
	}

	table, err := pagination.Materialize(ctx, first, src, pagination.Options{
		Limit:    chunk,
		Parallel: req.Parallel,
		Progress: req.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", req.Path, err)
	}

	rows := req.Filter.Apply(table.Rows)
	log.Debug().
		Str("endpoint", req.Path).
		Int("total", table.Len()).
		Int("matched", len(rows)).
		Msg("Fetched listing")
	return rows, nil
}

// listing fetches pages of a FetchRequest.
type listing struct {
	client *client.Client
	req    FetchRequest
}

// FetchPage implements pagination.PageFetcher.
func (l *listing) FetchPage(ctx context.Context, offset, limit int) (*pagination.Page, error) {
	query := url.Values{}
	for k, v := range l.req.Query {
		query[k] = slices.Clone(v)
	}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	resp, err := l.client.Get(ctx, l.req.Path, query)
	if err != nil {
		return nil, err
	}

	items, err := unpack(resp.Body, l.req.UnpackKey)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.req.Path, err)
	}

	total, err := resp.TotalCount()
	if err != nil {
		// without the header only a short page tells where the listing ends
		if len(items) >= limit {
			return nil, fmt.Errorf("list %s: %w", l.req.Path, err)
		}
		total = offset + len(items)
	}
	if l.req.Limit > 0 && total > l.req.Limit {
		total = l.req.Limit
	}
	if keep := total - offset; keep < len(items) {
		items = items[:max(0, keep)]
	}

	return &pagination.Page{
		Offset:      offset,
		Limit:       limit,
		Columns:     columns(items),
		Rows:        items,
		RawByteSize: len(resp.Body),
		TotalCount:  total,
	}, nil
}

// unpack decodes a JSON array body, or the array stored under key.
func unpack(body []byte, key string) ([]pagination.Row, error) {
	var items []pagination.Row
	if key == "" {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	raw, ok := wrapper[key]
	if !ok {
		return []pagination.Row{}, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode listing %q: %w", key, err)
	}
	return items, nil
}

// columns returns the sorted keys of the first item.
func columns(items []pagination.Row) []string {
	if len(items) == 0 {
		return nil
	}
	cols := make([]string, 0, len(items[0]))
	for k := range items[0] {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}

// Decode converts listed rows into typed values through their JSON form.
func Decode[T any](rows []pagination.Row) ([]T, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	out := make([]T, 0, len(rows))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return out, nil
}
