package pagination

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// fakeSource serves a deterministic result of total rows. Row i has id i.
type fakeSource struct {
	total    int
	rowBytes int

	mu     sync.Mutex
	calls  []FetchTask
	failAt map[int]error
	totals map[int]int
	delay  func(offset int) time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSource(total int) *fakeSource {
	return &fakeSource{
		total:    total,
		rowBytes: 100,
		failAt:   map[int]error{},
		totals:   map[int]int{},
	}
}

func (s *fakeSource) FetchPage(ctx context.Context, offset, limit int) (*Page, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		cur := s.maxInFlight.Load()
		if n <= cur || s.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, FetchTask{Offset: offset, Limit: limit})
	failErr := s.failAt[offset]
	total, overridden := s.totals[offset]
	delay := s.delay
	s.mu.Unlock()

	if delay != nil {
		select {
		case <-time.After(delay(offset)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	if !overridden {
		total = s.total
	}

	end := min(offset+limit, s.total)
	rows := make([]Row, 0, max(0, end-offset))
	for i := offset; i < end; i++ {
		rows = append(rows, Row{"id": i, "name": fmt.Sprintf("row-%d", i)})
	}

	return &Page{
		Offset:      offset,
		Limit:       limit,
		Columns:     []string{"id", "name"},
		Rows:        rows,
		RawByteSize: max(1, len(rows)*s.rowBytes),
		TotalCount:  total,
	}, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSource) offsets() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Offset
	}
	return out
}

// first fetches the initial page and resets the call log.
func (s *fakeSource) first(limit int) *Page {
	page, err := s.FetchPage(context.Background(), 0, limit)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
	return page
}

// reverseDelay makes early offsets finish last.
func reverseDelay(total int) func(int) time.Duration {
	return func(offset int) time.Duration {
		return time.Duration(total-offset) * time.Microsecond * 5
	}
}
