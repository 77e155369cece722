package pagination

import "fmt"

// ChunkPlan describes how the rows after the first page are fetched. It is
// immutable once computed.
type ChunkPlan struct {
	InitialLimit   int
	ChunkLimit     int
	TotalCount     int
	IterationCount int
}

// ComputePlan derives the chunk plan from the first page of a result.
//
// A positive requestedLimit is used as the chunk size verbatim. Otherwise the
// chunk size is scaled from the first page's payload density so that each
// follow-up response is close to sizeTargetBytes, but never below minChunk.
// Only the first page is measured; later pages with wider rows will overshoot
// the target.
func ComputePlan(first *Page, requestedLimit, minChunk, sizeTargetBytes int) (ChunkPlan, error) {
	if first == nil {
		return ChunkPlan{}, fmt.Errorf("%w: missing first page", ErrInvalidPlan)
	}
	if first.RawByteSize <= 0 {
		return ChunkPlan{}, fmt.Errorf("%w: raw byte size %d", ErrInvalidPlan, first.RawByteSize)
	}
	if first.TotalCount < 0 {
		return ChunkPlan{}, fmt.Errorf("%w: total count %d", ErrInvalidPlan, first.TotalCount)
	}

	initial := first.Limit
	if initial <= 0 {
		initial = len(first.Rows)
	}
	if initial <= 0 && first.TotalCount > 0 {
		return ChunkPlan{}, fmt.Errorf("%w: first page is empty but total is %d", ErrInvalidPlan, first.TotalCount)
	}

	chunk := requestedLimit
	if chunk <= 0 {
		if minChunk <= 0 {
			minChunk = 1
		}
		density := int(int64(initial) * int64(sizeTargetBytes) / int64(first.RawByteSize))
		chunk = max(minChunk, density)
	}

	iterations := 0
	if remaining := first.TotalCount - initial; remaining > 0 {
		iterations = (remaining + chunk - 1) / chunk
	}

	return ChunkPlan{
		InitialLimit:   initial,
		ChunkLimit:     chunk,
		TotalCount:     first.TotalCount,
		IterationCount: iterations,
	}, nil
}

// Tasks returns the ordered chunk fetches that complete the result after the
// first page.
func (p ChunkPlan) Tasks() []FetchTask {
	tasks := make([]FetchTask, 0, p.IterationCount)
	if p.ChunkLimit <= 0 {
		return tasks
	}
	for offset := p.InitialLimit; offset < p.TotalCount; offset += p.ChunkLimit {
		tasks = append(tasks, FetchTask{Offset: offset, Limit: p.ChunkLimit})
	}
	return tasks
}

// expectedRows is the number of rows a chunk at offset must hold.
func (p ChunkPlan) expectedRows(task FetchTask) int {
	return max(0, min(task.Limit, p.TotalCount-task.Offset))
}
