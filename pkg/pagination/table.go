package pagination

import (
	"fmt"
	"slices"
)

// newTable seeds a table sized to the plan's total with the rows of the first
// page.
func newTable(first *Page, plan ChunkPlan) (*Table, error) {
	if want := min(plan.InitialLimit, plan.TotalCount); len(first.Rows) != want {
		return nil, &FetchError{
			Offset: 0,
			Limit:  plan.InitialLimit,
			Err:    fmt.Errorf("%w: got %d, want %d", ErrUnexpectedRowCount, len(first.Rows), want),
		}
	}

	rows := make([]Row, plan.TotalCount)
	copy(rows, first.Rows)
	return &Table{Columns: slices.Clone(first.Columns), Rows: rows}, nil
}

// merge places rows at their source offset. Callers validate the row count
// against the plan before merging.
func (t *Table) merge(offset int, rows []Row) {
	copy(t.Rows[offset:], rows)
}

// validatePage checks a fetched chunk against the plan it was dispatched for.
func validatePage(plan ChunkPlan, task FetchTask, page *Page) error {
	if page == nil {
		page = &Page{TotalCount: plan.TotalCount}
	}
	if page.TotalCount != plan.TotalCount {
		return &InconsistentTotalError{
			Offset:   task.Offset,
			Expected: plan.TotalCount,
			Got:      page.TotalCount,
		}
	}
	if want := plan.expectedRows(task); len(page.Rows) != want {
		return &FetchError{
			Offset: task.Offset,
			Limit:  task.Limit,
			Err:    fmt.Errorf("%w: got %d, want %d", ErrUnexpectedRowCount, len(page.Rows), want),
		}
	}
	return nil
}
