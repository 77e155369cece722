package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlan is returned when a chunk plan cannot be derived from the
	// first page.
	ErrInvalidPlan = errors.New("invalid chunk plan")

	// ErrInconsistentTotal matches InconsistentTotalError via errors.Is.
	ErrInconsistentTotal = errors.New("inconsistent total count")

	// ErrUnexpectedRowCount is wrapped in a FetchError when a page holds a
	// different number of rows than its offset and limit imply.
	ErrUnexpectedRowCount = errors.New("unexpected row count")
)

// FetchError reports a failed chunk fetch.
type FetchError struct {
	Offset int
	Limit  int
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch chunk (offset %d, limit %d): %v", e.Offset, e.Limit, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// InconsistentTotalError is returned when a page reports a total count that
// differs from the first page of the same run.
type InconsistentTotalError struct {
	Offset   int
	Expected int
	Got      int
}

// Error implements the error interface.
func (e *InconsistentTotalError) Error() string {
	return fmt.Sprintf("chunk at offset %d reports total %d, first page reported %d",
		e.Offset, e.Got, e.Expected)
}

// Is reports whether target is ErrInconsistentTotal.
func (e *InconsistentTotalError) Is(target error) bool {
	return target == ErrInconsistentTotal
}
