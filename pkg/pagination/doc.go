// Package pagination materializes paginated Intelligence Server results into a
// single ordered in-memory table.
//
// The server exposes report, cube and object listings as offset/limit pages,
// each carrying the total row count. A materialization fetches the first page,
// derives a chunk plan from its payload density, then fetches the remaining
// chunks either one by one or through a bounded worker pool.
//
// Example usage:
//
//	m := pagination.New(pagination.DefaultConfig())
//	first, err := source.FetchPage(ctx, 0, 1000)
//	if err != nil {
//		return err
//	}
//	table, err := m.Materialize(ctx, first, source, pagination.Options{Parallel: true})
//
// The materializer:
//   - Returns immediately when the first page already holds every row
//   - Sizes follow-up chunks to keep each payload near SizeTargetBytes
//   - Runs chunks sequentially, or in parallel when more than one remains
//   - Inserts every chunk at its source offset, so row order never depends on
//     completion order
//   - Fails the whole run on the first chunk error; no partial table is returned
package pagination
