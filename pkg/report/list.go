package report

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/objects"
)

// searchPath is the quick search endpoint used for listings.
const searchPath = "/api/searches/results"

// patternContains matches names containing the search term.
const patternContains = 4

// ListOptions narrows a report listing.
type ListOptions struct {
	// Name matches report names containing the value.
	Name string
	// Cubes lists cubes instead of grid reports.
	Cubes    bool
	Limit    int
	Filter   *filter.Filter
	Parallel bool
}

// List returns the reports (or cubes) of the client's project.
func List(ctx context.Context, c *client.Client, opts ListOptions) ([]objects.Info, error) {
	query := url.Values{
		"type":         {strconv.Itoa(int(objects.TypeReport))},
		"getAncestors": {"false"},
	}
	if opts.Name != "" {
		query.Set("name", opts.Name)
		query.Set("pattern", strconv.Itoa(patternContains))
	}

	rows, err := objects.Fetch(ctx, c, objects.FetchRequest{
		Path:      searchPath,
		Query:     query,
		UnpackKey: "result",
		Limit:     opts.Limit,
		Filter:    opts.Filter,
		Parallel:  opts.Parallel,
	})
	if err != nil {
		return nil, err
	}
	all, err := objects.Decode[objects.Info](rows)
	if err != nil {
		return nil, err
	}

	out := make([]objects.Info, 0, len(all))
	for _, info := range all {
		if isCube(info.Subtype) == opts.Cubes {
			out = append(out, info)
		}
	}
	return out, nil
}

func isCube(subtype int) bool {
	return subtype == objects.SubtypeOLAPCube || subtype == objects.SubtypeSuperCube
}
