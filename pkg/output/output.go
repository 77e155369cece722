// Package output renders materialized tables as text, CSV or JSON.
package output

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

// Formatter writes a table to w in one format.
type Formatter interface {
	Name() string
	Format(tbl *pagination.Table, w io.Writer) error
}

var formatters = []Formatter{NewTable(), NewCSV(), NewJSON()}

// Names returns the names of the available formats.
func Names() []string {
	names := make([]string, len(formatters))
	for i, f := range formatters {
		names[i] = f.Name()
	}
	return names
}

// ByName returns the formatter with the given name, ignoring case.
func ByName(name string) (Formatter, error) {
	i := slices.IndexFunc(formatters, func(f Formatter) bool {
		return strings.EqualFold(f.Name(), name)
	})
	if i < 0 {
		return nil, fmt.Errorf("unknown output format %q, use one of %s", name, strings.Join(Names(), ", "))
	}
	return formatters[i], nil
}

// cell renders a value for the text formats. Missing values are empty.
func cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
