package output

import (
	"encoding/json"
	"io"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

var _ Formatter = (*JSON)(nil)

// JSON writes the rows as an indented array of objects.
type JSON struct{}

func NewJSON() *JSON {
	return &JSON{}
}

func (jf *JSON) Name() string {
	return "json"
}

func (jf *JSON) Format(tbl *pagination.Table, w io.Writer) error {
	rows := tbl.Rows
	if rows == nil {
		rows = []pagination.Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
