package output

import (
	"encoding/csv"
	"io"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

var _ Formatter = (*CSV)(nil)

// CSV writes a header line followed by one record per row.
type CSV struct{}

func NewCSV() *CSV {
	return &CSV{}
}

func (cf *CSV) Name() string {
	return "csv"
}

func (cf *CSV) Format(tbl *pagination.Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.Columns); err != nil {
		return err
	}
	record := make([]string, len(tbl.Columns))
	for _, r := range tbl.Rows {
		for i, c := range tbl.Columns {
			record[i] = cell(r[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
