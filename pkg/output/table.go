package output

import (
	"io"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var _ Formatter = (*Table)(nil)

// Table renders a borderless text table.
type Table struct{}

func NewTable() *Table {
	return &Table{}
}

func (tf *Table) Name() string {
	return "table"
}

func (tf *Table) Format(tbl *pagination.Table, w io.Writer) error {
	header := make(table.Row, len(tbl.Columns))
	for i, c := range tbl.Columns {
		header[i] = c
	}

	rows := make([]table.Row, 0, len(tbl.Rows))
	for _, r := range tbl.Rows {
		row := make(table.Row, len(tbl.Columns))
		for i, c := range tbl.Columns {
			row[i] = cell(r[c])
		}
		rows = append(rows, row)
	}

	t := table.NewWriter()
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false

	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}
