package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

// Grid header types.
const (
	headerAttribute = "attribute"
	headerMetrics   = "templateMetrics"
)

// valueColumn names the single value column of a grid whose column axis is
// empty.
const valueColumn = "Value"

// ErrUnsupportedLayout is returned for grids holding objects that cannot be
// flattened into a table, such as custom groups.
var ErrUnsupportedLayout = errors.New("unsupported grid layout")

// instance is the v2 report or cube instance payload.
type instance struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InstanceID string `json:"instanceId"`
	Status     int    `json:"status"`
	Definition struct {
		Grid grid `json:"grid"`
	} `json:"definition"`
	Data gridData `json:"data"`
}

type grid struct {
	CrossTab        bool             `json:"crossTab"`
	MetricsPosition *metricsPosition `json:"metricsPosition,omitempty"`
	Rows            []header         `json:"rows"`
	Columns         []header         `json:"columns"`
	Subtotals       *Subtotals       `json:"subtotals,omitempty"`
}

type metricsPosition struct {
	Axis  string `json:"axis"`
	Index int    `json:"index"`
}

type header struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Forms    []form    `json:"forms,omitempty"`
	Elements []element `json:"elements"`
}

type form struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"dataType,omitempty"`
}

type element struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	FormValues []string `json:"formValues,omitempty"`
}

type gridData struct {
	Paging  paging `json:"paging"`
	// Headers.Rows holds one element index per row header for every row.
	// Headers.Columns holds, per column header, the element index at every
	// column position.
	Headers struct {
		Rows    [][]int `json:"rows"`
		Columns [][]int `json:"columns"`
	} `json:"headers"`
	MetricValues struct {
		Raw [][]any `json:"raw"`
	} `json:"metricValues"`
}

type paging struct {
	Total   int `json:"total"`
	Current int `json:"current"`
	Offset  int `json:"offset"`
	Limit   int `json:"limit"`
}

// Subtotals is the subtotal setting of a grid.
type Subtotals struct {
	Visible bool `json:"visible"`
}

// decodeInstance decodes an instance payload.
func decodeInstance(body []byte) (*instance, error) {
	var inst instance
	if err := json.Unmarshal(body, &inst); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return &inst, nil
}

// attributeColumns returns the column names of an attribute: its name for a
// single form, "name@form" for each of several forms.
func attributeColumns(h header) []string {
	if len(h.Forms) <= 1 {
		return []string{h.Name}
	}
	cols := make([]string, len(h.Forms))
	for i, f := range h.Forms {
		cols[i] = h.Name + "@" + f.Name
	}
	return cols
}

// gridColumn maps a table column back to the template.
type gridColumn struct {
	Name        string
	// AttributeID is set on the attribute and attribute form columns of the
	// row axis.
	AttributeID string
	// MetricNames is set on the column naming the metric of each row when
	// metrics sit on the row axis.
	MetricNames bool
	// MetricID is set on value columns of a single metric.
	MetricID    string
	// Elements holds, by attribute ID, the form values of the column-axis
	// elements a value column belongs to.
	Elements    map[string][]string
}

// layout describes the columns of a flattened grid in table order.
type layout []gridColumn

func (l layout) names() []string {
	names := make([]string, len(l))
	for i, c := range l {
		names[i] = c.Name
	}
	return names
}

func (l layout) hasAttribute(id string) bool {
	for _, c := range l {
		if c.AttributeID == id {
			return true
		}
	}
	return false
}

func metricsColumn(h header) string {
	if h.Name == "" {
		return "Metrics"
	}
	return h.Name
}

// page flattens one chunk of the grid into rows: row headers become
// attribute columns (or a metric name column), every column position becomes
// a value column named after its column-axis elements. rawSize is the size of
// the response body the chunk was decoded from.
func (inst *instance) page(rawSize int) (*pagination.Page, layout, error) {
	g := inst.Definition.Grid
	for _, axis := range []struct {
		name    string
		headers []header
	}{{"rows", g.Rows}, {"columns", g.Columns}} {
		for _, h := range axis.headers {
			if h.Type != headerAttribute && h.Type != headerMetrics {
				return nil, nil, fmt.Errorf("%w: %s %q on %s", ErrUnsupportedLayout, h.Type, h.Name, axis.name)
			}
		}
	}

	data := inst.Data
	values, err := valueColumns(g, data.Headers.Columns)
	if err != nil {
		return nil, nil, err
	}

	var lay layout
	for _, h := range g.Rows {
		if h.Type == headerMetrics {
			lay = append(lay, gridColumn{Name: metricsColumn(h), MetricNames: true})
			continue
		}
		for _, col := range attributeColumns(h) {
			lay = append(lay, gridColumn{Name: col, AttributeID: h.ID})
		}
	}
	lay = append(lay, values...)

	n := len(data.Headers.Rows)
	if len(g.Rows) == 0 {
		n = len(data.MetricValues.Raw)
	}

	rows := make([]pagination.Row, n)
	for i := range rows {
		row := make(pagination.Row, len(lay))

		if len(g.Rows) > 0 {
			idx := data.Headers.Rows[i]
			if len(idx) != len(g.Rows) {
				return nil, nil, fmt.Errorf("row %d: %d header indexes for %d row headers", data.Paging.Offset+i, len(idx), len(g.Rows))
			}
			for j, h := range g.Rows {
				if idx[j] < 0 || idx[j] >= len(h.Elements) {
					return nil, nil, fmt.Errorf("row %d: element index %d out of range for %q", data.Paging.Offset+i, idx[j], h.Name)
				}
				el := h.Elements[idx[j]]
				if h.Type == headerMetrics {
					row[metricsColumn(h)] = el.Name
					continue
				}
				for f, col := range attributeColumns(h) {
					row[col] = formValue(el, f)
				}
			}
		}

		if len(values) > 0 {
			if i >= len(data.MetricValues.Raw) {
				return nil, nil, fmt.Errorf("row %d: missing metric values", data.Paging.Offset+i)
			}
			raw := data.MetricValues.Raw[i]
			for k, col := range values {
				if k < len(raw) {
					row[col.Name] = raw[k]
				} else {
					row[col.Name] = nil
				}
			}
		}
		rows[i] = row
	}

	return &pagination.Page{
		Offset:      data.Paging.Offset,
		Limit:       data.Paging.Limit,
		Columns:     lay.names(),
		Rows:        rows,
		RawByteSize: rawSize,
		TotalCount:  data.Paging.Total,
	}, lay, nil
}

// valueColumns describes one value column per column position. A grid
// without metrics has no values; a grid with an empty column axis has a
// single value column.
func valueColumns(g grid, positions [][]int) (layout, error) {
	hasMetrics := false
	for _, h := range g.Rows {
		hasMetrics = hasMetrics || h.Type == headerMetrics
	}
	for _, h := range g.Columns {
		hasMetrics = hasMetrics || h.Type == headerMetrics
	}
	if !hasMetrics {
		return nil, nil
	}
	if len(g.Columns) == 0 {
		return layout{{Name: valueColumn}}, nil
	}

	// column headers of a metrics-only axis may be omitted
	if len(positions) == 0 && len(g.Columns) == 1 && g.Columns[0].Type == headerMetrics {
		all := make([]int, len(g.Columns[0].Elements))
		for i := range all {
			all[i] = i
		}
		positions = [][]int{all}
	}
	if len(positions) != len(g.Columns) {
		return nil, fmt.Errorf("%d column header lists for %d column headers", len(positions), len(g.Columns))
	}

	cols := make(layout, len(positions[0]))
	for p := range cols {
		var parts []string
		for u, h := range g.Columns {
			if len(positions[u]) != len(cols) {
				return nil, fmt.Errorf("column header %q: %d positions, want %d", h.Name, len(positions[u]), len(cols))
			}
			idx := positions[u][p]
			if idx < 0 || idx >= len(h.Elements) {
				return nil, fmt.Errorf("column %d: element index %d out of range for %q", p, idx, h.Name)
			}
			el := h.Elements[idx]
			if h.Type == headerMetrics {
				cols[p].MetricID = el.ID
				parts = append(parts, el.Name)
				continue
			}
			forms := elementForms(h, el)
			if cols[p].Elements == nil {
				cols[p].Elements = make(map[string][]string)
			}
			cols[p].Elements[h.ID] = forms
			parts = append(parts, strings.Join(forms, " "))
		}
		cols[p].Name = strings.Join(parts, " ")
	}
	return cols, nil
}

// elementForms returns the non-empty form values of an element as text.
func elementForms(h header, el element) []string {
	var forms []string
	for f := range max(1, len(h.Forms)) {
		if v := formValue(el, f); v != nil && v != "" {
			forms = append(forms, fmt.Sprint(v))
		}
	}
	return forms
}

func formValue(el element, i int) any {
	if i < len(el.FormValues) {
		return el.FormValues[i]
	}
	if i == 0 {
		return el.Name
	}
	return nil
}
