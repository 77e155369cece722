package testutil

import (
	"fmt"
	"net/http"
)

// GridAttribute is an attribute of a GridReport. An attribute without forms
// has a single form named after it.
type GridAttribute struct {
	ID    string
	Name  string
	Forms []string
}

// GridMetric is a metric of a GridReport.
type GridMetric struct {
	ID   string
	Name string
}

// GridColumnAttribute is an attribute on the column axis of a GridReport
// with a fixed list of single-form elements.
type GridColumnAttribute struct {
	ID       string
	Name     string
	Elements []string
}

// GridReport generates deterministic v2 report payloads. Row i holds the
// element "<form>-<i>" for every row attribute form and the value i*10+p at
// column position p. Column positions enumerate the column attribute
// elements, first attribute outermost, with the metrics innermost.
type GridReport struct {
	ID               string
	Name             string
	Rows             int
	Attributes       []GridAttribute
	Metrics          []GridMetric
	// ColumnAttributes are placed on the column axis before the metrics.
	ColumnAttributes []GridColumnAttribute
	// MetricsOnRows moves the metrics to the row axis after the attributes;
	// row i then holds metric i modulo the number of metrics.
	MetricsOnRows    bool
	CrossTab         bool
	// Cube serves the definition without a grid, like /api/v2/cubes.
	Cube             bool
	InstanceID       string
}

// Value returns the element value of an attribute form in a row.
func Value(form string, row int) string {
	return fmt.Sprintf("%s-%d", form, row)
}

// MetricValue returns the value at column position k of a row. Without
// column attributes k is the metric index.
func MetricValue(row, k int) float64 {
	return float64(row*10 + k)
}

func (a GridColumnAttribute) header(elements bool) map[string]any {
	h := map[string]any{
		"id":    a.ID,
		"name":  a.Name,
		"type":  "attribute",
		"forms": []map[string]any{{"id": a.ID + "-F0", "name": "DESC"}},
	}
	if elements {
		els := make([]map[string]any, len(a.Elements))
		for i, v := range a.Elements {
			els[i] = map[string]any{"id": a.ID + ":" + v, "formValues": []string{v}}
		}
		h["elements"] = els
	}
	return h
}

// columnHeaders returns the column axis of the grid and the position of the
// metrics header.
func (g *GridReport) columnHeaders(elements bool) (columns []map[string]any, metricsAxis string, metricsIndex int) {
	columns = []map[string]any{}
	for _, a := range g.ColumnAttributes {
		columns = append(columns, a.header(elements))
	}
	if g.MetricsOnRows {
		return columns, "rows", len(g.Attributes)
	}
	return append(columns, g.metricsHeader(true)), "columns", len(g.ColumnAttributes)
}

// columnPositions returns, per column header, the element index at every
// column position.
func (g *GridReport) columnPositions() [][]int {
	sizes := make([]int, 0, len(g.ColumnAttributes)+1)
	for _, a := range g.ColumnAttributes {
		sizes = append(sizes, len(a.Elements))
	}
	if !g.MetricsOnRows {
		sizes = append(sizes, len(g.Metrics))
	}
	if len(sizes) == 0 {
		return [][]int{}
	}

	count := 1
	for _, n := range sizes {
		count *= n
	}
	positions := make([][]int, len(sizes))
	for u := range positions {
		positions[u] = make([]int, count)
		inner := 1
		for _, n := range sizes[u+1:] {
			inner *= n
		}
		for p := range count {
			positions[u][p] = (p / inner) % sizes[u]
		}
	}
	return positions
}

// ColumnCount returns the number of column positions of a row.
func (g *GridReport) ColumnCount() int {
	positions := g.columnPositions()
	if len(positions) == 0 {
		return 1
	}
	return len(positions[0])
}

func (a GridAttribute) forms() []string {
	if len(a.Forms) == 0 {
		return []string{a.Name}
	}
	return a.Forms
}

func (a GridAttribute) header() map[string]any {
	forms := make([]map[string]any, len(a.forms()))
	for i, f := range a.forms() {
		forms[i] = map[string]any{"id": fmt.Sprintf("%s-F%d", a.ID, i), "name": f}
	}
	return map[string]any{"id": a.ID, "name": a.Name, "type": "attribute", "forms": forms}
}

func (g *GridReport) metricsHeader(elements bool) map[string]any {
	metrics := make([]map[string]any, len(g.Metrics))
	for i, m := range g.Metrics {
		metrics[i] = map[string]any{"id": m.ID, "name": m.Name}
	}
	h := map[string]any{"id": "00000000000000000000000000000000", "name": "Metrics", "type": "templateMetrics"}
	if elements {
		h["elements"] = metrics
	}
	return h
}

// Definition returns the body of GET /api/v2/reports/{id} (or cubes).
func (g *GridReport) Definition() map[string]any {
	if g.Cube {
		attrs := make([]map[string]any, len(g.Attributes))
		for i, a := range g.Attributes {
			attrs[i] = a.header()
		}
		metrics := g.metricsHeader(true)["elements"]
		return map[string]any{
			"id":   g.ID,
			"name": g.Name,
			"definition": map[string]any{
				"availableObjects": map[string]any{"attributes": attrs, "metrics": metrics},
			},
		}
	}

	rows := make([]map[string]any, len(g.Attributes))
	for i, a := range g.Attributes {
		rows[i] = a.header()
	}
	columns, axis, index := g.columnHeaders(false)
	if g.MetricsOnRows {
		rows = append(rows, g.metricsHeader(true))
	}
	return map[string]any{
		"id":   g.ID,
		"name": g.Name,
		"definition": map[string]any{
			"grid": map[string]any{
				"crossTab":        g.CrossTab,
				"subtotals":       map[string]any{"visible": true},
				"metricsPosition": map[string]any{"axis": axis, "index": index},
				"rows":            rows,
				"columns":         columns,
			},
			"availableObjects": map[string]any{
				"customGroups":   []any{},
				"consolidations": []any{},
			},
		},
	}
}

// Instance returns the body of an instance chunk.
func (g *GridReport) Instance(offset, limit int) map[string]any {
	count := max(0, min(limit, g.Rows-offset))

	rows := make([]map[string]any, len(g.Attributes))
	for j, a := range g.Attributes {
		h := a.header()
		elements := make([]map[string]any, count)
		for i := range count {
			values := make([]string, len(a.forms()))
			for f, form := range a.forms() {
				values[f] = Value(form, offset+i)
			}
			elements[i] = map[string]any{"id": fmt.Sprintf("h%d;%s", offset+i, a.ID), "formValues": values}
		}
		h["elements"] = elements
		rows[j] = h
	}

	columns, _, _ := g.columnHeaders(true)
	if g.MetricsOnRows {
		rows = append(rows, g.metricsHeader(true))
	}

	headers := make([][]int, count)
	raw := make([][]float64, count)
	for i := range count {
		headers[i] = make([]int, len(rows))
		for j := range g.Attributes {
			headers[i][j] = i
		}
		if g.MetricsOnRows && len(g.Metrics) > 0 {
			headers[i][len(g.Attributes)] = (offset + i) % len(g.Metrics)
		}
		raw[i] = make([]float64, g.ColumnCount())
		for k := range raw[i] {
			raw[i][k] = MetricValue(offset+i, k)
		}
	}

	return map[string]any{
		"id":         g.ID,
		"name":       g.Name,
		"instanceId": g.InstanceID,
		"status":     1,
		"definition": map[string]any{
			"grid": map[string]any{
				"crossTab": g.CrossTab,
				"rows":     rows,
				"columns":  columns,
			},
		},
		"data": map[string]any{
			"paging":       map[string]int{"total": g.Rows, "current": count, "offset": offset, "limit": limit},
			"headers":      map[string]any{"rows": headers, "columns": g.columnPositions()},
			"metricValues": map[string]any{"raw": raw},
		},
	}
}

// DefinitionHandler serves Definition.
func (g *GridReport) DefinitionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, g.Definition())
	}
}

// InstanceHandler serves instance chunks for the offset and limit in the
// query. It answers both instance creation and chunk requests.
func (g *GridReport) InstanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := PageParams(r, g.Rows)
		WriteJSON(w, http.StatusOK, g.Instance(offset, limit))
	}
}

// Register serves the report under basePath, e.g. "/api/v2/reports/R1":
// the definition, instance creation and chunks of InstanceID.
func (g *GridReport) Register(mock *MockServer, basePath string) {
	mock.SetHandler("GET "+basePath, g.DefinitionHandler())
	mock.SetHandler("POST "+basePath+"/instances", g.InstanceHandler())
	mock.SetHandler("GET "+basePath+"/instances/"+g.InstanceID, g.InstanceHandler())
}
