package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedReport is returned for reports whose templates hold custom
// groups or consolidations.
var ErrUnsupportedReport = errors.New("reports with custom groups or consolidations are not supported")

// Attribute is an attribute on the report template.
type Attribute struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Forms []Form `json:"forms,omitempty"`
}

// Form is an attribute form, e.g. ID or DESC.
type Form struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Columns returns the table columns the attribute produces.
func (a Attribute) Columns() []string {
	h := header{Name: a.Name}
	for _, f := range a.Forms {
		h.Forms = append(h.Forms, form{ID: f.ID, Name: f.Name})
	}
	return attributeColumns(h)
}

// Metric is a metric on the report template.
type Metric struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Definition is the template of a report or cube.
type Definition struct {
	ID         string
	Name       string
	CrossTab   bool
	Attributes []Attribute
	Metrics    []Metric
	Subtotals  *Subtotals
}

// Attribute returns the attribute with the given ID.
func (d *Definition) Attribute(id string) (Attribute, bool) {
	for _, a := range d.Attributes {
		if a.ID == id {
			return a, true
		}
	}
	return Attribute{}, false
}

// Metric returns the metric with the given ID.
func (d *Definition) Metric(id string) (Metric, bool) {
	for _, m := range d.Metrics {
		if m.ID == id {
			return m, true
		}
	}
	return Metric{}, false
}

type definitionPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Definition struct {
		Grid             *definitionGrid `json:"grid"`
		AvailableObjects struct {
			Attributes     []Attribute       `json:"attributes"`
			Metrics        []Metric          `json:"metrics"`
			CustomGroups   []json.RawMessage `json:"customGroups"`
			Consolidations []json.RawMessage `json:"consolidations"`
		} `json:"availableObjects"`
	} `json:"definition"`
}

type definitionGrid struct {
	CrossTab        bool             `json:"crossTab"`
	MetricsPosition *metricsPosition `json:"metricsPosition"`
	Rows            []templateUnit   `json:"rows"`
	Columns         []templateUnit   `json:"columns"`
	Subtotals       *Subtotals       `json:"subtotals"`
}

type templateUnit struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Forms    []Form   `json:"forms"`
	Elements []Metric `json:"elements"`
}

// parseDefinition reads a v2 definition. Reports carry a grid; cubes only list
// their available objects.
func parseDefinition(body []byte) (*Definition, error) {
	var p definitionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	avail := p.Definition.AvailableObjects
	if len(avail.CustomGroups) > 0 || len(avail.Consolidations) > 0 {
		return nil, ErrUnsupportedReport
	}

	def := &Definition{ID: p.ID, Name: p.Name}
	g := p.Definition.Grid
	if g == nil {
		def.Attributes = avail.Attributes
		def.Metrics = avail.Metrics
		return def, nil
	}

	def.CrossTab = g.CrossTab
	def.Subtotals = g.Subtotals
	for _, axis := range [][]templateUnit{g.Rows, g.Columns} {
		for _, u := range axis {
			if u.Type == headerAttribute {
				def.Attributes = append(def.Attributes, Attribute{ID: u.ID, Name: u.Name, Forms: u.Forms})
			}
		}
	}

	if pos := g.MetricsPosition; pos != nil {
		axis := g.Columns
		if pos.Axis == "rows" {
			axis = g.Rows
		}
		if pos.Index < 0 || pos.Index >= len(axis) {
			return nil, fmt.Errorf("decode definition: metrics position %d out of range on %s", pos.Index, pos.Axis)
		}
		def.Metrics = axis[pos.Index].Elements
	}
	return def, nil
}

// Definition returns the template of the report. The result is cached on the
// report and, when configured, in the client's definition cache.
func (r *Report) Definition(ctx context.Context) (*Definition, error) {
	if r.def != nil {
		return r.def, nil
	}

	resp, err := r.client.GetCached(ctx, r.kind.definitionPath(r.id), nil)
	if err != nil {
		return nil, fmt.Errorf("get %s %s definition: %w", r.kind, r.id, err)
	}
	def, err := parseDefinition(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.kind, r.id, err)
	}
	r.def = def
	return def, nil
}
