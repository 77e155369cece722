package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

// Operator decides whether selected attribute elements are kept or excluded.
type Operator string

// Element filter operators.
const (
	In    Operator = "In"
	NotIn Operator = "NotIn"
)

// Selection restricts the objects a report returns. A nil slice leaves that
// part of the template unfiltered; an empty, non-nil slice selects nothing.
//
// Attribute elements are written as "<attribute id>:<element>". Crosstab
// reports are filtered locally and only support the In operator.
type Selection struct {
	Attributes   []string
	Metrics      []string
	AttrElements []string
	Operator     Operator
}

// IsZero reports whether the selection filters nothing.
func (s Selection) IsZero() bool {
	return s.Attributes == nil && s.Metrics == nil && s.AttrElements == nil
}

// validate checks the selection against the report template.
func (s Selection) validate(def *Definition) error {
	switch s.Operator {
	case "", In, NotIn:
	default:
		return fmt.Errorf("invalid operator %q, allowed values are In and NotIn", s.Operator)
	}
	for _, id := range s.Attributes {
		if _, ok := def.Attribute(id); !ok {
			return fmt.Errorf("attribute %s is not on the template of %q", id, def.Name)
		}
	}
	for _, id := range s.Metrics {
		if _, ok := def.Metric(id); !ok {
			return fmt.Errorf("metric %s is not on the template of %q", id, def.Name)
		}
	}
	for _, el := range s.AttrElements {
		attrID, value, ok := strings.Cut(el, ":")
		if !ok || value == "" {
			return fmt.Errorf("attribute element %q is not of the form <attribute id>:<element>", el)
		}
		if _, ok := def.Attribute(attrID); !ok {
			return fmt.Errorf("attribute element %q: attribute %s is not on the template of %q", el, attrID, def.Name)
		}
	}
	return nil
}

// elementsByAttribute groups element IDs by attribute in first-seen order.
func (s Selection) elementsByAttribute() ([]string, map[string][]string) {
	var order []string
	groups := make(map[string][]string)
	for _, el := range s.AttrElements {
		attrID, value, _ := strings.Cut(el, ":")
		if _, seen := groups[attrID]; !seen {
			order = append(order, attrID)
		}
		groups[attrID] = append(groups[attrID], value)
	}
	return order, groups
}

type objectID struct {
	ID string `json:"id"`
}

func objectIDs(ids []string) []objectID {
	out := make([]objectID, len(ids))
	for i, id := range ids {
		out[i] = objectID{ID: id}
	}
	return out
}

// requestBody builds the instance body: requested objects and a view filter
// over attribute elements.
func (s Selection) requestBody() map[string]any {
	body := map[string]any{}

	if s.Attributes != nil || s.Metrics != nil {
		requested := map[string]any{}
		if s.Attributes != nil {
			requested["attributes"] = objectIDs(s.Attributes)
		}
		if s.Metrics != nil {
			requested["metrics"] = objectIDs(s.Metrics)
		}
		body["requestedObjects"] = requested
	}

	if len(s.AttrElements) > 0 {
		op := s.Operator
		if op == "" {
			op = In
		}
		order, groups := s.elementsByAttribute()
		operands := make([]map[string]any, 0, len(order))
		for _, attrID := range order {
			elements := make([]objectID, len(groups[attrID]))
			for i, value := range groups[attrID] {
				elements[i] = objectID{ID: attrID + ":" + value}
			}
			operands = append(operands, map[string]any{
				"operator": op,
				"operands": []map[string]any{
					{"type": "attribute", "id": attrID},
					{"type": "elements", "elements": elements},
				},
			})
		}
		if len(operands) == 1 {
			body["viewFilter"] = operands[0]
		} else {
			body["viewFilter"] = map[string]any{"operator": "And", "operands": operands}
		}
	}
	return body
}

// filterTable applies the selection to a downloaded crosstab table.
//
// Metrics outside the selection lose their value columns, or their rows when
// metrics sit on the row axis. Selected elements of row-axis attributes keep
// the rows holding any of them; selected elements of column-axis attributes
// keep the value columns belonging to them. Row-axis attribute columns
// outside the selection are dropped with all their forms; column-axis
// attributes stay part of the value column names.
func (s Selection) filterTable(def *Definition, lay layout, t *pagination.Table) *pagination.Table {
	drop := make(map[string]bool)
	rows := t.Rows

	if s.Metrics != nil {
		selected := make(map[string]bool)
		for _, m := range def.Metrics {
			if slices.Contains(s.Metrics, m.ID) {
				selected[m.Name] = true
			}
		}
		for _, c := range lay {
			switch {
			case c.MetricID != "" && !slices.Contains(s.Metrics, c.MetricID):
				drop[c.Name] = true
			case c.MetricNames:
				rows = keepRows(rows, func(row pagination.Row) bool {
					return selected[fmt.Sprint(row[c.Name])]
				})
			}
		}
	}

	if s.AttrElements != nil {
		order, groups := s.elementsByAttribute()
		var rowAttrs []string
		for _, attrID := range order {
			if lay.hasAttribute(attrID) {
				rowAttrs = append(rowAttrs, attrID)
				continue
			}
			for _, c := range lay {
				if forms, ok := c.Elements[attrID]; ok && !containsAny(groups[attrID], forms) {
					drop[c.Name] = true
				}
			}
		}
		if len(rowAttrs) > 0 || len(order) == 0 {
			rows = keepRows(rows, func(row pagination.Row) bool {
				for _, attrID := range rowAttrs {
					if rowHasElement(row, lay, attrID, groups[attrID]) {
						return true
					}
				}
				return false
			})
		}
	}

	if s.Attributes != nil {
		for _, c := range lay {
			if c.AttributeID != "" && !slices.Contains(s.Attributes, c.AttributeID) {
				drop[c.Name] = true
			}
		}
	}

	columns := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		if !drop[col] {
			columns = append(columns, col)
		}
	}
	out := make([]pagination.Row, len(rows))
	for i, row := range rows {
		trimmed := make(pagination.Row, len(columns))
		for _, col := range columns {
			trimmed[col] = row[col]
		}
		out[i] = trimmed
	}
	return &pagination.Table{Columns: columns, Rows: out}
}

func keepRows(rows []pagination.Row, keep func(pagination.Row) bool) []pagination.Row {
	out := make([]pagination.Row, 0, len(rows))
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

// rowHasElement reports whether any column of the row-axis attribute holds
// one of the element values.
func rowHasElement(row pagination.Row, lay layout, attrID string, values []string) bool {
	for _, c := range lay {
		if c.AttributeID == attrID && slices.Contains(values, fmt.Sprint(row[c.Name])) {
			return true
		}
	}
	return false
}

func containsAny(values, candidates []string) bool {
	for _, c := range candidates {
		if slices.Contains(values, c) {
			return true
		}
	}
	return false
}
