package report

import (
	"testing"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancePage(t *testing.T) {
	body := []byte(`{
		"instanceId": "I1",
		"status": 1,
		"definition": {"grid": {
			"rows": [
				{"id": "A1", "name": "Year", "type": "attribute", "forms": [{"id": "F1", "name": "ID"}],
				 "elements": [{"id": "h2025", "formValues": ["2025"]}, {"id": "h2026", "formValues": ["2026"]}]},
				{"id": "A2", "name": "Category", "type": "attribute",
				 "elements": [{"id": "h1", "name": "Books"}, {"id": "h2", "name": "Music"}]}
			],
			"columns": [
				{"type": "templateMetrics", "elements": [{"id": "M1", "name": "Units"}, {"id": "M2", "name": "Margin"}]}
			]
		}},
		"data": {
			"paging": {"total": 9, "current": 3, "offset": 6, "limit": 3},
			"headers": {"rows": [[0, 1], [1, 0], [1, 1]]},
			"metricValues": {"raw": [[5, 0.25], [7, null], [9]]}
		}
	}`)

	inst, err := decodeInstance(body)
	require.NoError(t, err)
	page, lay, err := inst.page(len(body))
	require.NoError(t, err)

	assert.Equal(t, 6, page.Offset)
	assert.Equal(t, 3, page.Limit)
	assert.Equal(t, 9, page.TotalCount)
	assert.Equal(t, len(body), page.RawByteSize)
	assert.Equal(t, []string{"Year", "Category", "Units", "Margin"}, page.Columns)
	assert.Equal(t, []pagination.Row{
		{"Year": "2025", "Category": "Music", "Units": 5.0, "Margin": 0.25},
		{"Year": "2026", "Category": "Books", "Units": 7.0, "Margin": nil},
		{"Year": "2026", "Category": "Music", "Units": 9.0, "Margin": nil},
	}, page.Rows)
	assert.Equal(t, layout{
		{Name: "Year", AttributeID: "A1"},
		{Name: "Category", AttributeID: "A2"},
		{Name: "Units", MetricID: "M1"},
		{Name: "Margin", MetricID: "M2"},
	}, lay)
}

func TestInstancePage_MetricsOnly(t *testing.T) {
	inst, err := decodeInstance([]byte(`{
		"definition": {"grid": {"rows": [], "columns": [
			{"type": "templateMetrics", "elements": [{"id": "M1", "name": "Revenue"}]}
		]}},
		"data": {"paging": {"total": 1, "current": 1, "offset": 0, "limit": 1000},
		         "headers": {"rows": []}, "metricValues": {"raw": [[1250.5]]}}
	}`))
	require.NoError(t, err)

	page, _, err := inst.page(100)
	require.NoError(t, err)
	assert.Equal(t, []pagination.Row{{"Revenue": 1250.5}}, page.Rows)
}

func TestInstancePage_AttributeOnColumns(t *testing.T) {
	body := []byte(`{
		"definition": {"grid": {
			"crossTab": true,
			"rows": [
				{"id": "A1", "name": "Region", "type": "attribute",
				 "elements": [{"id": "A1:North", "name": "North"}, {"id": "A1:South", "name": "South"}]}
			],
			"columns": [
				{"id": "A2", "name": "Year", "type": "attribute", "forms": [{"id": "F1", "name": "ID"}],
				 "elements": [{"id": "A2:2025", "formValues": ["2025"]}, {"id": "A2:2026", "formValues": ["2026"]}]},
				{"type": "templateMetrics", "name": "Metrics",
				 "elements": [{"id": "M1", "name": "Revenue"}, {"id": "M2", "name": "Cost"}]}
			]
		}},
		"data": {
			"paging": {"total": 2, "current": 2, "offset": 0, "limit": 1000},
			"headers": {"rows": [[0], [1]], "columns": [[0, 0, 1, 1], [0, 1, 0, 1]]},
			"metricValues": {"raw": [[10, 4, 12, 5], [20, 8, 22, 9]]}
		}
	}`)

	inst, err := decodeInstance(body)
	require.NoError(t, err)
	page, lay, err := inst.page(len(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "2025 Revenue", "2025 Cost", "2026 Revenue", "2026 Cost"}, page.Columns)
	assert.Equal(t, []pagination.Row{
		{"Region": "North", "2025 Revenue": 10.0, "2025 Cost": 4.0, "2026 Revenue": 12.0, "2026 Cost": 5.0},
		{"Region": "South", "2025 Revenue": 20.0, "2025 Cost": 8.0, "2026 Revenue": 22.0, "2026 Cost": 9.0},
	}, page.Rows)
	assert.Equal(t, gridColumn{Name: "2026 Cost", MetricID: "M2", Elements: map[string][]string{"A2": {"2026"}}}, lay[4])
}

func TestInstancePage_MetricsOnRows(t *testing.T) {
	body := []byte(`{
		"definition": {"grid": {
			"rows": [
				{"id": "A1", "name": "Region", "type": "attribute", "elements": [{"id": "A1:North", "name": "North"}]},
				{"type": "templateMetrics", "name": "Metrics", "elements": [{"id": "M1", "name": "Revenue"}, {"id": "M2", "name": "Cost"}]}
			],
			"columns": []
		}},
		"data": {
			"paging": {"total": 2, "current": 2, "offset": 0, "limit": 1000},
			"headers": {"rows": [[0, 0], [0, 1]], "columns": []},
			"metricValues": {"raw": [[100], [40]]}
		}
	}`)

	inst, err := decodeInstance(body)
	require.NoError(t, err)
	page, lay, err := inst.page(len(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Metrics", "Value"}, page.Columns)
	assert.Equal(t, []pagination.Row{
		{"Region": "North", "Metrics": "Revenue", "Value": 100.0},
		{"Region": "North", "Metrics": "Cost", "Value": 40.0},
	}, page.Rows)
	assert.True(t, lay[1].MetricNames)
}

func TestInstancePage_BadColumnHeaders(t *testing.T) {
	inst, err := decodeInstance([]byte(`{
		"definition": {"grid": {"rows": [], "columns": [
			{"id": "A2", "name": "Year", "type": "attribute", "elements": [{"id": "A2:2025", "name": "2025"}]},
			{"type": "templateMetrics", "elements": [{"id": "M1", "name": "Revenue"}]}
		]}},
		"data": {"paging": {"total": 1}, "headers": {"columns": [[0, 1], [0, 0]]}, "metricValues": {"raw": [[1, 2]]}}
	}`))
	require.NoError(t, err)
	_, _, err = inst.page(10)
	assert.ErrorContains(t, err, "out of range")
}

func TestInstancePage_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "consolidation on columns",
			body: `{"definition": {"grid": {"rows": [], "columns": [{"name": "Seasons", "type": "consolidation"}]}}}`,
		},
		{
			name: "custom group on rows",
			body: `{"definition": {"grid": {"rows": [{"name": "Age Groups", "type": "customGroup"}], "columns": []}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := decodeInstance([]byte(tt.body))
			require.NoError(t, err)
			_, _, err = inst.page(len(tt.body))
			assert.ErrorIs(t, err, ErrUnsupportedLayout)
		})
	}
}

func TestInstancePage_BadIndex(t *testing.T) {
	inst, err := decodeInstance([]byte(`{
		"definition": {"grid": {"rows": [{"name": "Year", "type": "attribute", "elements": [{"id": "h1"}]}], "columns": []}},
		"data": {"paging": {"total": 1}, "headers": {"rows": [[3]]}}
	}`))
	require.NoError(t, err)
	_, _, err = inst.page(10)
	assert.ErrorContains(t, err, "out of range")
}

func TestSelectionFilterTable(t *testing.T) {
	def := &Definition{
		Attributes: []Attribute{
			{ID: "A1", Name: "Region"},
			{ID: "A2", Name: "Store", Forms: []Form{{Name: "ID"}, {Name: "DESC"}}},
		},
		Metrics: []Metric{{ID: "M1", Name: "Sales"}, {ID: "M2", Name: "Returns"}},
	}
	table := &pagination.Table{
		Columns: []string{"Region", "Store@ID", "Store@DESC", "Sales", "Returns"},
		Rows: []pagination.Row{
			{"Region": "North", "Store@ID": "1", "Store@DESC": "Main St", "Sales": 10.0, "Returns": 1.0},
			{"Region": "South", "Store@ID": "2", "Store@DESC": "Harbor", "Sales": 20.0, "Returns": 2.0},
			{"Region": "West", "Store@ID": "3", "Store@DESC": "Airport", "Sales": 30.0, "Returns": 3.0},
		},
	}

	lay := layout{
		{Name: "Region", AttributeID: "A1"},
		{Name: "Store@ID", AttributeID: "A2"},
		{Name: "Store@DESC", AttributeID: "A2"},
		{Name: "Sales", MetricID: "M1"},
		{Name: "Returns", MetricID: "M2"},
	}

	got := Selection{
		Attributes:   []string{"A2"},
		Metrics:      []string{"M2"},
		AttrElements: []string{"A1:North", "A2:3"},
	}.filterTable(def, lay, table)

	assert.Equal(t, []string{"Store@ID", "Store@DESC", "Returns"}, got.Columns)
	assert.Equal(t, []pagination.Row{
		{"Store@ID": "1", "Store@DESC": "Main St", "Returns": 1.0},
		{"Store@ID": "3", "Store@DESC": "Airport", "Returns": 3.0},
	}, got.Rows)

	none := Selection{AttrElements: []string{}}.filterTable(def, lay, table)
	assert.Empty(t, none.Rows, "an empty element selection keeps no rows")

	all := Selection{Metrics: []string{"M1", "M2"}}.filterTable(def, lay, table)
	all.Rows[0]["Region"] = "East"
	assert.Equal(t, "North", table.Rows[0]["Region"], "filtered rows are copies")
}

func TestSelectionFilterTable_ColumnAxis(t *testing.T) {
	def := &Definition{
		CrossTab: true,
		Attributes: []Attribute{
			{ID: "A1", Name: "Region"},
			{ID: "A2", Name: "Year"},
		},
		Metrics: []Metric{{ID: "M1", Name: "Revenue"}, {ID: "M2", Name: "Cost"}},
	}
	lay := layout{
		{Name: "Region", AttributeID: "A1"},
		{Name: "2025 Revenue", MetricID: "M1", Elements: map[string][]string{"A2": {"2025"}}},
		{Name: "2025 Cost", MetricID: "M2", Elements: map[string][]string{"A2": {"2025"}}},
		{Name: "2026 Revenue", MetricID: "M1", Elements: map[string][]string{"A2": {"2026"}}},
		{Name: "2026 Cost", MetricID: "M2", Elements: map[string][]string{"A2": {"2026"}}},
	}
	table := &pagination.Table{
		Columns: lay.names(),
		Rows: []pagination.Row{
			{"Region": "North", "2025 Revenue": 10.0, "2025 Cost": 4.0, "2026 Revenue": 12.0, "2026 Cost": 5.0},
			{"Region": "South", "2025 Revenue": 20.0, "2025 Cost": 8.0, "2026 Revenue": 22.0, "2026 Cost": 9.0},
		},
	}

	tests := []struct {
		name    string
		sel     Selection
		columns []string
		rows    int
	}{
		{
			name:    "column element",
			sel:     Selection{AttrElements: []string{"A2:2026"}},
			columns: []string{"Region", "2026 Revenue", "2026 Cost"},
			rows:    2,
		},
		{
			name:    "row and column elements",
			sel:     Selection{AttrElements: []string{"A2:2025", "A1:South"}},
			columns: []string{"Region", "2025 Revenue", "2025 Cost"},
			rows:    1,
		},
		{
			name:    "metric",
			sel:     Selection{Metrics: []string{"M2"}},
			columns: []string{"Region", "2025 Cost", "2026 Cost"},
			rows:    2,
		},
		{
			name:    "column attribute only",
			sel:     Selection{Attributes: []string{"A2"}},
			columns: []string{"2025 Revenue", "2025 Cost", "2026 Revenue", "2026 Cost"},
			rows:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sel.filterTable(def, lay, table)
			assert.Equal(t, tt.columns, got.Columns)
			assert.Len(t, got.Rows, tt.rows)
			for _, row := range got.Rows {
				assert.Len(t, row, len(tt.columns))
			}
		})
	}
}

func TestSelectionFilterTable_MetricsOnRows(t *testing.T) {
	def := &Definition{Metrics: []Metric{{ID: "M1", Name: "Revenue"}, {ID: "M2", Name: "Cost"}}}
	lay := layout{
		{Name: "Region", AttributeID: "A1"},
		{Name: "Metrics", MetricNames: true},
		{Name: "Value"},
	}
	table := &pagination.Table{
		Columns: lay.names(),
		Rows: []pagination.Row{
			{"Region": "North", "Metrics": "Revenue", "Value": 100.0},
			{"Region": "North", "Metrics": "Cost", "Value": 40.0},
		},
	}

	got := Selection{Metrics: []string{"M2"}}.filterTable(def, lay, table)
	assert.Equal(t, []pagination.Row{{"Region": "North", "Metrics": "Cost", "Value": 40.0}}, got.Rows)
}
