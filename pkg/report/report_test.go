package report

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/mstr-client/internal/testutil"
	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportPath = "/api/v2/reports/R1"

func newClient(t *testing.T, mock *testutil.MockServer) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig(mock.URL(), "report-test/1.0")
	cfg.Username = "analyst"
	cfg.ProjectID = "P1"
	cfg.InitialBackoff = time.Millisecond
	c, err := client.New(cfg)
	require.NoError(t, err)
	return c
}

func salesGrid(rows int) *testutil.GridReport {
	return &testutil.GridReport{
		ID:   "R1",
		Name: "Sales by Region",
		Rows: rows,
		Attributes: []testutil.GridAttribute{
			{ID: "A1", Name: "Region"},
			{ID: "A2", Name: "Customer", Forms: []string{"ID", "DESC"}},
		},
		Metrics: []testutil.GridMetric{
			{ID: "M1", Name: "Revenue"},
			{ID: "M2", Name: "Cost"},
		},
		InstanceID: "I1",
	}
}

// recorder counts instance requests and keeps the last creation body.
type recorder struct {
	mu      sync.Mutex
	body    map[string]any
	creates atomic.Int32
	chunks  atomic.Int32
}

func (rec *recorder) register(mock *testutil.MockServer, g *testutil.GridReport, base string) {
	g.Register(mock, base)
	serve := g.InstanceHandler()
	mock.SetHandler("POST "+base+"/instances", func(w http.ResponseWriter, r *http.Request) {
		rec.creates.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.body = body
		rec.mu.Unlock()
		serve(w, r)
	})
	mock.SetHandler("GET "+base+"/instances/"+g.InstanceID, func(w http.ResponseWriter, r *http.Request) {
		rec.chunks.Add(1)
		serve(w, r)
	})
}

func (rec *recorder) lastBody() map[string]any {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.body
}

func assertSalesRows(t *testing.T, table *pagination.Table, n int) {
	t.Helper()
	require.Len(t, table.Rows, n)
	assert.Equal(t, []string{"Region", "Customer@ID", "Customer@DESC", "Revenue", "Cost"}, table.Columns)
	for i, row := range table.Rows {
		require.Equal(t, testutil.Value("Region", i), row["Region"], "row %d out of order", i)
		require.Equal(t, testutil.Value("DESC", i), row["Customer@DESC"])
		require.Equal(t, testutil.MetricValue(i, 1), row["Cost"])
	}
}

func TestToTable(t *testing.T) {
	tests := []struct {
		name       string
		rows       int
		limit      int
		parallel   bool
		wantChunks int32
	}{
		{name: "single page", rows: 40, wantChunks: 0},
		{name: "sequential", rows: 2500, limit: 700, wantChunks: 3},
		{name: "parallel", rows: 2500, limit: 700, parallel: true, wantChunks: 3},
		{name: "exact multiple", rows: 2100, limit: 700, parallel: true, wantChunks: 2},
		{name: "derived chunk size", rows: 2500, wantChunks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockServer()
			defer mock.Close()

			g := salesGrid(tt.rows)
			rec := &recorder{}
			rec.register(mock, g, reportPath)

			var updates []pagination.Progress
			r := New(newClient(t, mock), "R1",
				WithParallel(tt.parallel),
				WithProgress(func(p pagination.Progress) { updates = append(updates, p) }),
			)

			table, err := r.ToTable(context.Background(), tt.limit)
			require.NoError(t, err)
			assertSalesRows(t, table, tt.rows)

			assert.Equal(t, int32(1), rec.creates.Load())
			assert.Equal(t, tt.wantChunks, rec.chunks.Load())
			assert.Equal(t, "I1", r.InstanceID())
			assert.Same(t, table, r.Table())
			if tt.wantChunks > 0 {
				require.NotEmpty(t, updates)
				assert.Equal(t, tt.rows, updates[len(updates)-1].Rows)
			}
		})
	}
}

func TestToTable_Subtotals(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{name: "current server", version: testutil.DefaultVersion, want: true},
		{name: "flag introduced", version: "11.2.0100.0012", want: true},
		{name: "older server", version: "11.1.0400.0001", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockServer()
			defer mock.Close()
			mock.SetVersion(tt.version)

			rec := &recorder{}
			rec.register(mock, salesGrid(10), reportPath)

			_, err := New(newClient(t, mock), "R1").ToTable(context.Background(), 0)
			require.NoError(t, err)

			subtotals, ok := rec.lastBody()["subtotals"]
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, map[string]any{"visible": false}, subtotals)
			}
		})
	}
}

func TestToTable_ReusesInstance(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	rec := &recorder{}
	rec.register(mock, salesGrid(30), reportPath)
	c := newClient(t, mock)

	table, err := New(c, "R1", WithInstanceID("I1")).ToTable(context.Background(), 0)
	require.NoError(t, err)
	assertSalesRows(t, table, 30)
	assert.Zero(t, rec.creates.Load())
	assert.Equal(t, int32(1), rec.chunks.Load())

	r := New(c, "R1", WithInstanceID("expired"))
	table, err = r.ToTable(context.Background(), 0)
	require.NoError(t, err, "an unknown instance falls back to a new one")
	assertSalesRows(t, table, 30)
	assert.Equal(t, int32(1), rec.creates.Load())
	assert.Equal(t, "I1", r.InstanceID())
}

func TestToTable_ChunkFailure(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	g := salesGrid(300)
	g.Register(mock, reportPath)
	serve := g.InstanceHandler()
	mock.SetHandler("GET "+reportPath+"/instances/I1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "200" {
			testutil.WriteError(w, http.StatusBadRequest, "ERR006", "instance chunk unavailable")
			return
		}
		serve(w, r)
	})

	r := New(newClient(t, mock), "R1")
	_, err := r.ToTable(context.Background(), 100)
	require.Error(t, err)

	var fetchErr *pagination.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 200, fetchErr.Offset)
	assert.Equal(t, 100, fetchErr.Limit)
	assert.Nil(t, r.Table(), "no partial table is kept")
}

func TestToTable_Prompted(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	g := salesGrid(10)
	g.Register(mock, reportPath)
	mock.SetHandler("POST "+reportPath+"/instances", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteJSON(w, http.StatusOK, map[string]any{"instanceId": "I9", "status": 2})
	})

	_, err := New(newClient(t, mock), "R1").ToTable(context.Background(), 0)
	assert.ErrorIs(t, err, ErrPrompted)
}

func TestApplyFilters(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	rec := &recorder{}
	rec.register(mock, salesGrid(10), reportPath)

	r := New(newClient(t, mock), "R1", WithInstanceID("I1"))
	ctx := context.Background()

	require.NoError(t, r.ApplyFilters(ctx, Selection{
		Attributes:   []string{"A1"},
		Metrics:      []string{},
		AttrElements: []string{"A1:h1;A1", "A1:h2;A1", "A2:h7;A2"},
		Operator:     NotIn,
	}))
	assert.Empty(t, r.InstanceID(), "filters need a new instance")

	_, err := r.ToTable(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), rec.creates.Load())

	body := rec.lastBody()
	assert.Equal(t, map[string]any{
		"attributes": []any{map[string]any{"id": "A1"}},
		"metrics":    []any{},
	}, body["requestedObjects"])

	view := body["viewFilter"].(map[string]any)
	assert.Equal(t, "And", view["operator"])
	operands := view["operands"].([]any)
	require.Len(t, operands, 2)
	first := operands[0].(map[string]any)
	assert.Equal(t, "NotIn", first["operator"])
	assert.Equal(t, []any{
		map[string]any{"type": "attribute", "id": "A1"},
		map[string]any{"type": "elements", "elements": []any{
			map[string]any{"id": "A1:h1;A1"},
			map[string]any{"id": "A1:h2;A1"},
		}},
	}, first["operands"])

	r.ClearFilters()
	_, err = r.ToTable(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), rec.creates.Load())
	_, filtered := rec.lastBody()["requestedObjects"]
	assert.False(t, filtered)
}

func TestApplyFilters_Validation(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesGrid(10).Register(mock, reportPath)

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()

	tests := []struct {
		name string
		sel  Selection
	}{
		{name: "unknown attribute", sel: Selection{Attributes: []string{"A9"}}},
		{name: "unknown metric", sel: Selection{Metrics: []string{"M9"}}},
		{name: "element without attribute", sel: Selection{AttrElements: []string{"Region-1"}}},
		{name: "element of unknown attribute", sel: Selection{AttrElements: []string{"A9:x"}}},
		{name: "bad operator", sel: Selection{AttrElements: []string{"A1:x"}, Operator: "Between"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.ApplyFilters(ctx, tt.sel))
			assert.True(t, r.Filters().IsZero())
		})
	}
}

func TestApplyFilters_CrossTab(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	g := salesGrid(20)
	g.CrossTab = true
	rec := &recorder{}
	rec.register(mock, g, reportPath)

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()
	require.NoError(t, r.ApplyFilters(ctx, Selection{
		Attributes:   []string{"A1"},
		Metrics:      []string{"M1"},
		AttrElements: []string{"A1:" + testutil.Value("Region", 3), "A2:" + testutil.Value("DESC", 5)},
	}))

	table, err := r.ToTable(ctx, 0)
	require.NoError(t, err)

	_, sent := rec.lastBody()["requestedObjects"]
	assert.False(t, sent, "crosstab filters are applied locally")

	assert.Equal(t, []string{"Region", "Revenue"}, table.Columns)
	assert.Equal(t, []pagination.Row{
		{"Region": "Region-3", "Revenue": testutil.MetricValue(3, 0)},
		{"Region": "Region-5", "Revenue": testutil.MetricValue(5, 0)},
	}, table.Rows)
}

func yearGrid(rows int) *testutil.GridReport {
	return &testutil.GridReport{
		ID:         "R1",
		Name:       "Revenue by Year",
		Rows:       rows,
		Attributes: []testutil.GridAttribute{{ID: "A1", Name: "Region"}},
		ColumnAttributes: []testutil.GridColumnAttribute{
			{ID: "A3", Name: "Year", Elements: []string{"2025", "2026"}},
		},
		Metrics: []testutil.GridMetric{
			{ID: "M1", Name: "Revenue"},
			{ID: "M2", Name: "Cost"},
		},
		CrossTab:   true,
		InstanceID: "I1",
	}
}

func TestToTable_AttributeOnColumns(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	rec := &recorder{}
	rec.register(mock, yearGrid(2500), reportPath)

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()

	def, err := r.Definition(ctx)
	require.NoError(t, err)
	require.Len(t, def.Attributes, 2)
	assert.Equal(t, "Year", def.Attributes[1].Name)

	table, err := r.ToTable(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(2), rec.chunks.Load())
	assert.Equal(t, []string{"Region", "2025 Revenue", "2025 Cost", "2026 Revenue", "2026 Cost"}, table.Columns)
	require.Len(t, table.Rows, 2500)
	for i := range 2500 {
		row := table.Rows[i]
		require.Equal(t, testutil.Value("Region", i), row["Region"])
		require.Equal(t, testutil.MetricValue(i, 3), row["2026 Cost"])
	}
}

func TestApplyFilters_CrossTabColumnAxis(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	rec := &recorder{}
	rec.register(mock, yearGrid(1500), reportPath)

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()
	require.NoError(t, r.ApplyFilters(ctx, Selection{
		Metrics:      []string{"M1"},
		AttrElements: []string{"A3:2026", "A1:" + testutil.Value("Region", 1200)},
	}))

	table, err := r.ToTable(ctx, 1000)
	require.NoError(t, err)

	_, sent := rec.lastBody()["viewFilter"]
	assert.False(t, sent, "crosstab filters are applied locally")
	assert.Equal(t, []string{"Region", "2026 Revenue"}, table.Columns)
	assert.Equal(t, []pagination.Row{
		{"Region": "Region-1200", "2026 Revenue": testutil.MetricValue(1200, 2)},
	}, table.Rows)

	err = r.ApplyFilters(ctx, Selection{AttrElements: []string{"A3:2025"}, Operator: NotIn})
	assert.ErrorIs(t, err, ErrCrossTabNotIn)
	assert.Equal(t, []string{"M1"}, r.Filters().Metrics, "a rejected selection keeps the previous one")
}

func TestToTable_MetricsOnRows(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	g := salesGrid(30)
	g.Attributes = g.Attributes[:1]
	g.MetricsOnRows = true
	g.CrossTab = true
	g.Register(mock, reportPath)

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()

	def, err := r.Definition(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Metric{{ID: "M1", Name: "Revenue"}, {ID: "M2", Name: "Cost"}}, def.Metrics)

	require.NoError(t, r.ApplyFilters(ctx, Selection{Metrics: []string{"M2"}}))
	table, err := r.ToTable(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Region", "Metrics", "Value"}, table.Columns)
	require.Len(t, table.Rows, 15)
	for _, row := range table.Rows {
		assert.Equal(t, "Cost", row["Metrics"])
	}
	assert.Equal(t, testutil.MetricValue(1, 0), table.Rows[0]["Value"])
}

func TestDefinition(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesGrid(10).Register(mock, reportPath)

	def, err := New(newClient(t, mock), "R1").Definition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Sales by Region", def.Name)
	assert.False(t, def.CrossTab)
	require.Len(t, def.Attributes, 2)
	assert.Equal(t, []string{"Customer@ID", "Customer@DESC"}, def.Attributes[1].Columns())
	assert.Equal(t, []Metric{{ID: "M1", Name: "Revenue"}, {ID: "M2", Name: "Cost"}}, def.Metrics)
	assert.Equal(t, &Subtotals{Visible: true}, def.Subtotals)
}

func TestDefinition_Unsupported(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	def := salesGrid(10).Definition()
	avail := def["definition"].(map[string]any)["availableObjects"].(map[string]any)
	avail["customGroups"] = []any{map[string]any{"id": "CG1", "name": "Age Groups"}}
	mock.SetJSON("GET "+reportPath, def)

	_, err := New(newClient(t, mock), "R1").ToTable(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnsupportedReport)
}

func TestCube(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	g := salesGrid(1500)
	g.Cube = true
	rec := &recorder{}
	rec.register(mock, g, "/api/v2/cubes/R1")

	cube := NewCube(newClient(t, mock), "R1")
	def, err := cube.Definition(context.Background())
	require.NoError(t, err)
	assert.Len(t, def.Attributes, 2)
	assert.Len(t, def.Metrics, 2)

	table, err := cube.ToTable(context.Background(), 500)
	require.NoError(t, err)
	assertSalesRows(t, table, 1500)
	assert.Equal(t, int32(2), rec.chunks.Load())
	_, ok := rec.lastBody()["subtotals"]
	assert.False(t, ok, "cube instances have no subtotals flag")
}

func TestAttrElements(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		mock := testutil.NewMockServer()

		salesGrid(10).Register(mock, reportPath)
		counts := map[string]int{"A1": 3, "A2": 120}
		for id, n := range counts {
			elements := make([]map[string]any, n)
			for i := range elements {
				elements[i] = map[string]any{"id": id + ":" + testutil.Value("e", i), "formValues": []string{testutil.Value("e", i)}}
			}
			mock.SetHandler("GET /api/reports/R1/attributes/"+id+"/elements", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "50000", r.URL.Query().Get("limit"))
				testutil.NewPagedHandler(elements, nil)(w, r)
			})
		}

		got, err := New(newClient(t, mock), "R1", WithParallel(parallel)).AttrElements(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Region", got[0].Attribute.Name)
		assert.Len(t, got[0].Elements, 3)
		assert.Equal(t, "Customer", got[1].Attribute.Name)
		assert.Len(t, got[1].Elements, 120)
		assert.Equal(t, Element{ID: "A2:e-119", FormValues: []string{"e-119"}}, got[1].Elements[119])

		mock.Close()
	}
}

func TestAttrElements_Failure(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesGrid(10).Register(mock, reportPath)
	mock.SetHandler("GET /api/reports/R1/attributes/A1/elements", testutil.NewPagedHandler(nil, nil))

	_, err := New(newClient(t, mock), "R1").AttrElements(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Customer")
	assert.True(t, client.IsNotFound(err))
}

func TestLifecycle(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesGrid(10).Register(mock, reportPath)

	mock.SetHandler("PUT /api/objects/R1", func(w http.ResponseWriter, r *http.Request) {
		var changes map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&changes))
		testutil.WriteJSON(w, http.StatusOK, map[string]any{"id": "R1", "name": changes["name"], "type": 3})
	})
	var deleted atomic.Bool
	mock.SetHandler("DELETE /api/objects/R1", func(w http.ResponseWriter, r *http.Request) {
		deleted.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})

	r := New(newClient(t, mock), "R1")
	ctx := context.Background()

	def, err := r.Definition(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Alter(ctx, objects.Changes{Name: objects.String("Sales 2026")}))
	assert.Equal(t, "Sales 2026", def.Name)

	require.NoError(t, r.Delete(ctx))
	assert.True(t, deleted.Load())
}

func TestList(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	results := []map[string]any{
		{"id": "R1", "name": "Sales by Region", "type": 3, "subtype": 768},
		{"id": "C1", "name": "Sales Cube", "type": 3, "subtype": 776},
		{"id": "R2", "name": "Sales Trend", "type": 3, "subtype": 768},
		{"id": "C2", "name": "Sales Super Cube", "type": 3, "subtype": 779},
	}
	mock.SetHandler("GET /api/searches/results", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Sales", r.URL.Query().Get("name"))
		assert.Equal(t, "4", r.URL.Query().Get("pattern"))
		testutil.NewPagedHandler(results, func(page []map[string]any) any {
			return map[string]any{"result": page, "totalItems": len(results)}
		})(w, r)
	})

	c := newClient(t, mock)
	reports, err := List(context.Background(), c, ListOptions{Name: "Sales"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "R2", reports[1].ID)

	cubes, err := List(context.Background(), c, ListOptions{Name: "Sales", Cubes: true})
	require.NoError(t, err)
	require.Len(t, cubes, 2)
	assert.Equal(t, "Sales Super Cube", cubes[1].Name)
}
