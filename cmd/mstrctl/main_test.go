package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/mstr-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout string
	err    error
}

// run executes mstrctl against mock with a generated config file.
func run(t *testing.T, mock *testutil.MockServer, stdin string, args ...string) result {
	t.Helper()

	cfg := fmt.Sprintf(`
server:
  base_url: %s
  username: analyst
  project_id: P1
logging:
  level: error
  format: json
filter:
  presets:
    nightly: 'startsWith(name, "Nightly")'
`, mock.URL())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", path}, args...))

	err := cmd.Execute()
	return result{stdout: stdout.String(), err: err}
}

func salesReport(cube bool) *testutil.GridReport {
	return &testutil.GridReport{
		ID:         "R1",
		Name:       "Regional Sales",
		Rows:       25,
		Attributes: []testutil.GridAttribute{{ID: "A1", Name: "Region"}},
		Metrics:    []testutil.GridMetric{{ID: "M1", Name: "Revenue"}},
		Cube:       cube,
		InstanceID: "I1",
	}
}

func TestStatus(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()

	res := run(t, mock, "", "status", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Version:  11.3.960")
	assert.Contains(t, res.stdout, "User:     analyst")
	assert.Contains(t, res.stdout, "Project:  P1")
	assert.Equal(t, 1, mock.GetLoginCount())
	assert.Equal(t, 1, mock.GetLogoutCount(), "the session is closed on exit")
}

func TestReportExport(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesReport(false).Register(mock, "/api/v2/reports/R1")

	res := run(t, mock, "", "report", "export", "R1", "--limit", "10", "--format", "csv")
	require.NoError(t, res.err)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 26)
	assert.Equal(t, "Region,Revenue", lines[0])
	assert.Equal(t, testutil.Value("Region", 24)+",240", lines[25])
}

func TestCubeExport_ToFile(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesReport(true).Register(mock, "/api/v2/cubes/R1")

	path := filepath.Join(t.TempDir(), "sales.json")
	res := run(t, mock, "", "cube", "export", "R1", "--no-parallel", "--format", "json", "--output", path)
	require.NoError(t, res.err)
	assert.Empty(t, res.stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 25)
}

func TestReportExport_UnknownFormat(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	salesReport(false).Register(mock, "/api/v2/reports/R1")

	res := run(t, mock, "", "report", "export", "R1", "--format", "xlsx")
	assert.ErrorContains(t, res.err, "unknown output format")
}

func TestEventList(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetHandler("GET /api/events", testutil.NewPagedHandler([]map[string]any{
		{"id": "E1", "name": "Nightly Load"},
		{"id": "E2", "name": "Month End"},
	}, func(page []map[string]any) any {
		return map[string]any{"events": page}
	}))

	res := run(t, mock, "", "event", "list", "--filter", "@nightly", "--format", "csv")
	require.NoError(t, res.err)
	assert.Equal(t, "id,name,description\nE1,Nightly Load,\n", res.stdout)

	res = run(t, mock, "", "event", "list", "--filter", "@weekly")
	assert.ErrorContains(t, res.err, "unknown filter preset")

	res = run(t, mock, "", "event", "list", "--filter", "name ==")
	assert.ErrorContains(t, res.err, "invalid filter expression")
}

func TestEventTrigger(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetJSON("GET /api/events/E1", map[string]any{"id": "E1", "name": "Nightly Load"})
	var triggered atomic.Int32
	mock.SetHandler("POST /api/events/E1/trigger", func(w http.ResponseWriter, r *http.Request) {
		triggered.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	res := run(t, mock, "", "event", "trigger", "E1")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `Triggered schedule_event "Nightly Load" (E1)`)
	assert.Equal(t, int32(1), triggered.Load())
}

func TestSubscriptionDelete(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetJSON("GET /api/subscriptions/S1", map[string]any{"id": "S1", "name": "Daily Sales", "delivery": map[string]any{"mode": "EMAIL"}})
	var deleted atomic.Int32
	mock.SetHandler("DELETE /api/subscriptions/S1", func(w http.ResponseWriter, r *http.Request) {
		deleted.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	res := run(t, mock, "n\n", "subscription", "delete", "S1")
	assert.Error(t, res.err)
	assert.Contains(t, res.stdout, "Daily Sales (S1)")
	assert.Zero(t, deleted.Load())

	res = run(t, mock, "y\n", "subscription", "delete", "S1")
	require.NoError(t, res.err)
	assert.Equal(t, int32(1), deleted.Load())

	res = run(t, mock, "", "subscription", "delete", "--force", "S1")
	require.NoError(t, res.err)
	assert.Equal(t, int32(2), deleted.Load())
}

func TestFolderCreate(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetJSON("POST /api/folders", map[string]any{"id": "F9", "name": "Quarterly", "type": 8})

	res := run(t, mock, "", "folder", "create", "Quarterly")
	assert.ErrorContains(t, res.err, "parent")

	res = run(t, mock, "", "folder", "create", "Quarterly", "--parent", "F1")
	require.NoError(t, res.err)
	assert.Equal(t, "F9\n", res.stdout)
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "status"})
	assert.ErrorContains(t, cmd.Execute(), "failed to load config")
}
