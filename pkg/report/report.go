// Package report downloads report and cube results as tables.
//
// The first chunk comes from creating an instance (or reusing a known one);
// the remaining chunks are fetched through the pagination materializer, in
// parallel when enabled.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPrompted is returned when an instance waits for prompt answers.
	ErrPrompted      = errors.New("prompted reports are not supported")
	// ErrCrossTabNotIn is returned for NotIn element filters on crosstab
	// reports, which are filtered locally by selected elements only.
	ErrCrossTabNotIn = errors.New("NotIn element filters are not supported on crosstab reports")
)

// statusPrompted is the instance status of a report waiting for answers.
const statusPrompted = 2

type kind int

const (
	kindReport kind = iota
	kindCube
)

func (k kind) String() string {
	if k == kindCube {
		return "cube"
	}
	return "report"
}

func (k kind) collection() string {
	if k == kindCube {
		return "cubes"
	}
	return "reports"
}

func (k kind) definitionPath(id string) string {
	return "/api/v2/" + k.collection() + "/" + url.PathEscape(id)
}

func (k kind) instancesPath(id string) string {
	return k.definitionPath(id) + "/instances"
}

func (k kind) instancePath(id, instanceID string) string {
	return k.instancesPath(id) + "/" + url.PathEscape(instanceID)
}

func (k kind) elementsPath(id, attributeID string) string {
	return "/api/" + k.collection() + "/" + url.PathEscape(id) + "/attributes/" + url.PathEscape(attributeID) + "/elements"
}

// Report is a report or cube on the server. It is not safe for concurrent
// use; a single ToTable call fetches chunks concurrently on its own.
type Report struct {
	client       *client.Client
	id           string
	kind         kind
	instanceID   string
	parallel     bool
	progress     pagination.ProgressFunc
	initialLimit int
	materializer *pagination.Materializer
	logger       zerolog.Logger

	def       *Definition
	selection Selection
	table     *pagination.Table
}

// Option configures a Report.
type Option func(*Report)

// WithInstanceID reuses an existing instance for the next download.
func WithInstanceID(id string) Option {
	return func(r *Report) { r.instanceID = id }
}

// WithParallel enables or disables parallel chunk downloads (default on).
func WithParallel(parallel bool) Option {
	return func(r *Report) { r.parallel = parallel }
}

// WithProgress registers a progress callback for downloads.
func WithProgress(fn pagination.ProgressFunc) Option {
	return func(r *Report) { r.progress = fn }
}

// WithInitialLimit sets the row limit of the first chunk when ToTable is
// called without a limit.
func WithInitialLimit(limit int) Option {
	return func(r *Report) {
		if limit > 0 {
			r.initialLimit = limit
		}
	}
}

// WithMaterializer replaces the default materializer.
func WithMaterializer(m *pagination.Materializer) Option {
	return func(r *Report) { r.materializer = m }
}

// New returns the report with the given ID. No request is made.
func New(c *client.Client, id string, opts ...Option) *Report {
	return newReport(c, id, kindReport, opts)
}

// NewCube returns the cube with the given ID. Cubes are downloaded through
// /api/v2/cubes with the same pipeline as reports.
func NewCube(c *client.Client, id string, opts ...Option) *Report {
	return newReport(c, id, kindCube, opts)
}

func newReport(c *client.Client, id string, k kind, opts []Option) *Report {
	r := &Report{
		client:       c,
		id:           id,
		kind:         k,
		parallel:     true,
		initialLimit: pagination.DefaultInitialLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.materializer == nil {
		r.materializer = pagination.New(pagination.DefaultConfig())
	}
	r.logger = log.With().Str(k.String()+"_id", id).Logger()
	r.materializer = r.materializer.WithLogger(r.logger)
	return r
}

// ID returns the object ID.
func (r *Report) ID() string { return r.id }

// InstanceID returns the instance the last download used.
func (r *Report) InstanceID() string { return r.instanceID }

// Table returns the table of the last successful ToTable call.
func (r *Report) Table() *pagination.Table { return r.table }

// ApplyFilters restricts the next download. Selections on regular reports
// are sent with a new instance; crosstab reports are filtered locally after
// the download.
func (r *Report) ApplyFilters(ctx context.Context, s Selection) error {
	def, err := r.Definition(ctx)
	if err != nil {
		return err
	}
	if err := s.validate(def); err != nil {
		return fmt.Errorf("%s %s: %w", r.kind, r.id, err)
	}
	if def.CrossTab && s.Operator == NotIn && len(s.AttrElements) > 0 {
		return fmt.Errorf("%s %s: %w", r.kind, r.id, ErrCrossTabNotIn)
	}
	if s.IsZero() {
		return nil
	}

	r.selection = s
	if !def.CrossTab {
		r.instanceID = ""
	}
	return nil
}

// ClearFilters removes all filters. The next download creates a new instance.
func (r *Report) ClearFilters() {
	r.selection = Selection{}
	r.instanceID = ""
}

// Filters returns the current selection.
func (r *Report) Filters() Selection { return r.selection }

// ToTable downloads the result. limit is the number of rows per chunk; 0
// derives it from the size of the first chunk.
func (r *Report) ToTable(ctx context.Context, limit int) (*pagination.Table, error) {
	def, err := r.Definition(ctx)
	if err != nil {
		return nil, err
	}

	initial := r.initialLimit
	if limit > 0 {
		initial = limit
	}

	start := time.Now()
	first, lay, err := r.firstPage(ctx, initial)
	if err != nil {
		return nil, err
	}

	table, err := r.materializer.Materialize(ctx, first, pagination.PageFetcherFunc(r.fetchChunk), pagination.Options{
		Limit:    limit,
		Parallel: r.parallel,
		Progress: r.progress,
	})
	if err != nil {
		return nil, fmt.Errorf("download %s %s: %w", r.kind, r.id, err)
	}

	if def.CrossTab && !r.selection.IsZero() {
		table = r.selection.filterTable(def, lay, table)
	}
	r.table = table

	r.logger.Info().
		Str("instance_id", r.instanceID).
		Int("rows", table.Len()).
		Int("columns", len(table.Columns)).
		Dur("duration", time.Since(start)).
		Msg("Downloaded " + r.kind.String())
	return table, nil
}

// firstPage reads the first chunk from the known instance, falling back to
// a new instance when the server rejects it.
func (r *Report) firstPage(ctx context.Context, limit int) (*pagination.Page, layout, error) {
	if r.instanceID != "" {
		page, lay, err := r.chunk(ctx, 0, limit)
		if err == nil {
			return page, lay, nil
		}
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) {
			return nil, nil, err
		}
		r.logger.Warn().
			Err(err).
			Str("instance_id", r.instanceID).
			Msg("Instance unavailable, creating a new one")
	}
	return r.createInstance(ctx, limit)
}

func (r *Report) createInstance(ctx context.Context, limit int) (*pagination.Page, layout, error) {
	body := map[string]any{}
	if !r.def.CrossTab {
		body = r.selection.requestBody()
	}
	if r.kind == kindReport {
		ok, err := r.client.VersionAtLeast(ctx, client.VersionNoSubtotalsFlag)
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Msg("Server version unknown, keeping subtotals")
		case ok:
			body["subtotals"] = Subtotals{Visible: false}
		}
	}

	query := url.Values{
		"offset": {"0"},
		"limit":  {strconv.Itoa(limit)},
	}
	resp, err := r.client.Post(ctx, r.kind.instancesPath(r.id), query, body)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s %s instance: %w", r.kind, r.id, err)
	}

	inst, err := decodeInstance(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s %s instance: %w", r.kind, r.id, err)
	}
	if inst.Status == statusPrompted {
		return nil, nil, fmt.Errorf("%s %s: %w", r.kind, r.id, ErrPrompted)
	}
	if inst.InstanceID == "" {
		return nil, nil, fmt.Errorf("create %s %s instance: no instance id in response", r.kind, r.id)
	}
	r.instanceID = inst.InstanceID

	r.logger.Debug().
		Str("instance_id", inst.InstanceID).
		Int("total", inst.Data.Paging.Total).
		Msg("Created instance")
	return inst.page(len(resp.Body))
}

// fetchChunk implements pagination.PageFetcher for the current instance.
func (r *Report) fetchChunk(ctx context.Context, offset, limit int) (*pagination.Page, error) {
	page, _, err := r.chunk(ctx, offset, limit)
	return page, err
}

// chunk reads rows [offset, offset+limit) of the current instance.
func (r *Report) chunk(ctx context.Context, offset, limit int) (*pagination.Page, layout, error) {
	query := url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
	resp, err := r.client.Get(ctx, r.kind.instancePath(r.id, r.instanceID), query)
	if err != nil {
		return nil, nil, err
	}
	inst, err := decodeInstance(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return inst.page(len(resp.Body))
}

// Info returns the object metadata.
func (r *Report) Info(ctx context.Context) (*objects.Info, error) {
	return objects.GetInfo(ctx, r.client, r.id, objects.TypeReport)
}

// Alter changes the name, description, folder or visibility of the object.
func (r *Report) Alter(ctx context.Context, changes objects.Changes) error {
	info, err := objects.Alter(ctx, r.client, r.id, objects.TypeReport, changes)
	if err != nil {
		return err
	}
	r.client.Invalidate(ctx, r.kind.definitionPath(r.id))
	if r.def != nil {
		r.def.Name = info.Name
	}
	return nil
}

// Delete removes the object from the metadata.
func (r *Report) Delete(ctx context.Context) error {
	if err := objects.Delete(ctx, r.client, r.id, objects.TypeReport); err != nil {
		return err
	}
	r.client.Invalidate(ctx, r.kind.definitionPath(r.id))
	return nil
}

// Certify certifies or decertifies the object.
func (r *Report) Certify(ctx context.Context, certified bool) error {
	return objects.Certify(ctx, r.client, r.id, objects.TypeReport, certified)
}

var (
	_ objects.Deletable   = (*Report)(nil)
	_ objects.Alterable   = (*Report)(nil)
	_ objects.Certifiable = (*Report)(nil)
)
