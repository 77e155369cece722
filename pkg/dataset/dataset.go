// Package dataset creates and updates super cubes (datasets) from tabular
// data and reads them back through the cube pipeline.
package dataset

import (
	"cmp"
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/Sternrassler/mstr-client/pkg/pagination"
	"github.com/Sternrassler/mstr-client/pkg/report"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultChunkSize is the number of rows per upload request.
	DefaultChunkSize = 100_000
	// DefaultPollInterval is the wait between publish status checks.
	DefaultPollInterval = time.Second
)

// DataType is the type of a dataset column.
type DataType string

// Column data types.
const (
	TypeString   DataType = "STRING"
	TypeInteger  DataType = "INTEGER"
	TypeDouble   DataType = "DOUBLE"
	TypeBool     DataType = "BOOL"
	TypeDate     DataType = "DATE"
	TypeDateTime DataType = "DATETIME"
)

// Numeric reports whether columns of the type become metrics by default.
func (t DataType) Numeric() bool {
	return t == TypeInteger || t == TypeDouble
}

// Column is a column of a dataset table.
type Column struct {
	Name     string   `json:"name"`
	DataType DataType `json:"dataType"`
}

// TableSchema describes a dataset table. Columns listed in Metrics are
// modeled as metrics; all others as attributes.
type TableSchema struct {
	Name    string
	Columns []Column
	Metrics []string
}

// IsMetric reports whether the column is modeled as a metric.
func (s TableSchema) IsMetric(column string) bool {
	return slices.Contains(s.Metrics, column)
}

// InferSchema derives a table schema from rows: numeric columns become
// metrics, everything else attributes. The first non-nil value of a column
// decides its type. Columns are sorted by name.
func InferSchema(name string, rows []pagination.Row) TableSchema {
	types := make(map[string]DataType)
	for _, row := range rows {
		for col, v := range row {
			if types[col] != "" {
				continue
			}
			types[col] = ""
			if v != nil {
				types[col] = dataTypeOf(v)
			}
		}
	}

	schema := TableSchema{Name: name}
	for col, t := range types {
		if t == "" {
			t = TypeString
		}
		schema.Columns = append(schema.Columns, Column{Name: col, DataType: t})
	}
	slices.SortFunc(schema.Columns, func(a, b Column) int {
		return cmp.Compare(a.Name, b.Name)
	})
	for _, c := range schema.Columns {
		if c.DataType.Numeric() {
			schema.Metrics = append(schema.Metrics, c.Name)
		}
	}
	return schema
}

func dataTypeOf(v any) DataType {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32, float64:
		return TypeDouble
	case bool:
		return TypeBool
	case time.Time:
		return TypeDateTime
	default:
		return TypeString
	}
}

// Dataset is a super cube on the server.
type Dataset struct {
	client       *client.Client
	id           string
	name         string
	tables       []TableSchema
	chunkSize    int
	pollInterval time.Duration
	logger       zerolog.Logger
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithChunkSize sets the number of rows per upload request.
func WithChunkSize(n int) Option {
	return func(d *Dataset) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithPollInterval sets the wait between publish status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dataset) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// New returns the dataset with the given ID. No request is made.
func New(c *client.Client, id string, opts ...Option) *Dataset {
	d := &Dataset{
		client:       c,
		id:           id,
		chunkSize:    DefaultChunkSize,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = log.With().Str("dataset_id", id).Logger()
	return d
}

// ID returns the dataset ID.
func (d *Dataset) ID() string { return d.id }

// Name returns the dataset name, once known.
func (d *Dataset) Name() string { return d.name }

// Definition is the model of a dataset.
type Definition struct {
	ID         string
	Name       string
	Tables     []TableSchema
	Attributes []objects.ObjectRef
	Metrics    []objects.ObjectRef
}

type definitionPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result struct {
		Definition struct {
			AvailableObjects struct {
				Tables []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"tables"`
				Columns []struct {
					TableName  string   `json:"tableName"`
					ColumnName string   `json:"columnName"`
					DataType   DataType `json:"dataType"`
				} `json:"columns"`
				Attributes []objects.ObjectRef `json:"attributes"`
				Metrics    []objects.ObjectRef `json:"metrics"`
			} `json:"availableObjects"`
		} `json:"definition"`
	} `json:"result"`
}

// Definition returns the tables, columns, attributes and metrics of the
// dataset.
func (d *Dataset) Definition(ctx context.Context) (*Definition, error) {
	query := url.Values{"fields": {"tables,columns,attributes,metrics"}}
	resp, err := d.client.GetCached(ctx, "/api/datasets/"+url.PathEscape(d.id), query)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", d.id, err)
	}

	var p definitionPayload
	if err := resp.JSON(&p); err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", d.id, err)
	}

	avail := p.Result.Definition.AvailableObjects
	def := &Definition{
		ID:         p.ID,
		Name:       p.Name,
		Attributes: avail.Attributes,
		Metrics:    avail.Metrics,
	}
	metricNames := make(map[string]bool, len(avail.Metrics))
	for _, m := range avail.Metrics {
		metricNames[m.Name] = true
	}
	for _, t := range avail.Tables {
		schema := TableSchema{Name: t.Name}
		for _, c := range avail.Columns {
			if c.TableName != t.Name {
				continue
			}
			schema.Columns = append(schema.Columns, Column{Name: c.ColumnName, DataType: c.DataType})
			if metricNames[c.ColumnName] {
				schema.Metrics = append(schema.Metrics, c.ColumnName)
			}
		}
		def.Tables = append(def.Tables, schema)
	}

	d.name = def.Name
	d.tables = def.Tables
	return def, nil
}

// CreateRequest describes a new dataset.
type CreateRequest struct {
	Name        string
	Description string
	FolderID    string
	Tables      []TableSchema
}

type expression struct {
	Formula string `json:"formula"`
}

type attributeForm struct {
	Category    string       `json:"category"`
	Expressions []expression `json:"expressions"`
	DataType    DataType     `json:"dataType"`
}

type modelAttribute struct {
	Name           string          `json:"name"`
	AttributeForms []attributeForm `json:"attributeForms"`
}

type modelMetric struct {
	Name        string       `json:"name"`
	DataType    string       `json:"dataType"`
	Expressions []expression `json:"expressions"`
}

type modelTable struct {
	Name          string   `json:"name"`
	ColumnHeaders []Column `json:"columnHeaders"`
}

type modelRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	FolderID    string           `json:"folderId,omitempty"`
	Tables      []modelTable     `json:"tables"`
	Attributes  []modelAttribute `json:"attributes"`
	Metrics     []modelMetric    `json:"metrics"`
}

func (req CreateRequest) model() modelRequest {
	m := modelRequest{
		Name:        req.Name,
		Description: req.Description,
		FolderID:    req.FolderID,
		Tables:      make([]modelTable, 0, len(req.Tables)),
		Attributes:  []modelAttribute{},
		Metrics:     []modelMetric{},
	}
	for _, t := range req.Tables {
		m.Tables = append(m.Tables, modelTable{Name: t.Name, ColumnHeaders: t.Columns})
		for _, c := range t.Columns {
			expr := []expression{{Formula: t.Name + "." + c.Name}}
			if t.IsMetric(c.Name) {
				m.Metrics = append(m.Metrics, modelMetric{Name: c.Name, DataType: "number", Expressions: expr})
				continue
			}
			m.Attributes = append(m.Attributes, modelAttribute{
				Name:           c.Name,
				AttributeForms: []attributeForm{{Category: "ID", Expressions: expr, DataType: c.DataType}},
			})
		}
	}
	return m
}

// Create creates an empty dataset model. Load data with Update.
func Create(ctx context.Context, c *client.Client, req CreateRequest, opts ...Option) (*Dataset, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("create dataset: name is required")
	}
	if len(req.Tables) == 0 {
		return nil, fmt.Errorf("create dataset %q: at least one table is required", req.Name)
	}
	for _, t := range req.Tables {
		if t.Name == "" || len(t.Columns) == 0 {
			return nil, fmt.Errorf("create dataset %q: table %q has no columns", req.Name, t.Name)
		}
	}

	resp, err := c.Post(ctx, "/api/datasets/models", nil, req.model())
	if err != nil {
		return nil, fmt.Errorf("create dataset %q: %w", req.Name, err)
	}
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := resp.JSON(&created); err != nil {
		return nil, fmt.Errorf("create dataset %q: %w", req.Name, err)
	}

	d := New(c, created.ID, opts...)
	d.name = created.Name
	d.tables = req.Tables
	d.logger.Info().Str("name", created.Name).Int("tables", len(req.Tables)).Msg("Created dataset")
	return d, nil
}

// Delete removes the dataset.
func (d *Dataset) Delete(ctx context.Context) error {
	if err := objects.Delete(ctx, d.client, d.id, objects.TypeReport); err != nil {
		return err
	}
	d.client.Invalidate(ctx, "/api/datasets/"+url.PathEscape(d.id))
	return nil
}

// ToTable downloads the dataset through the cube pipeline.
func (d *Dataset) ToTable(ctx context.Context, limit int, opts ...report.Option) (*pagination.Table, error) {
	return report.NewCube(d.client, d.id, opts...).ToTable(ctx, limit)
}

var _ objects.Deletable = (*Dataset)(nil)
