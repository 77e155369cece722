package dataset

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/mstr-client/pkg/pagination"
)

// UpdatePolicy decides how uploaded rows combine with the existing data.
type UpdatePolicy string

// Update policies.
const (
	// Add inserts new, unique rows.
	Add UpdatePolicy = "ADD"
	// Update changes existing rows.
	Update UpdatePolicy = "UPDATE"
	// Upsert changes existing rows and inserts new ones.
	Upsert UpdatePolicy = "UPSERT"
	// Replace truncates the table before inserting.
	Replace UpdatePolicy = "REPLACE"
)

// ParseUpdatePolicy parses a policy name, ignoring case.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	for _, p := range []UpdatePolicy{Add, Update, Upsert, Replace} {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid update policy %q, allowed values are add, update, upsert and replace", s)
}

// publishDone is the publish status of a finished publication. Negative
// statuses are failures; anything else is still in progress.
const publishDone = 1

// ErrPublishFailed is returned when the server rejects a publication.
var ErrPublishFailed = errors.New("dataset publication failed")

type sessionTable struct {
	Name          string       `json:"name"`
	UpdatePolicy  UpdatePolicy `json:"updatePolicy"`
	ColumnHeaders []Column     `json:"columnHeaders"`
}

type uploadChunk struct {
	TableName string `json:"tableName"`
	Index     int    `json:"index"`
	Data      string `json:"data"`
}

type publishStatus struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// Update uploads rows into a table of the dataset and publishes them. The
// rows are sent in chunks inside one upload session; if any step fails the
// session is cancelled and nothing is published.
func (d *Dataset) Update(ctx context.Context, table string, policy UpdatePolicy, rows []pagination.Row) error {
	schema, err := d.tableSchema(ctx, table, rows)
	if err != nil {
		return err
	}

	sessionID, err := d.openSession(ctx, schema, policy)
	if err != nil {
		return err
	}
	logger := d.logger.With().Str("upload_session", sessionID).Str("table", table).Logger()

	start := time.Now()
	if err := d.upload(ctx, sessionID, table, rows); err != nil {
		d.cancel(ctx, sessionID)
		return err
	}
	if err := d.publish(ctx, sessionID); err != nil {
		d.cancel(ctx, sessionID)
		return err
	}
	d.client.Invalidate(ctx, "/api/v2/cubes/"+url.PathEscape(d.id))

	logger.Info().
		Str("policy", string(policy)).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("Published dataset update")
	return nil
}

// tableSchema finds the schema of a table from the model, loading the
// definition if needed, or infers it from rows for tables the model lacks.
func (d *Dataset) tableSchema(ctx context.Context, table string, rows []pagination.Row) (TableSchema, error) {
	if d.tables == nil {
		if _, err := d.Definition(ctx); err != nil {
			return TableSchema{}, err
		}
	}
	for _, t := range d.tables {
		if t.Name == table {
			return t, nil
		}
	}
	if len(rows) == 0 {
		return TableSchema{}, fmt.Errorf("dataset %s has no table %q", d.id, table)
	}
	return InferSchema(table, rows), nil
}

func (d *Dataset) sessionsPath() string {
	return "/api/datasets/" + url.PathEscape(d.id) + "/uploadSessions"
}

func (d *Dataset) sessionPath(sessionID string) string {
	return d.sessionsPath() + "/" + url.PathEscape(sessionID)
}

func (d *Dataset) openSession(ctx context.Context, schema TableSchema, policy UpdatePolicy) (string, error) {
	body := map[string]any{
		"tables": []sessionTable{{Name: schema.Name, UpdatePolicy: policy, ColumnHeaders: schema.Columns}},
	}
	resp, err := d.client.Post(ctx, d.sessionsPath(), nil, body)
	if err != nil {
		return "", fmt.Errorf("open upload session for dataset %s: %w", d.id, err)
	}
	var session struct {
		UploadSessionID string `json:"uploadSessionId"`
	}
	if err := resp.JSON(&session); err != nil {
		return "", fmt.Errorf("open upload session for dataset %s: %w", d.id, err)
	}
	if session.UploadSessionID == "" {
		return "", fmt.Errorf("open upload session for dataset %s: no session id in response", d.id)
	}
	return session.UploadSessionID, nil
}

// upload sends rows in chunks. Chunk indexes start at 1; an empty update
// still sends one empty chunk.
func (d *Dataset) upload(ctx context.Context, sessionID, table string, rows []pagination.Row) error {
	for index, start := 1, 0; ; index++ {
		end := min(start+d.chunkSize, len(rows))
		part := rows[start:end]
		if part == nil {
			part = []pagination.Row{}
		}
		data, err := json.Marshal(part)
		if err != nil {
			return fmt.Errorf("encode chunk %d of dataset %s: %w", index, d.id, err)
		}

		chunk := uploadChunk{
			TableName: table,
			Index:     index,
			Data:      base64.StdEncoding.EncodeToString(data),
		}
		if _, err := d.client.Put(ctx, d.sessionPath(sessionID), nil, chunk); err != nil {
			return fmt.Errorf("upload chunk %d of dataset %s: %w", index, d.id, err)
		}
		d.logger.Debug().Int("index", index).Int("rows", end-start).Msg("Uploaded chunk")

		start = end
		if start >= len(rows) {
			return nil
		}
	}
}

// publish starts the publication and waits until the server reports it as
// done or failed.
func (d *Dataset) publish(ctx context.Context, sessionID string) error {
	if _, err := d.client.Post(ctx, d.sessionPath(sessionID)+"/publish", nil, nil); err != nil {
		return fmt.Errorf("publish dataset %s: %w", d.id, err)
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		var status publishStatus
		if err := d.client.GetJSON(ctx, d.sessionPath(sessionID)+"/publishStatus", nil, &status); err != nil {
			return fmt.Errorf("publish dataset %s: %w", d.id, err)
		}
		switch {
		case status.Status == publishDone:
			return nil
		case status.Status < 0:
			return fmt.Errorf("%w: dataset %s status %d: %s", ErrPublishFailed, d.id, status.Status, status.Message)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish dataset %s: %w", d.id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// cancel drops an upload session. It must also run after the caller's
// context is done.
func (d *Dataset) cancel(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if _, err := d.client.Delete(ctx, d.sessionPath(sessionID), nil); err != nil {
		d.logger.Warn().Err(err).Str("upload_session", sessionID).Msg("Failed to cancel upload session")
		return
	}
	d.logger.Info().Str("upload_session", sessionID).Msg("Cancelled upload session")
}
