// Package event manages schedule events. Triggering an event runs every
// subscription scheduled on it.
package event

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/rs/zerolog/log"
)

const basePath = "/api/events"

// ErrNotFound is returned by GetByName when no event has the name.
var ErrNotFound = errors.New("event not found")

// Event is a schedule event.
type Event struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ACG         int    `json:"acg,omitempty"`

	client *client.Client
}

func path(id string) string {
	return basePath + "/" + url.PathEscape(id)
}

// ListOptions narrows an event listing.
type ListOptions struct {
	// Name keeps only events with exactly this name.
	Name   string
	Limit  int
	Filter *filter.Filter
}

// List returns the events of the server.
func List(ctx context.Context, c *client.Client, opts ListOptions) ([]*Event, error) {
	if err := c.RequireVersion(ctx, client.VersionEvents, "listing events"); err != nil {
		return nil, err
	}

	f := opts.Filter
	if opts.Name != "" {
		if f != nil {
			return nil, fmt.Errorf("list events: name and filter are exclusive")
		}
		f = filter.Equals(map[string]any{"name": opts.Name})
	}

	rows, err := objects.Fetch(ctx, c, objects.FetchRequest{
		Path:      basePath,
		UnpackKey: "events",
		Limit:     opts.Limit,
		Filter:    f,
	})
	if err != nil {
		return nil, err
	}
	events, err := objects.Decode[*Event](rows)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		e.client = c
	}
	return events, nil
}

// Get returns the event with the given ID.
func Get(ctx context.Context, c *client.Client, id string) (*Event, error) {
	e := &Event{client: c}
	if err := c.GetJSON(ctx, path(id), nil, e); err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// GetByName returns the first event with the given name.
func GetByName(ctx context.Context, c *client.Client, name string) (*Event, error) {
	events, err := List(ctx, c, ListOptions{Name: name})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return events[0], nil
}

// Create creates an event.
func Create(ctx context.Context, c *client.Client, name, description string) (*Event, error) {
	if name == "" {
		return nil, fmt.Errorf("create event: name is required")
	}

	resp, err := c.Post(ctx, basePath, nil, map[string]string{"name": name, "description": description})
	if err != nil {
		return nil, fmt.Errorf("create event %q: %w", name, err)
	}
	e := &Event{client: c}
	if err := resp.JSON(e); err != nil {
		return nil, fmt.Errorf("create event %q: %w", name, err)
	}

	log.Info().Str("event_id", e.ID).Str("name", e.Name).Msg("Created event")
	return e, nil
}

// Ref returns the object reference of the event.
func (e *Event) Ref() objects.ObjectRef {
	return objects.ObjectRef{ID: e.ID, Name: e.Name, Type: objects.TypeScheduleEvent}
}

// Alter changes the name or description. Other changes are rejected.
func (e *Event) Alter(ctx context.Context, changes objects.Changes) error {
	if changes.Hidden != nil || changes.FolderID != nil {
		return fmt.Errorf("alter event %s: only name and description can change", e.ID)
	}
	if changes.IsEmpty() {
		return fmt.Errorf("alter event %s: no changes", e.ID)
	}

	body := map[string]string{"name": e.Name, "description": e.Description}
	if changes.Name != nil {
		body["name"] = *changes.Name
	}
	if changes.Description != nil {
		body["description"] = *changes.Description
	}
	if _, err := e.client.Put(ctx, path(e.ID), nil, body); err != nil {
		return fmt.Errorf("alter event %s: %w", e.ID, err)
	}

	e.Name = body["name"]
	e.Description = body["description"]
	log.Info().Str("event_id", e.ID).Str("name", e.Name).Msg("Updated event")
	return nil
}

// Delete removes the event.
func (e *Event) Delete(ctx context.Context) error {
	if _, err := e.client.Delete(ctx, path(e.ID), nil); err != nil {
		return fmt.Errorf("delete event %s: %w", e.ID, err)
	}
	log.Info().Str("event_id", e.ID).Str("name", e.Name).Msg("Deleted event")
	return nil
}

// Trigger fires the event.
func (e *Event) Trigger(ctx context.Context) error {
	if _, err := e.client.Post(ctx, path(e.ID)+"/trigger", nil, nil); err != nil {
		return fmt.Errorf("trigger event %s: %w", e.ID, err)
	}
	log.Info().Str("event_id", e.ID).Str("name", e.Name).Msg("Triggered event")
	return nil
}

var (
	_ objects.Deletable = (*Event)(nil)
	_ objects.Alterable = (*Event)(nil)
)
