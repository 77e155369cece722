package objects

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/rs/zerolog/log"
)

// Path returns the /api/objects path of an object.
func Path(id string) string {
	return "/api/objects/" + url.PathEscape(id)
}

func typeQuery(typ ObjectType) url.Values {
	return url.Values{"type": {strconv.Itoa(int(typ))}}
}

// GetInfo returns the metadata of an object. Responses are served from the
// definition cache when one is configured.
func GetInfo(ctx context.Context, c *client.Client, id string, typ ObjectType) (*Info, error) {
	resp, err := c.GetCached(ctx, Path(id), typeQuery(typ))
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", typ, id, err)
	}

	var info Info
	if err := resp.JSON(&info); err != nil {
		return nil, fmt.Errorf("get %s %s: %w", typ, id, err)
	}
	return &info, nil
}

// Delete removes an object from the metadata.
func Delete(ctx context.Context, c *client.Client, id string, typ ObjectType) error {
	if _, err := c.Delete(ctx, Path(id), typeQuery(typ)); err != nil {
		return fmt.Errorf("delete %s %s: %w", typ, id, err)
	}
	c.Invalidate(ctx, Path(id))

	log.Info().
		Str("object_id", id).
		Str("object_type", typ.String()).
		Msg("Deleted object")
	return nil
}

// Alter updates the properties of an object and returns its new metadata.
func Alter(ctx context.Context, c *client.Client, id string, typ ObjectType, changes Changes) (*Info, error) {
	if changes.IsEmpty() {
		return nil, fmt.Errorf("alter %s %s: no changes", typ, id)
	}

	resp, err := c.Put(ctx, Path(id), typeQuery(typ), changes)
	if err != nil {
		return nil, fmt.Errorf("alter %s %s: %w", typ, id, err)
	}
	c.Invalidate(ctx, Path(id))

	var info Info
	if err := resp.JSON(&info); err != nil {
		return nil, fmt.Errorf("alter %s %s: %w", typ, id, err)
	}
	return &info, nil
}

// Certify sets the certification status of a report or document.
func Certify(ctx context.Context, c *client.Client, id string, typ ObjectType, certified bool) error {
	query := typeQuery(typ)
	query.Set("certify", strconv.FormatBool(certified))

	if _, err := c.Put(ctx, Path(id)+"/certify", query, nil); err != nil {
		return fmt.Errorf("certify %s %s: %w", typ, id, err)
	}
	c.Invalidate(ctx, Path(id))

	log.Info().
		Str("object_id", id).
		Bool("certified", certified).
		Msg("Changed certification")
	return nil
}
