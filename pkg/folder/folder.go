// Package folder manages metadata folders and lists their contents.
package folder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/rs/zerolog/log"
)

const basePath = "/api/folders"

// ChunkSize is the page size of folder listings.
const ChunkSize = 1000

// Predefined identifies a system folder such as the public objects root.
type Predefined int

// Predefined folders.
const (
	PublicObjects        Predefined = 1
	PublicConsolidations Predefined = 2
	PublicCustomGroups   Predefined = 3
	PublicFilters        Predefined = 4
	PublicMetrics        Predefined = 5
	PublicPrompts        Predefined = 6
	PublicReports        Predefined = 7
	PublicSearches       Predefined = 8
	PublicTemplates      Predefined = 9
)

// Folder is a metadata folder.
type Folder struct {
	objects.Info

	client *client.Client
}

func path(id string) string {
	return basePath + "/" + url.PathEscape(id)
}

// Get returns the folder with the given ID.
func Get(ctx context.Context, c *client.Client, id string) (*Folder, error) {
	info, err := objects.GetInfo(ctx, c, id, objects.TypeFolder)
	if err != nil {
		return nil, err
	}
	if info.Type != objects.TypeFolder {
		return nil, fmt.Errorf("object %s is a %s, not a folder", id, info.Type)
	}
	return &Folder{Info: *info, client: c}, nil
}

// Create creates a folder below parentID.
func Create(ctx context.Context, c *client.Client, name, parentID, description string) (*Folder, error) {
	if name == "" || parentID == "" {
		return nil, fmt.Errorf("create folder: name and parent are required")
	}

	body := map[string]string{"name": name, "parent": parentID, "description": description}
	resp, err := c.Post(ctx, basePath, nil, body)
	if err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	f := &Folder{client: c}
	if err := resp.JSON(&f.Info); err != nil {
		return nil, fmt.Errorf("create folder %q: %w", name, err)
	}
	c.Invalidate(ctx, path(parentID))

	log.Info().Str("folder_id", f.ID).Str("name", f.Name).Str("parent_id", parentID).Msg("Created folder")
	return f, nil
}

// ListOptions narrows a folder listing.
type ListOptions struct {
	Limit    int
	Filter   *filter.Filter
	Parallel bool
}

// List returns the root folders of the current project.
func List(ctx context.Context, c *client.Client, opts ListOptions) ([]objects.Info, error) {
	return fetch(ctx, c, basePath, opts)
}

// ListPredefined returns the contents of a predefined folder.
func ListPredefined(ctx context.Context, c *client.Client, folder Predefined, opts ListOptions) ([]objects.Info, error) {
	return fetch(ctx, c, basePath+"/preDefined/"+strconv.Itoa(int(folder)), opts)
}

// Contents returns the objects stored in the folder that match f. A nil
// filter returns all of them.
func (f *Folder) Contents(ctx context.Context, match *filter.Filter) ([]objects.Info, error) {
	return fetch(ctx, f.client, path(f.ID), ListOptions{Filter: match})
}

func fetch(ctx context.Context, c *client.Client, endpoint string, opts ListOptions) ([]objects.Info, error) {
	rows, err := objects.Fetch(ctx, c, objects.FetchRequest{
		Path:      endpoint,
		Limit:     opts.Limit,
		ChunkSize: ChunkSize,
		Filter:    opts.Filter,
		Parallel:  opts.Parallel,
	})
	if err != nil {
		return nil, err
	}
	return objects.Decode[objects.Info](rows)
}

// Alter changes the properties of the folder.
func (f *Folder) Alter(ctx context.Context, changes objects.Changes) error {
	info, err := objects.Alter(ctx, f.client, f.ID, objects.TypeFolder, changes)
	if err != nil {
		return err
	}
	f.Info = *info
	return nil
}

// Delete removes the folder and everything in it.
func (f *Folder) Delete(ctx context.Context) error {
	return objects.Delete(ctx, f.client, f.ID, objects.TypeFolder)
}

var (
	_ objects.Deletable = (*Folder)(nil)
	_ objects.Alterable = (*Folder)(nil)
)
