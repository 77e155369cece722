// Package subscription lists, executes and deletes the subscriptions of a
// project.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/Sternrassler/mstr-client/pkg/client"
	"github.com/Sternrassler/mstr-client/pkg/filter"
	"github.com/Sternrassler/mstr-client/pkg/objects"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const basePath = "/api/subscriptions"

// Listing chunk sizes. Servers before 11.3.0300 ignore paging, so the whole
// listing is requested at once.
const (
	ChunkSize       = 1000
	LegacyChunkSize = 1_000_000
)

// DeliveryMode is how a subscription delivers its contents.
type DeliveryMode string

// Delivery modes.
const (
	DeliveryEmail        DeliveryMode = "EMAIL"
	DeliveryFile         DeliveryMode = "FILE"
	DeliveryPrinter      DeliveryMode = "PRINTER"
	DeliveryHistoryList  DeliveryMode = "HISTORY_LIST"
	DeliveryCache        DeliveryMode = "CACHE"
	DeliveryMobile       DeliveryMode = "MOBILE"
	DeliveryFTP          DeliveryMode = "FTP"
	DeliverySnapshot     DeliveryMode = "SNAPSHOT"
	DeliveryPersonalView DeliveryMode = "PERSONAL_VIEW"
	DeliverySharedLink   DeliveryMode = "SHARED_LINK"
)

var executable = []DeliveryMode{DeliveryEmail, DeliveryFile, DeliveryHistoryList, DeliveryFTP}

// Executable reports whether subscriptions with this mode can be sent on
// demand.
func (m DeliveryMode) Executable() bool {
	return slices.Contains(executable, m)
}

// ErrNotExecutable is returned by Execute for delivery modes that cannot be
// sent on demand.
var ErrNotExecutable = errors.New("delivery mode cannot be executed")

// Delivery holds the delivery settings of a subscription.
type Delivery struct {
	Mode       DeliveryMode `json:"mode"`
	Expiration string       `json:"expiration,omitempty"`
}

// Subscription is a scheduled delivery of reports or documents.
type Subscription struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Editable     bool                `json:"editable,omitempty"`
	DateCreated  string              `json:"dateCreated,omitempty"`
	DateModified string              `json:"dateModified,omitempty"`
	Owner        *objects.Owner      `json:"owner,omitempty"`
	Delivery     Delivery            `json:"delivery"`
	Contents     []objects.ObjectRef `json:"contents,omitempty"`
}

// Manager manages the subscriptions of one project.
type Manager struct {
	client    *client.Client
	projectID string
	logger    zerolog.Logger
}

// NewManager returns a manager for projectID, or for the client's project
// when projectID is empty.
func NewManager(c *client.Client, projectID string) (*Manager, error) {
	if projectID == "" {
		projectID = c.ProjectID()
	}
	if projectID == "" {
		return nil, fmt.Errorf("subscription manager: project id is required")
	}
	return &Manager{
		client:    c,
		projectID: projectID,
		logger:    log.With().Str("project_id", projectID).Logger(),
	}, nil
}

// ProjectID returns the project the manager works on.
func (m *Manager) ProjectID() string { return m.projectID }

func (m *Manager) ctx(ctx context.Context) context.Context {
	return client.WithProject(ctx, m.projectID)
}

func path(id string) string {
	return basePath + "/" + url.PathEscape(id)
}

// ListOptions narrows a subscription listing.
type ListOptions struct {
	Limit    int
	Filter   *filter.Filter
	Parallel bool
}

// List returns the subscriptions of the project.
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]Subscription, error) {
	ctx = m.ctx(ctx)
	if err := m.client.RequireVersion(ctx, client.VersionSubscriptions, "listing subscriptions"); err != nil {
		return nil, err
	}

	chunk := LegacyChunkSize
	paged, err := m.client.VersionAtLeast(ctx, client.VersionPagedSubscriptions)
	if err != nil {
		return nil, err
	}
	if paged {
		chunk = ChunkSize
	}

	rows, err := objects.Fetch(ctx, m.client, objects.FetchRequest{
		Path:      basePath,
		UnpackKey: "subscriptions",
		Limit:     opts.Limit,
		ChunkSize: chunk,
		Filter:    opts.Filter,
		Parallel:  opts.Parallel,
	})
	if err != nil {
		return nil, err
	}
	return objects.Decode[Subscription](rows)
}

// Get returns the subscription with the given ID.
func (m *Manager) Get(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := m.client.GetJSON(m.ctx(ctx), path(id), nil, &sub); err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return &sub, nil
}

// ConfirmFunc is asked before subscriptions are deleted. Returning false
// aborts the deletion.
type ConfirmFunc func(subs []Subscription) bool

// Delete removes subscriptions and reports whether all of them were deleted.
// Unless force is set, confirm is asked first with the resolved
// subscriptions; a nil confirm declines. Individual failures are logged and
// do not stop the remaining deletions.
func (m *Manager) Delete(ctx context.Context, ids []string, force bool, confirm ConfirmFunc) (bool, error) {
	if len(ids) == 0 {
		m.logger.Info().Msg("No subscriptions passed")
		return true, nil
	}
	ctx = m.ctx(ctx)

	if !force {
		subs, err := m.resolve(ctx, ids)
		if err != nil {
			return false, err
		}
		if confirm == nil || !confirm(subs) {
			m.logger.Info().Int("count", len(ids)).Msg("Deletion declined")
			return false, nil
		}
	}

	succeeded := 0
	for _, id := range ids {
		if _, err := m.client.Delete(ctx, path(id), nil); err != nil {
			m.logger.Warn().Err(err).Str("subscription_id", id).Msg("Subscription could not be deleted")
			continue
		}
		succeeded++
		m.logger.Info().Str("subscription_id", id).Msg("Deleted subscription")
	}
	return succeeded == len(ids), nil
}

// Execute sends subscriptions immediately. Subscriptions whose delivery mode
// cannot be executed are skipped and reported in the returned error together
// with any failed sends.
func (m *Manager) Execute(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		m.logger.Info().Msg("No subscriptions passed")
		return nil
	}
	ctx = m.ctx(ctx)

	subs, err := m.resolve(ctx, ids)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		if !sub.Delivery.Mode.Executable() {
			errs = append(errs, fmt.Errorf("subscription %q (%s): %w: %s", sub.Name, sub.ID, ErrNotExecutable, sub.Delivery.Mode))
			continue
		}
		if _, err := m.client.Post(ctx, path(sub.ID)+"/send", nil, nil); err != nil {
			errs = append(errs, fmt.Errorf("execute subscription %q (%s): %w", sub.Name, sub.ID, err))
			continue
		}
		m.logger.Info().
			Str("subscription_id", sub.ID).
			Str("delivery_mode", string(sub.Delivery.Mode)).
			Msg("Executed subscription")
	}
	return errors.Join(errs...)
}

func (m *Manager) resolve(ctx context.Context, ids []string) ([]Subscription, error) {
	subs := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		sub, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}
