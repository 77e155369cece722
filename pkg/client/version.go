package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// Server versions that change request behavior.
const (
	// VersionNoSubtotalsFlag disables subtotals when creating report instances.
	VersionNoSubtotalsFlag = "11.2.0100"
	// VersionPagedSubscriptions supports offset/limit on subscription listings.
	VersionPagedSubscriptions = "11.3.0300"
	// VersionSubscriptions introduces the subscription API.
	VersionSubscriptions = "11.2.0203"
	// VersionEvents introduces the event API.
	VersionEvents = "11.3.0100"
)

// ParseVersion parses a server build number such as "11.3.0960.00068".
// Only major, minor and build are compared; leading zeros are ignored.
func ParseVersion(raw string) (semver.Version, error) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) < 2 {
		return semver.Version{}, fmt.Errorf("%w: %q", ErrVersionUnavailable, raw)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}

	nums := make([]string, 3)
	for i := range nums {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return semver.Version{}, fmt.Errorf("%w: %q", ErrVersionUnavailable, raw)
		}
		nums[i] = strconv.FormatUint(n, 10)
	}

	v, err := semver.Parse(strings.Join(nums, "."))
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: %v", ErrVersionUnavailable, err)
	}
	return v, nil
}

// ServerVersion returns the Intelligence Server version from /api/status.
// The result is cached for the lifetime of the client.
func (c *Client) ServerVersion(ctx context.Context) (semver.Version, error) {
	c.versionMu.Lock()
	defer c.versionMu.Unlock()

	if c.version != nil {
		return *c.version, nil
	}

	resp, err := c.request(ctx, "GET", "/api/status", nil, nil, false)
	if err != nil {
		return semver.Version{}, err
	}

	var status struct {
		IServerVersion string `json:"iServerVersion"`
		WebVersion     string `json:"webVersion"`
	}
	if err := resp.JSON(&status); err != nil {
		return semver.Version{}, err
	}

	v, err := ParseVersion(status.IServerVersion)
	if err != nil {
		return semver.Version{}, err
	}

	c.version = &v
	c.logger.Debug().Str("iserver_version", status.IServerVersion).Msg("Detected server version")
	return v, nil
}

// VersionAtLeast reports whether the server is at least minVersion.
func (c *Client) VersionAtLeast(ctx context.Context, minVersion string) (bool, error) {
	v, err := c.ServerVersion(ctx)
	if err != nil {
		return false, err
	}
	want, err := ParseVersion(minVersion)
	if err != nil {
		return false, err
	}
	return v.GTE(want), nil
}

// RequireVersion returns an error wrapping ErrUnsupportedVersion when the
// server is older than minVersion. feature names the caller in the message.
func (c *Client) RequireVersion(ctx context.Context, minVersion, feature string) error {
	ok, err := c.VersionAtLeast(ctx, minVersion)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires %s or later", ErrUnsupportedVersion, feature, minVersion)
	}
	return nil
}
