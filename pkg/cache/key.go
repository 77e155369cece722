package cache

import (
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached REST response.
type CacheKey struct {
	// Endpoint is the REST path (e.g., "/api/v2/reports/{id}")
	Endpoint string

	// PathParams are the path parameters (e.g., {"id": "B7CA92F04B9FAE8D941C3E9B7E0CD754"})
	PathParams map[string]string

	// QueryParams are the query parameters (e.g., {"fields": "name,id"})
	QueryParams url.Values

	// ProjectID scopes project-level objects; empty for configuration objects
	ProjectID string
}

// String generates a deterministic cache key string.
// Format: mstr:endpoint:param1=val1:query1=val1:project=ID
//
// Example:
//
//	mstr:api/v2/reports/B7CA:fields=name:project=0C0D31E4
func (k CacheKey) String() string {
	parts := []string{"mstr"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	pathPairs := make([]string, 0, len(k.PathParams))
	for key, val := range k.PathParams {
		pathPairs = append(pathPairs, key+"="+val)
	}
	sort.Strings(pathPairs)
	parts = append(parts, pathPairs...)

	queryPairs := make([]string, 0, len(k.QueryParams))
	for key, vals := range k.QueryParams {
		queryPairs = append(queryPairs, key+"="+strings.Join(vals, ","))
	}
	sort.Strings(queryPairs)
	parts = append(parts, queryPairs...)

	if k.ProjectID != "" {
		parts = append(parts, "project="+k.ProjectID)
	}

	return strings.Join(parts, ":")
}
