package cache

import (
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces every Redis key written by this package.
const keyPrefix = "artic"

// Key identifies a cached response.
type Key struct {
	// Endpoint is the API path, e.g. "/api/v1/artworks".
	Endpoint string

	// Query holds the query parameters, e.g. page and limit.
	Query url.Values
}

// String generates a deterministic key.
// Format: artic:endpoint:q1=v1:q2=v2 with query names sorted.
//
// Example:
//
//	artic:api/v1/artworks:limit=12:page=3
func (k Key) String() string {
	parts := []string{keyPrefix}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, name+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}
