package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix is the namespace of every cache key.
const KeyPrefix = "marvel"

// signingParams are stripped from query parameters; they change on every request.
var signingParams = map[string]bool{
	"ts":     true,
	"apikey": true,
	"hash":   true,
}

// CacheKey represents a unique identifier for a cached Marvel response.
type CacheKey struct {
	// Endpoint is the API path, possibly templated (e.g. "/v1/public/characters/{characterId}")
	Endpoint string

	// PathParams fill the endpoint template (e.g. {"characterId": "1011334"})
	PathParams map[string]string

	// QueryParams are the query parameters (e.g. {"offset": "20"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: marvel:endpoint:param1=val1:query1=val1
//
// Example:
//
//	marvel:v1/public/characters:limit=20:offset=40
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.PathParams) > 0 {
		pathKeys := make([]string, 0, len(k.PathParams))
		for key := range k.PathParams {
			pathKeys = append(pathKeys, key)
		}
		sort.Strings(pathKeys)

		for _, key := range pathKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.PathParams[key]))
		}
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if signingParams[key] {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
