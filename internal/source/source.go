package source

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupportedSite is returned when a configured site name has no scraper.
var ErrUnsupportedSite = errors.New("unsupported site")

// Source fetches raw listings from one job board.
type Source interface {
	Name() string
	Search(ctx context.Context, params SearchParams) ([]RawListing, error)
}

// SearchParams captures the normalized search inputs shared by all sources.
// One (Term, Location) pair corresponds to one search unit.
type SearchParams struct {
	Term             string
	Location         string
	Country          string
	Limit            int
	Hours            int
	JobType          string
	ExperienceLevels []string
	Remote           *bool
}

// RawListing is a provider-native record. Field names and presence vary per
// site; nothing outside the normalizer should assume a fixed shape.
type RawListing struct {
	Site   string
	Fields map[string]any
}

// String returns the first non-blank string value among the given keys.
func (r RawListing) String(keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Fields[key].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Bool returns the value at key coerced to a boolean. Accepts native bools
// and the usual string spellings.
func (r RawListing) Bool(key string) bool {
	switch v := r.Fields[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "yes" || s == "1"
	}
	return false
}
