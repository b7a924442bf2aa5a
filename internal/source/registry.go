package source

import (
	"fmt"
	"strings"
)

const (
	SiteLinkedIn  = "linkedin"
	SiteIndeed    = "indeed"
	SiteGlassdoor = "glassdoor"
)

// Registry maps configured site names to scrapers sharing one HTTP client.
// Site names must already be normalized; an unknown name is a configuration
// error surfaced before any fetch.
func Registry(client *Client, sites []string) (map[string]Source, error) {
	all := map[string]Source{
		SiteLinkedIn:  NewLinkedIn(client),
		SiteIndeed:    NewIndeed(client),
		SiteGlassdoor: NewGlassdoor(client),
	}

	selected := make(map[string]Source, len(sites))
	for _, site := range NormalizeSites(sites) {
		src, ok := all[site]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSite, site)
		}
		selected[site] = src
	}
	return selected, nil
}

// NormalizeSites lowercases, trims, and drops empty site names.
func NormalizeSites(sites []string) []string {
	out := make([]string, 0, len(sites))
	for _, site := range sites {
		site = strings.ToLower(strings.TrimSpace(site))
		if site == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(site, "www."))
	}
	return out
}
