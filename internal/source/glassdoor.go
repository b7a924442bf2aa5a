package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Glassdoor struct {
	client *Client
}

func NewGlassdoor(client *Client) *Glassdoor {
	return &Glassdoor{client: client}
}

func (g *Glassdoor) Name() string {
	return SiteGlassdoor
}

// Search scrapes the SEO search page, which embeds its results as JSON-LD
// JobPosting objects.
func (g *Glassdoor) Search(ctx context.Context, params SearchParams) ([]RawListing, error) {
	doc, err := fetchDocument(ctx, g.client, buildGlassdoorURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("glassdoor search: %w", err)
	}

	listings := parseJSONLDListings(doc, SiteGlassdoor)
	if params.Limit > 0 && len(listings) > params.Limit {
		listings = listings[:params.Limit]
	}
	return listings, nil
}

func buildGlassdoorURL(params SearchParams) string {
	values := url.Values{}
	values.Set("sc.keyword", params.Term)
	if params.Location != "" {
		values.Set("locKeyword", params.Location)
	}
	if params.Hours > 0 {
		days := params.Hours / 24
		if days < 1 {
			days = 1
		}
		values.Set("fromAge", fmt.Sprintf("%d", days))
	}
	return "https://www.glassdoor.com/Job/jobs.htm?" + values.Encode()
}

// parseJSONLDListings extracts JobPosting structures from any ld+json script
// blocks, deduplicating within the page by URL or title|company|location.
func parseJSONLDListings(doc *goquery.Document, site string) []RawListing {
	var listings []RawListing
	seen := map[string]struct{}{}

	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		data, err := decodeJSONLD(raw)
		if err != nil {
			return
		}

		for _, listing := range listingsFromJSONLD(data, site) {
			key := listing.String("url")
			if key == "" {
				key = strings.ToLower(listing.String("title") + "|" + listing.String("company") + "|" + listing.String("location"))
			}
			if key == "" || key == "||" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			listings = append(listings, listing)
		}
	})

	return listings
}
