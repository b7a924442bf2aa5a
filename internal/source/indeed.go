package source

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Indeed struct {
	client *Client
}

func NewIndeed(client *Client) *Indeed {
	return &Indeed{client: client}
}

func (i *Indeed) Name() string {
	return SiteIndeed
}

func (i *Indeed) Search(ctx context.Context, params SearchParams) ([]RawListing, error) {
	searchURL := buildIndeedURL(params)
	doc, err := fetchDocument(ctx, i.client, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("indeed search: %w", err)
	}
	return parseIndeedCards(doc, params), nil
}

func parseIndeedCards(doc *goquery.Document, params SearchParams) []RawListing {
	var listings []RawListing
	doc.Find("a.tapItem").Each(func(_ int, s *goquery.Selection) {
		if params.Limit > 0 && len(listings) >= params.Limit {
			return
		}

		title := strings.TrimSpace(s.Find("h2.jobTitle span").First().Text())
		company := strings.TrimSpace(s.Find("span.companyName").First().Text())
		location := strings.TrimSpace(s.Find("div.companyLocation").First().Text())
		snippet := strings.TrimSpace(s.Find("div.job-snippet").Text())
		posted := strings.TrimSpace(s.Find("span.date").Text())

		link, _ := s.Attr("href")
		if link != "" && !strings.HasPrefix(link, "http") {
			link = baseIndeedURL(params.Country) + link
		}

		if title == "" || link == "" {
			return
		}

		listings = append(listings, RawListing{
			Site: SiteIndeed,
			Fields: map[string]any{
				"title":    title,
				"company":  company,
				"location": location,
				"url":      link,
				"snippet":  snippet,
				"date":     posted,
			},
		})
	})
	return listings
}

func buildIndeedURL(params SearchParams) string {
	base := baseIndeedURL(params.Country)
	values := url.Values{}
	values.Set("q", params.Term)
	if params.Location != "" {
		values.Set("l", params.Location)
	}
	if params.JobType != "" {
		values.Set("jt", params.JobType)
	}
	if params.Remote != nil && *params.Remote {
		values.Set("sc", "0kf:attr(DSQF7);")
	}
	if params.Hours > 0 {
		days := int(math.Ceil(float64(params.Hours) / 24.0))
		if days < 1 {
			days = 1
		}
		values.Set("fromage", fmt.Sprintf("%d", days))
	}
	return fmt.Sprintf("%s/jobs?%s", base, values.Encode())
}

// Indeed serves country-specific hosts; the bare domain covers the US.
func baseIndeedURL(country string) string {
	code := indeedCountryCode(country)
	if code == "" {
		return "https://www.indeed.com"
	}
	return fmt.Sprintf("https://%s.indeed.com", code)
}

var indeedCountries = map[string]string{
	"morocco":        "ma",
	"france":         "fr",
	"germany":        "de",
	"spain":          "es",
	"united kingdom": "uk",
	"uk":             "uk",
	"canada":         "ca",
	"netherlands":    "nl",
	"belgium":        "be",
	"switzerland":    "ch",
}

func indeedCountryCode(country string) string {
	country = strings.TrimSpace(strings.ToLower(country))
	if country == "" || country == "usa" || country == "us" || country == "united states" {
		return ""
	}
	if code, ok := indeedCountries[country]; ok {
		return code
	}
	if len(country) == 2 {
		return country
	}
	return ""
}
