package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const linkedInGuestURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"

// linkedInPageSize is fixed by the guest search endpoint.
const linkedInPageSize = 25

type LinkedIn struct {
	client *Client
}

func NewLinkedIn(client *Client) *LinkedIn {
	return &LinkedIn{client: client}
}

func (l *LinkedIn) Name() string {
	return SiteLinkedIn
}

// Search pages through the guest job search endpoint, which returns HTML
// card fragments without authentication.
func (l *LinkedIn) Search(ctx context.Context, params SearchParams) ([]RawListing, error) {
	var listings []RawListing

	for start := 0; params.Limit <= 0 || len(listings) < params.Limit; start += linkedInPageSize {
		doc, err := fetchDocument(ctx, l.client, buildLinkedInURL(params, start), nil)
		if err != nil {
			if len(listings) > 0 {
				// Partial pages are still useful; deeper pages often 400.
				return listings, nil
			}
			return nil, fmt.Errorf("linkedin search: %w", err)
		}

		batch := parseLinkedInCards(doc)
		if len(batch) == 0 {
			break
		}
		listings = append(listings, batch...)
		if len(batch) < linkedInPageSize {
			break
		}
	}

	if params.Limit > 0 && len(listings) > params.Limit {
		listings = listings[:params.Limit]
	}
	return listings, nil
}

func parseLinkedInCards(doc *goquery.Document) []RawListing {
	var listings []RawListing
	doc.Find("div.base-card").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3.base-search-card__title").Text())
		company := strings.TrimSpace(s.Find("h4.base-search-card__subtitle").Text())
		location := strings.TrimSpace(s.Find("span.job-search-card__location").Text())
		posted, _ := s.Find("time").Attr("datetime")

		link, _ := s.Find("a.base-card__full-link").Attr("href")
		if link == "" {
			link, _ = s.Attr("data-entity-urn")
		}
		link = stripTrackingParams(link)

		if title == "" {
			return
		}

		listings = append(listings, RawListing{
			Site: SiteLinkedIn,
			Fields: map[string]any{
				"job_title":    title,
				"company_name": company,
				"place":        location,
				"link":         link,
				"posted":       posted,
			},
		})
	})
	return listings
}

func buildLinkedInURL(params SearchParams, start int) string {
	values := url.Values{}
	values.Set("keywords", params.Term)
	if params.Location != "" {
		values.Set("location", params.Location)
	}
	if params.Hours > 0 {
		values.Set("f_TPR", fmt.Sprintf("r%d", params.Hours*3600))
	}
	if params.JobType != "" {
		if code := linkedInJobType(params.JobType); code != "" {
			values.Set("f_JT", code)
		}
	}
	if codes := linkedInExperience(params.ExperienceLevels); codes != "" {
		values.Set("f_E", codes)
	}
	if params.Remote != nil && *params.Remote {
		values.Set("f_WT", "2")
	}
	if start > 0 {
		values.Set("start", fmt.Sprintf("%d", start))
	}
	return linkedInGuestURL + "?" + values.Encode()
}

func linkedInJobType(jobType string) string {
	switch strings.ToLower(jobType) {
	case "fulltime":
		return "F"
	case "parttime":
		return "P"
	case "contract":
		return "C"
	case "internship":
		return "I"
	}
	return ""
}

func linkedInExperience(levels []string) string {
	codes := map[string]string{
		"internship":  "1",
		"entry_level": "2",
		"associate":   "3",
		"mid_senior":  "4",
		"director":    "5",
		"executive":   "6",
	}
	var out []string
	for _, level := range levels {
		if code, ok := codes[strings.ToLower(level)]; ok {
			out = append(out, code)
		}
	}
	return strings.Join(out, ",")
}

// stripTrackingParams removes the query noise LinkedIn appends to job links
// so the URL is stable enough to dedupe on.
func stripTrackingParams(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
