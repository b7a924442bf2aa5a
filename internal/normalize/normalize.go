package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"internship-sync/tracker/internal/source"
)

// Rejection reasons. A rejected raw record is dropped with a warning; it
// never aborts a search unit.
var (
	ErrMissingFields = errors.New("listing missing required fields")
	ErrNotInternship = errors.New("listing is not an internship")
)

// Listing is the canonical shape every source's raw record is mapped into.
type Listing struct {
	Title       string
	Company     string
	Location    string
	URL         string
	Description string
	Site        string
	Remote      bool
	Posted      time.Time
}

// SearchContext carries the search-unit inputs a listing was fetched under.
type SearchContext struct {
	Term     string
	Location string
	Country  string
}

// Normalizer canonicalizes raw listings. It holds only compiled rules, so
// Normalize is a pure function of its inputs.
type Normalizer struct {
	rules     Rules
	keyword   *regexp.Regexp
	countries map[string]string
}

// New compiles the rule set into a Normalizer.
func New(rules Rules) (*Normalizer, error) {
	keyword, err := rules.compile()
	if err != nil {
		return nil, fmt.Errorf("compile keyword rules: %w", err)
	}

	countries := make(map[string]string, len(rules.Countries))
	for _, country := range rules.Countries {
		countries[strings.ToLower(strings.TrimSpace(country))] = strings.TrimSpace(country)
	}

	return &Normalizer{rules: rules, keyword: keyword, countries: countries}, nil
}

// Normalize maps a provider-native record into a Listing, or reports why the
// record is rejected. Field names differ per site, so every lookup falls
// back through the known aliases.
func (n *Normalizer) Normalize(raw source.RawListing, sc SearchContext) (Listing, error) {
	title := raw.String("title", "job_title", "name")
	company := raw.String("company", "company_name", "hiring_org")
	if title == "" && company == "" {
		return Listing{}, ErrMissingFields
	}
	if title == "" {
		title = "No title"
	}
	if company == "" {
		company = "Unknown"
	}

	desc := CleanHTML(raw.String("description", "snippet", "summary"))

	if !n.keyword.MatchString(title + " " + desc) {
		return Listing{}, ErrNotInternship
	}

	location := raw.String("location", "place", "city")
	if location == "" {
		location = sc.Location
	}

	listing := Listing{
		Title:       collapse(title),
		Company:     collapse(company),
		Location:    n.CanonicalLocation(location),
		URL:         raw.String("url", "link", "job_url"),
		Description: desc,
		Site:        raw.Site,
		Remote:      raw.Bool("remote") || raw.Bool("is_remote") || looksRemote(location, desc),
	}

	if posted := raw.String("date_posted", "posted", "date"); posted != "" {
		if ts, err := parsePostedAt(posted); err == nil {
			listing.Posted = ts
		}
	}

	return listing, nil
}

// CanonicalLocation maps a free-text location onto the supported-country
// spelling when it mentions one; anything else passes through untouched.
func (n *Normalizer) CanonicalLocation(location string) string {
	trimmed := collapse(location)
	if trimmed == "" {
		return ""
	}

	lower := strings.ToLower(trimmed)
	if canonical, ok := n.countries[lower]; ok {
		return canonical
	}
	for key, canonical := range n.countries {
		if prefix, ok := trimCountrySuffix(trimmed, key); ok {
			return prefix + ", " + canonical
		}
	}
	return trimmed
}

// trimCountrySuffix strips a trailing country name preceded by a separator,
// matching rune by rune so case folding cannot skew the cut point, and
// returns the remaining prefix.
func trimCountrySuffix(location, country string) (string, bool) {
	loc := []rune(location)
	name := []rune(country)
	if len(loc) <= len(name) {
		return "", false
	}
	cut := len(loc) - len(name)
	if loc[cut-1] != ' ' {
		return "", false
	}
	for i, r := range name {
		if unicode.ToLower(loc[cut+i]) != unicode.ToLower(r) {
			return "", false
		}
	}
	prefix := strings.TrimSpace(string(loc[:cut-1]))
	return strings.TrimSpace(strings.TrimSuffix(prefix, ",")), true
}

// CleanHTML strips markup from a description, preserving word spacing.
// Plain text passes through with whitespace collapsed.
func CleanHTML(value string) string {
	if value == "" {
		return ""
	}
	if !strings.ContainsRune(value, '<') {
		return collapse(value)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return collapse(value)
	}
	return collapse(doc.Text())
}

func collapse(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func looksRemote(location, description string) bool {
	value := strings.ToLower(location)
	if strings.Contains(value, "remote") {
		return true
	}
	// Descriptions only count when the mention is unambiguous.
	return strings.Contains(strings.ToLower(description), "fully remote")
}

func parsePostedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02T15:04:05-0700",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %s", value)
}
