package source

import (
	"encoding/json"
	"fmt"
	"strings"
)

func decodeJSONLD(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, " ", "")

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func listingsFromJSONLD(data any, site string) []RawListing {
	var listings []RawListing

	switch value := data.(type) {
	case []any:
		for _, item := range value {
			listings = append(listings, listingsFromJSONLD(item, site)...)
		}
	case map[string]any:
		if typ := strings.ToLower(stringValue(value["@type"], value["type"])); typ != "" {
			switch typ {
			case "jobposting":
				listings = append(listings, listingFromJobPosting(value, site))
				return listings
			case "itemlist":
				listings = append(listings, listingsFromItemList(value, site)...)
			}
		}
		if graph, ok := value["@graph"]; ok {
			listings = append(listings, listingsFromJSONLD(graph, site)...)
		}
		if main, ok := value["mainEntity"]; ok {
			listings = append(listings, listingsFromJSONLD(main, site)...)
		}
	}

	return listings
}

func listingsFromItemList(value map[string]any, site string) []RawListing {
	items, ok := value["itemListElement"]
	if !ok {
		return nil
	}

	var listings []RawListing
	switch list := items.(type) {
	case []any:
		for _, item := range list {
			listings = append(listings, listingsFromJSONLD(item, site)...)
		}
	case map[string]any:
		listings = append(listings, listingsFromJSONLD(list, site)...)
	}
	return listings
}

func listingFromJobPosting(value map[string]any, site string) RawListing {
	return RawListing{
		Site: site,
		Fields: map[string]any{
			"title":       stringValue(value["title"], value["name"]),
			"company":     stringValue(mapValue(value["hiringOrganization"], "name")),
			"url":         stringValue(value["url"], value["@id"]),
			"description": stringValue(value["description"]),
			"date_posted": stringValue(value["datePosted"]),
			"location":    locationFromJSONLD(value["jobLocation"]),
			"remote":      strings.EqualFold(stringValue(value["jobLocationType"]), "TELECOMMUTE"),
		},
	}
}

func locationFromJSONLD(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case []any:
		var parts []string
		for _, item := range v {
			loc := locationFromJSONLD(item)
			if loc != "" {
				parts = append(parts, loc)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		address := v["address"]
		if addressMap, ok := address.(map[string]any); ok {
			return joinAddress(addressMap)
		}
		return joinAddress(v)
	case string:
		return v
	}

	return ""
}

func joinAddress(value map[string]any) string {
	parts := []string{
		stringValue(value["addressLocality"]),
		stringValue(value["addressRegion"]),
		stringValue(value["addressCountry"]),
	}
	var cleaned []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, ", ")
}

func stringValue(values ...any) string {
	for _, value := range values {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
		case json.Number:
			return v.String()
		case map[string]any:
			if name := stringValue(v["name"]); name != "" {
				return name
			}
		}
	}
	return ""
}

func mapValue(value any, key string) any {
	if value == nil {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}
