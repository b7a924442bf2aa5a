package normalize

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Rules configure the classification and location heuristics. They are
// supplied by configuration so locale variants (e.g. French "stage") can be
// added without code changes.
type Rules struct {
	// Keywords matched, word-bounded and case-insensitively, against title
	// and description to decide whether a listing is an internship.
	Keywords []string `json:"keywords"`

	// Countries is the supported-country list used to canonicalize free-text
	// locations. Unrecognized locations pass through unchanged.
	Countries []string `json:"countries"`
}

// DefaultRules returns the built-in rule set used when no rules file is
// configured.
func DefaultRules() Rules {
	return Rules{
		Keywords:  []string{"intern", "interns", "internship", "internee", "stagiaire", "stage"},
		Countries: []string{"Morocco", "France", "Germany", "Spain", "Netherlands", "Belgium", "United Kingdom", "United States", "Canada"},
	}
}

// LoadRules reads a JSON5 rules file, falling back to defaults for any
// section left empty. An empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}

	var loaded Rules
	if err := json5.Unmarshal(data, &loaded); err != nil {
		return rules, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	if len(loaded.Keywords) > 0 {
		rules.Keywords = loaded.Keywords
	}
	if len(loaded.Countries) > 0 {
		rules.Countries = loaded.Countries
	}
	return rules, nil
}

// compile turns the keyword list into a single word-bounded, case-insensitive
// pattern.
func (r Rules) compile() (*regexp.Regexp, error) {
	if len(r.Keywords) == 0 {
		return nil, fmt.Errorf("keyword rule set is empty")
	}
	quoted := make([]string, 0, len(r.Keywords))
	for _, kw := range r.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("keyword rule set is empty")
	}
	return regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}
