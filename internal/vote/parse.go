// Package vote runs several independent stochastic judgments over one
// ambiguous prompt and reduces them to a majority decision with a
// confidence score.
package vote

import (
	"regexp"

	"github.com/dusk-indust/wavecheck/internal/model"
)

// Parse is the tagged outcome of extracting a category from one sample:
// either Parsed(category) or Unparseable(raw).
type Parse struct {
	category model.Severity
	raw      string
	ok       bool
}

// Parsed returns a successful Parse.
func Parsed(category model.Severity, raw string) Parse {
	return Parse{category: category, raw: raw, ok: true}
}

// Unparseable returns a Parse for text with no recognised category.
func Unparseable(raw string) Parse {
	return Parse{raw: raw}
}

// Category returns the extracted category and whether there was one.
func (p Parse) Category() (model.Severity, bool) {
	return p.category, p.ok
}

// Raw returns the sample text.
func (p Parse) Raw() string {
	return p.raw
}

var categoryPatterns = map[model.Severity]*regexp.Regexp{
	model.SeverityCritical: regexp.MustCompile(`(?i)\bCRITICAL\b`),
	model.SeverityHigh:     regexp.MustCompile(`(?i)\bHIGH\b`),
	model.SeverityMedium:   regexp.MustCompile(`(?i)\bMEDIUM\b`),
	model.SeverityLow:      regexp.MustCompile(`(?i)\bLOW\b`),
}

// ParseCategory scans text for each category in the given order and returns
// the first one that appears anywhere in it. categories must be listed from
// highest to lowest precedence.
func ParseCategory(text string, categories []model.Severity) Parse {
	for _, c := range categories {
		re, ok := categoryPatterns[c]
		if ok && re.MatchString(text) {
			return Parsed(c, text)
		}
	}
	return Unparseable(text)
}
