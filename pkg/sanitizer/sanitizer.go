package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func stripControl(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

func NormalizeAddress(address string) string {
	return TrimAndNormalize(address)
}

// NormalizeTimeLabel collapses whitespace but preserves case; time labels are
// opaque identifiers and "09:00-10:00" must stay distinct from nothing else
// but itself.
func NormalizeTimeLabel(label string) string {
	return TrimAndNormalize(label)
}

// NormalizeSearchQuery prepares free-text address search input.
func NormalizeSearchQuery(query string) string {
	p := Pipeline{
		stripControl,
		TrimAndNormalize,
	}
	return p.Apply(query)
}
