// Package filter decides whether a block of extracted PDF text is
// "index-like": tables of contents, circular listings and other numeric
// material that drowns out prose when it lands in a retrieval context.
package filter

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultMaxDigitRatio is the digit share above which text is treated as
// an index or code listing.
const DefaultMaxDigitRatio = 0.25

// DefaultPatterns match lines that open with a regulatory circular or
// notification reference, the shape of a master-circular index page.
var DefaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*RBI/\d{4}-\d{2,4}/\d+`),
	regexp.MustCompile(`(?m)^\s*(DBR|DOR|DNBR|DNBS|DPSS|DBOD|DBS|FED|FIDD|CO\.DPSS|IDMD)(\.[A-Za-z]+)*\.?\s*(No\.?\s*)?[A-Za-z.]*\s?\d+/[\d.]+/\d{4}`),
	regexp.MustCompile(`(?mi)^\s*(master\s+)?circular\s+no\.?\s*[\w./-]*\d`),
	regexp.MustCompile(`(?mi)^\s*notification\s+no\.?\s*[\w./-]*\d`),
}

// Filter flags index-like text.
type Filter struct {
	MaxDigitRatio float64
	Patterns      []*regexp.Regexp
}

// Default is the filter applied at page and chunk level.
var Default = &Filter{
	MaxDigitRatio: DefaultMaxDigitRatio,
	Patterns:      DefaultPatterns,
}

// IsIndexLike reports whether text should be kept out of the index.
func (f *Filter) IsIndexLike(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if DigitRatio(text) > f.MaxDigitRatio {
		return true
	}
	for _, p := range f.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsIndexLike applies the Default filter.
func IsIndexLike(text string) bool {
	return Default.IsIndexLike(text)
}

// DigitRatio returns the fraction of runes in text that are decimal digits.
func DigitRatio(text string) float64 {
	var total, digits int
	for _, r := range text {
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(digits) / float64(total)
}
