// Package normalize canonicalizes bibliographic records into stable identity
// keys used for duplicate reconciliation.
//
// A strong key is derived from the DOI and identifies a paper with near
// certainty. A weak key is derived from the normalized title and publication
// year; matches on it are probabilistic. Both derivations are total: missing
// fields simply yield absent or partial keys, never errors.
package normalize

import (
	"strings"
	"unicode"

	"github.com/helixir/screening-service/internal/domain"
)

// doiPrefixes are label and URL prefixes commonly found in exported DOI fields.
var doiPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi:",
}

// StrongKey canonicalizes a DOI into a strong identity key: prefixes stripped,
// case folded, surrounding punctuation removed. Returns "" when no DOI is
// available.
func StrongKey(doi string) string {
	s := strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ',' || r == ';' || r == '"' || r == '\''
	})
	return s
}

// WeakKey derives a fuzzy identity key from title and year: the title is
// lower-cased with all non-alphanumerics removed, then concatenated with the
// year when present. Returns "" when the title is empty after normalization.
func WeakKey(title, year string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	if y := strings.TrimSpace(year); y != "" {
		b.WriteByte(':')
		b.WriteString(y)
	}
	return b.String()
}

// Keys derives both identity keys from a raw record. It never fails; records
// with neither a DOI nor a title yield two empty keys and are routed to
// manual reconciliation by the caller.
func Keys(rec domain.RawRecord) (strong, weak string) {
	return StrongKey(rec.DOI()), WeakKey(rec.Title(), rec.Year())
}
