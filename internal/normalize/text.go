package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanText collapses runs of whitespace into single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// NormalizeKey returns the identity key for a title: NFKD decomposition,
// combining marks dropped, case folded, everything outside letters, digits,
// underscore, whitespace and hyphen removed, whitespace collapsed.
func NormalizeKey(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	folded := cases.Fold().String(stripMarks(text))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return CleanText(b.String())
}

// NormalizeName returns the identity key for a person. Hyphens count as
// word breaks so "Jean-Michel" and "Jean Michel" resolve to one artist.
func NormalizeName(name string) string {
	return CleanText(strings.ReplaceAll(NormalizeKey(name), "-", " "))
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
