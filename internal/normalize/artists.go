package normalize

import "regexp"

var (
	nonPersonPattern = regexp.MustCompile(`(?i)\b(?:prize|prizes|award|awards|portrait|portraits|exhibition|exhibitions|gallery|galleries|museum|collection|foundation|biennale|biennial|curated|various)\b`)
	trailingParen    = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
)

// CleanArtistName strips trailing parenthetical notes such as life dates or
// nationality and collapses whitespace. It returns "" for strings that name
// an award, venue or other non-person.
func CleanArtistName(name string) string {
	s := CleanText(name)
	for {
		stripped := trailingParen.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = CleanText(stripped)
	}
	s = trimAffixes(s)
	if s == "" || nonPersonPattern.MatchString(s) {
		return ""
	}
	return s
}

// CleanArtistList cleans each name and drops empties and non-person entries,
// deduplicating by NormalizeName while keeping the first display form.
func CleanArtistList(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := CleanArtistName(raw)
		if name == "" {
			continue
		}
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}

func trimAffixes(s string) string {
	for len(s) > 0 {
		switch s[len(s)-1] {
		case ',', ';', ':', '.', '-':
			s = CleanText(s[:len(s)-1])
			continue
		}
		break
	}
	return s
}
