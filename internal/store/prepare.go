package store

import (
	"strings"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
)

// ArtistCredit links an artist to an exhibition.
type ArtistCredit struct {
	DisplayName    string
	NormalizedName string
	Role           ArtistRole
}

// Prepared is an exhibition ready for insertion.
type Prepared struct {
	Title      string
	TitleKey   string
	URL        string
	Summary    string
	Dates      normalize.DateRange
	Artists    []ArtistCredit
	SearchBody string
}

// MainArtist returns the display name of the main credit, if any.
func (p Prepared) MainArtist() string {
	for _, a := range p.Artists {
		if a.Role == RoleMain {
			return a.DisplayName
		}
	}
	return ""
}

// OtherArtists returns the featured credits in order.
func (p Prepared) OtherArtists() []string {
	var out []string
	for _, a := range p.Artists {
		if a.Role == RoleFeatured {
			out = append(out, a.DisplayName)
		}
	}
	return out
}

// Prepare resolves dates, artists and identity keys for a save. Records
// without a title are dropped, and records sharing (title key, start date)
// keep the first occurrence, matching the unique constraint on storage.
func Prepare(exhibitions []crawler.Exhibition) []Prepared {
	out := make([]Prepared, 0, len(exhibitions))
	seen := make(map[string]struct{}, len(exhibitions))
	for _, ex := range exhibitions {
		title := normalize.CleanText(ex.Title)
		if title == "" {
			continue
		}
		p := Prepared{
			Title:    title,
			TitleKey: TitleKey(title),
			URL:      strings.TrimSpace(ex.URL),
			Summary:  normalize.CleanText(ex.Summary),
			Dates:    ResolveDates(ex.StartDate, ex.EndDate),
			Artists:  credits(ex.MainArtist, ex.OtherArtists),
		}
		identity := p.TitleKey + "\x00" + p.Dates.StartISO
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		p.SearchBody = searchBody(p)
		out = append(out, p)
	}
	return out
}

// TitleKey is the identity key of a title. Titles made only of punctuation
// fall back to their lowercased text so they still get a stable key.
func TitleKey(title string) string {
	if key := normalize.NormalizeKey(title); key != "" {
		return key
	}
	return strings.ToLower(normalize.CleanText(title))
}

// ResolveDates parses the raw start and end text. When both are present
// they are parsed together so a bare "27 June" can borrow the year of the
// end. Raw text is kept even when nothing parses.
func ResolveDates(startRaw, endRaw string) normalize.DateRange {
	start, end := normalize.CleanText(startRaw), normalize.CleanText(endRaw)
	switch {
	case start != "" && end != "":
		r := normalize.ParseDateRange(start + " - " + end)
		if r.StartISO == "" {
			r.StartISO, _ = normalize.ParseDate(start)
		}
		if r.EndISO == "" {
			r.EndISO, _ = normalize.ParseDate(end)
		}
		r.StartRaw, r.EndRaw = start, end
		return r
	case start != "":
		r := normalize.ParseDateRange(start)
		if r.StartRaw == "" && r.EndRaw == "" {
			r.StartRaw = start
		}
		return r
	case end != "":
		r := normalize.ParseDateRange(end)
		iso := r.EndISO
		if iso == "" {
			iso = r.StartISO
		}
		return normalize.DateRange{EndISO: iso, EndRaw: end}
	default:
		return normalize.DateRange{}
	}
}

func credits(main string, others []string) []ArtistCredit {
	var out []ArtistCredit
	mainKey := ""
	if cleaned := normalize.CleanArtistList([]string{main}); len(cleaned) == 1 {
		mainKey = normalize.NormalizeName(cleaned[0])
		out = append(out, ArtistCredit{DisplayName: cleaned[0], NormalizedName: mainKey, Role: RoleMain})
	}
	for _, name := range normalize.CleanArtistList(others) {
		key := normalize.NormalizeName(name)
		if key == mainKey {
			continue
		}
		out = append(out, ArtistCredit{DisplayName: name, NormalizedName: key, Role: RoleFeatured})
	}
	return out
}

func searchBody(p Prepared) string {
	parts := []string{p.Title}
	if p.Summary != "" {
		parts = append(parts, p.Summary)
	}
	for _, a := range p.Artists {
		parts = append(parts, a.DisplayName)
	}
	return strings.Join(parts, " ")
}

// JoinArtists renders the main artist followed by the others, the form used
// in the exported snapshot.
func JoinArtists(main string, others []string) string {
	names := make([]string, 0, len(others)+1)
	if main != "" {
		names = append(names, main)
	}
	names = append(names, others...)
	return strings.Join(names, ", ")
}
