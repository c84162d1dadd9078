package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

const exhibitionColumns = `
	e.id, e.title, e.title_key, s.name, c.name, co.name,
	COALESCE(e.start_date_iso, ''), COALESCE(e.end_date_iso, ''),
	COALESCE(e.start_date_raw, ''), COALESCE(e.end_date_raw, ''),
	COALESCE(e.summary, ''), COALESCE(e.url, ''), e.crawled_at,
	COALESCE((
		SELECT a.display_name FROM exhibition_artists ea
		JOIN artists a ON a.id = ea.artist_id
		WHERE ea.exhibition_id = e.id AND ea.role = 'main'
		LIMIT 1
	), ''),
	COALESCE((
		SELECT array_agg(a.display_name ORDER BY ea.position) FROM exhibition_artists ea
		JOIN artists a ON a.id = ea.artist_id
		WHERE ea.exhibition_id = e.id AND ea.role = 'featured'
	), ARRAY[]::text[])
FROM exhibitions e
JOIN sites s ON s.id = e.site_id
JOIN cities c ON c.id = s.city_id
JOIN countries co ON co.id = c.country_id`

const exhibitionOrder = `
ORDER BY e.start_date_iso ASC NULLS LAST, c.name, s.name, e.title`

// Exhibitions returns exhibitions matching filter.
func (s *ExhibitionStore) Exhibitions(ctx context.Context, filter store.ExhibitionFilter) ([]store.Exhibition, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		add("lower(c.name) = lower($%d)", city)
	}
	if country := strings.TrimSpace(filter.Country); country != "" {
		add("lower(co.name) = lower($%d)", country)
	}
	if artist := normalize.NormalizeName(filter.Artist); artist != "" {
		add(`EXISTS (
	SELECT 1 FROM exhibition_artists ea
	JOIN artists a ON a.id = ea.artist_id
	WHERE ea.exhibition_id = e.id AND a.normalized_name LIKE '%%' || $%d || '%%' ESCAPE '\'
)`, escapeLike(artist))
	}
	if filter.CurrentOnly {
		add("(e.end_date_iso IS NULL OR e.end_date_iso >= $%d)", isoDay(filter.Today))
	}

	query := `SELECT` + exhibitionColumns
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += exhibitionOrder

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exhibitions: %w", err)
	}
	return collectExhibitions(rows)
}

// SearchText ranks exhibitions whose searchable text matches every word of
// query.
func (s *ExhibitionStore) SearchText(ctx context.Context, query string, limit int) ([]store.Exhibition, error) {
	q := normalize.NormalizeKey(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT`+exhibitionColumns+`
JOIN exhibition_search es ON es.exhibition_id = e.id
WHERE es.document @@ plainto_tsquery('simple', $1)
ORDER BY ts_rank(es.document, plainto_tsquery('simple', $1)) DESC, e.id
LIMIT $2`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search exhibitions: %w", err)
	}
	return collectExhibitions(rows)
}

// CitiesRanked counts current exhibitions per city, busiest first.
func (s *ExhibitionStore) CitiesRanked(ctx context.Context, today time.Time) ([]store.CityRank, error) {
	rows, err := s.pool.Query(ctx, `
SELECT c.name, co.name, COUNT(*), COUNT(DISTINCT s.id)
FROM exhibitions e
JOIN sites s ON s.id = e.site_id
JOIN cities c ON c.id = s.city_id
JOIN countries co ON co.id = c.country_id
WHERE e.end_date_iso IS NULL OR e.end_date_iso >= $1
GROUP BY c.name, co.name
ORDER BY COUNT(*) DESC, c.name`, isoDay(today))
	if err != nil {
		return nil, fmt.Errorf("query city ranking: %w", err)
	}
	defer rows.Close()
	var out []store.CityRank
	for rows.Next() {
		var (
			rank               store.CityRank
			exhibitions, sites int64
		)
		if err := rows.Scan(&rank.City, &rank.Country, &exhibitions, &sites); err != nil {
			return nil, fmt.Errorf("scan city ranking: %w", err)
		}
		rank.ExhibitionCount = int(exhibitions)
		rank.SiteCount = int(sites)
		out = append(out, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate city ranking: %w", err)
	}
	return out, nil
}

// Stats summarises the store.
func (s *ExhibitionStore) Stats(ctx context.Context) (store.Stats, error) {
	var (
		countries, cities, sites, exhibitions, artists int64
		crawled                                        bool
		last                                           time.Time
	)
	err := s.pool.QueryRow(ctx, `
SELECT
	(SELECT COUNT(*) FROM countries),
	(SELECT COUNT(*) FROM cities),
	(SELECT COUNT(*) FROM sites),
	(SELECT COUNT(*) FROM exhibitions),
	(SELECT COUNT(*) FROM artists),
	(SELECT COUNT(last_crawled_at) > 0 FROM sites),
	(SELECT COALESCE(MAX(last_crawled_at), 'epoch'::timestamptz) FROM sites)`).
		Scan(&countries, &cities, &sites, &exhibitions, &artists, &crawled, &last)
	if err != nil {
		return store.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	stats := store.Stats{
		Countries:   int(countries),
		Cities:      int(cities),
		Sites:       int(sites),
		Exhibitions: int(exhibitions),
		Artists:     int(artists),
	}
	if crawled {
		t := last.UTC()
		stats.LastCrawledAt = &t
	}
	return stats, nil
}

// Snapshot returns the denormalized export rows.
func (s *ExhibitionStore) Snapshot(ctx context.Context) ([]store.SnapshotEntry, error) {
	all, err := s.Exhibitions(ctx, store.ExhibitionFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]store.SnapshotEntry, 0, len(all))
	for _, ex := range all {
		out = append(out, store.SnapshotEntry{
			Title:        ex.Title,
			StartDateRaw: ex.StartDateRaw,
			EndDateRaw:   ex.EndDateRaw,
			StartDateISO: ex.StartDateISO,
			EndDateISO:   ex.EndDateISO,
			Site:         ex.Site,
			City:         ex.City,
			Country:      ex.Country,
			Summary:      ex.Summary,
			URL:          ex.URL,
			Artists:      store.JoinArtists(ex.MainArtist, ex.OtherArtists),
		})
	}
	return out, nil
}

func collectExhibitions(rows pgx.Rows) ([]store.Exhibition, error) {
	defer rows.Close()
	var out []store.Exhibition
	for rows.Next() {
		var ex store.Exhibition
		if err := rows.Scan(
			&ex.ID, &ex.Title, &ex.TitleKey, &ex.Site, &ex.City, &ex.Country,
			&ex.StartDateISO, &ex.EndDateISO, &ex.StartDateRaw, &ex.EndDateRaw,
			&ex.Summary, &ex.URL, &ex.CrawledAt, &ex.MainArtist, &ex.OtherArtists,
		); err != nil {
			return nil, fmt.Errorf("scan exhibition: %w", err)
		}
		if len(ex.OtherArtists) == 0 {
			ex.OtherArtists = nil
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exhibitions: %w", err)
	}
	return out, nil
}

func isoDay(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes LIKE wildcards so s matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
