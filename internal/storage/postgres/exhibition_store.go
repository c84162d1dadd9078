// Package postgres provides the Postgres-backed exhibition repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const defaultSearchLimit = 50

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type pool interface {
	querier
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// ExhibitionStore implements store.Repository on Postgres.
type ExhibitionStore struct {
	pool pool
}

var (
	_ store.Repository = (*ExhibitionStore)(nil)
	_ store.Migrator   = (*ExhibitionStore)(nil)
	_ store.Pinger     = (*ExhibitionStore)(nil)
)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*ExhibitionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ExhibitionStore{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*ExhibitionStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ExhibitionStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *ExhibitionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *ExhibitionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *ExhibitionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ImportSites upserts sites by (name, city) in one transaction.
func (s *ExhibitionStore) ImportSites(ctx context.Context, sites []store.SiteInput) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, in := range sites {
		ref := crawler.SiteRef{
			Name:    strings.TrimSpace(in.Name),
			City:    strings.TrimSpace(in.City),
			Country: strings.TrimSpace(in.Country),
			URL:     strings.TrimSpace(in.URL),
		}
		if ref.Name == "" || ref.URL == "" {
			return 0, fmt.Errorf("site row %d: name and url are required", i+1)
		}
		cityID, err := ensureCity(ctx, tx, ref.City, ref.Country)
		if err != nil {
			return 0, err
		}
		if _, err := upsertSite(ctx, tx, ref.Name, cityID, ref.URL, true); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(sites), nil
}

const siteColumns = `
	s.id, s.name, c.name, co.name, s.url,
	s.last_crawled_at IS NOT NULL,
	COALESCE(s.last_crawled_at, 'epoch'::timestamptz),
	s.status, COALESCE(s.last_error, ''), s.exhibition_count
FROM sites s
JOIN cities c ON c.id = s.city_id
JOIN countries co ON co.id = c.country_id`

// DueSites returns sites never crawled or last crawled before cutoff.
func (s *ExhibitionStore) DueSites(ctx context.Context, cutoff time.Time) ([]store.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+siteColumns+`
WHERE s.last_crawled_at IS NULL OR s.last_crawled_at < $1
ORDER BY s.last_crawled_at ASC NULLS FIRST, s.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query due sites: %w", err)
	}
	return collectSites(rows)
}

// AllSites returns every site.
func (s *ExhibitionStore) AllSites(ctx context.Context) ([]store.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+siteColumns+`
ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	return collectSites(rows)
}

// SiteByName finds a site by case-insensitive name.
func (s *ExhibitionStore) SiteByName(ctx context.Context, name string) (store.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+siteColumns+`
WHERE lower(s.name) = lower($1)
ORDER BY s.id
LIMIT 1`, strings.TrimSpace(name))
	site, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Site{}, fmt.Errorf("site %q: %w", name, crawler.ErrSiteUnknown)
	}
	if err != nil {
		return store.Site{}, fmt.Errorf("query site: %w", err)
	}
	return site, nil
}

// SaveExhibitions replaces the exhibitions of ref in one transaction.
func (s *ExhibitionStore) SaveExhibitions(
	ctx context.Context,
	ref crawler.SiteRef,
	exhibitions []crawler.Exhibition,
	crawledAt time.Time,
) (int, error) {
	prepared := store.Prepare(exhibitions)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cityID, err := ensureCity(ctx, tx, ref.City, ref.Country)
	if err != nil {
		return 0, err
	}
	siteID, err := upsertSite(ctx, tx, strings.TrimSpace(ref.Name), cityID, strings.TrimSpace(ref.URL), false)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM exhibitions WHERE site_id = $1`, siteID); err != nil {
		return 0, fmt.Errorf("delete prior exhibitions: %w", err)
	}

	saved := 0
	for _, p := range prepared {
		inserted, err := insertExhibition(ctx, tx, siteID, p, crawledAt.UTC())
		if err != nil {
			return 0, err
		}
		if inserted {
			saved++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return saved, nil
}

// MarkSiteSuccess records a successful crawl.
func (s *ExhibitionStore) MarkSiteSuccess(ctx context.Context, ref crawler.SiteRef, count int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sites s
SET status = $1, exhibition_count = $2, last_error = NULL, last_crawled_at = $3, updated_at = now()
FROM cities c
WHERE c.id = s.city_id AND s.name = $4 AND c.name = $5`,
		string(store.SiteSuccess), count, at.UTC(), ref.Name, ref.City)
	if err != nil {
		return fmt.Errorf("mark site success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("site %q: %w", ref.Name, crawler.ErrSiteUnknown)
	}
	return nil
}

// MarkSiteFailed records a failed crawl. Stored exhibitions and the
// exhibition count are left as they were.
func (s *ExhibitionStore) MarkSiteFailed(ctx context.Context, ref crawler.SiteRef, errMsg string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE sites s
SET status = $1, last_error = $2, last_crawled_at = $3, updated_at = now()
FROM cities c
WHERE c.id = s.city_id AND s.name = $4 AND c.name = $5`,
		string(store.SiteFailed), errMsg, at.UTC(), ref.Name, ref.City)
	if err != nil {
		return fmt.Errorf("mark site failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("site %q: %w", ref.Name, crawler.ErrSiteUnknown)
	}
	return nil
}

func ensureCity(ctx context.Context, q querier, city, country string) (int64, error) {
	var countryID int64
	err := q.QueryRow(ctx, `
INSERT INTO countries (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, strings.TrimSpace(country)).Scan(&countryID)
	if err != nil {
		return 0, fmt.Errorf("get or create country: %w", err)
	}
	var cityID int64
	err = q.QueryRow(ctx, `
INSERT INTO cities (name, country_id) VALUES ($1, $2)
ON CONFLICT (name, country_id) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, strings.TrimSpace(city), countryID).Scan(&cityID)
	if err != nil {
		return 0, fmt.Errorf("get or create city: %w", err)
	}
	return cityID, nil
}

// upsertSite gets or creates a site. With replaceURL the stored URL follows
// the input, which is what a registry import wants.
func upsertSite(ctx context.Context, q querier, name string, cityID int64, url string, replaceURL bool) (int64, error) {
	onConflict := `name = EXCLUDED.name`
	if replaceURL {
		onConflict = `url = EXCLUDED.url, updated_at = now()`
	}
	var id int64
	err := q.QueryRow(ctx, `
INSERT INTO sites (name, city_id, url) VALUES ($1, $2, $3)
ON CONFLICT (name, city_id) DO UPDATE SET `+onConflict+`
RETURNING id`, name, cityID, url).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get or create site: %w", err)
	}
	return id, nil
}

func insertExhibition(ctx context.Context, q querier, siteID int64, p store.Prepared, crawledAt time.Time) (bool, error) {
	var id int64
	err := q.QueryRow(ctx, `
INSERT INTO exhibitions (
	site_id, title, title_key,
	start_date_iso, end_date_iso, start_date_raw, end_date_raw,
	summary, url, crawled_at
) VALUES (
	$1, $2, $3,
	NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''),
	NULLIF($8, ''), NULLIF($9, ''), $10
)
ON CONFLICT DO NOTHING
RETURNING id`,
		siteID, p.Title, p.TitleKey,
		p.Dates.StartISO, p.Dates.EndISO, p.Dates.StartRaw, p.Dates.EndRaw,
		p.Summary, p.URL, crawledAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert exhibition %q: %w", p.Title, err)
	}

	for position, credit := range p.Artists {
		var artistID int64
		err := q.QueryRow(ctx, `
INSERT INTO artists (display_name, normalized_name) VALUES ($1, $2)
ON CONFLICT (normalized_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
RETURNING id`, credit.DisplayName, credit.NormalizedName).Scan(&artistID)
		if err != nil {
			return false, fmt.Errorf("get or create artist %q: %w", credit.DisplayName, err)
		}
		if _, err := q.Exec(ctx, `
INSERT INTO exhibition_artists (exhibition_id, artist_id, role, position) VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`, id, artistID, string(credit.Role), position); err != nil {
			return false, fmt.Errorf("link artist %q: %w", credit.DisplayName, err)
		}
	}

	if _, err := q.Exec(ctx, `
INSERT INTO exhibition_search (exhibition_id, body) VALUES ($1, $2)
ON CONFLICT (exhibition_id) DO UPDATE SET body = EXCLUDED.body`,
		id, normalize.NormalizeKey(p.SearchBody)); err != nil {
		return false, fmt.Errorf("index exhibition %q: %w", p.Title, err)
	}
	return true, nil
}

func collectSites(rows pgx.Rows) ([]store.Site, error) {
	defer rows.Close()
	var out []store.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return out, nil
}

func scanSite(row pgx.Row) (store.Site, error) {
	var (
		site    store.Site
		crawled bool
		last    time.Time
		status  string
		count   int64
	)
	if err := row.Scan(
		&site.ID, &site.Name, &site.City, &site.Country, &site.URL,
		&crawled, &last, &status, &site.LastError, &count,
	); err != nil {
		return store.Site{}, err
	}
	if crawled {
		t := last.UTC()
		site.LastCrawledAt = &t
	}
	site.Status = store.SiteStatus(status)
	site.ExhibitionCount = int(count)
	return site, nil
}
