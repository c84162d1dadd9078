package store

import (
	"context"
	"time"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// Repository persists the site registry and crawled exhibitions.
type Repository interface {
	// ImportSites upserts sites by (name, city). Sites absent from the input
	// are left alone. It returns the number of rows processed.
	ImportSites(ctx context.Context, sites []SiteInput) (int, error)
	// DueSites returns sites never crawled or last crawled before cutoff,
	// oldest first.
	DueSites(ctx context.Context, cutoff time.Time) ([]Site, error)
	AllSites(ctx context.Context) ([]Site, error)
	// SiteByName returns crawler.ErrSiteUnknown when no site matches.
	SiteByName(ctx context.Context, name string) (Site, error)
	// SaveExhibitions atomically replaces the exhibitions of site and
	// returns how many rows were written.
	SaveExhibitions(ctx context.Context, site crawler.SiteRef, exhibitions []crawler.Exhibition, crawledAt time.Time) (int, error)
	MarkSiteSuccess(ctx context.Context, site crawler.SiteRef, exhibitionCount int, at time.Time) error
	// MarkSiteFailed records the error without touching stored exhibitions
	// or the exhibition count.
	MarkSiteFailed(ctx context.Context, site crawler.SiteRef, errMsg string, at time.Time) error

	Exhibitions(ctx context.Context, filter ExhibitionFilter) ([]Exhibition, error)
	SearchText(ctx context.Context, query string, limit int) ([]Exhibition, error)
	CitiesRanked(ctx context.Context, today time.Time) ([]CityRank, error)
	Stats(ctx context.Context) (Stats, error)
	Snapshot(ctx context.Context) ([]SnapshotEntry, error)

	Close()
}

// Migrator is implemented by repositories that manage a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Pinger is implemented by repositories backed by a remote connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
