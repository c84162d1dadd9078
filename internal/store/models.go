package store

import (
	"time"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// SiteStatus mirrors the sites.status column.
type SiteStatus string

// Site statuses.
const (
	SitePending SiteStatus = "pending"
	SiteSuccess SiteStatus = "success"
	SiteFailed  SiteStatus = "failed"
)

// ArtistRole mirrors exhibition_artists.role.
type ArtistRole string

// Artist roles.
const (
	RoleMain     ArtistRole = "main"
	RoleFeatured ArtistRole = "featured"
)

// SiteInput is one registry row to import.
type SiteInput struct {
	Name    string
	City    string
	Country string
	URL     string
}

// Site is a museum or gallery in the registry.
type Site struct {
	ID              int64
	Name            string
	City            string
	Country         string
	URL             string
	LastCrawledAt   *time.Time
	Status          SiteStatus
	LastError       string
	ExhibitionCount int
}

// Ref returns the identity the crawl pipeline carries around.
func (s Site) Ref() crawler.SiteRef {
	return crawler.SiteRef{Name: s.Name, City: s.City, Country: s.Country, URL: s.URL}
}

// Exhibition is a stored exhibition joined with its site, city and country.
type Exhibition struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	TitleKey     string    `json:"-"`
	Site         string    `json:"site"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	StartDateISO string    `json:"start_date_iso,omitempty"`
	EndDateISO   string    `json:"end_date_iso,omitempty"`
	StartDateRaw string    `json:"start_date_raw,omitempty"`
	EndDateRaw   string    `json:"end_date_raw,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	URL          string    `json:"url,omitempty"`
	MainArtist   string    `json:"main_artist,omitempty"`
	OtherArtists []string  `json:"other_artists,omitempty"`
	CrawledAt    time.Time `json:"crawled_at"`
}

// ExhibitionFilter narrows Exhibitions. Empty fields do not filter.
// CurrentOnly keeps exhibitions whose end date is unknown or not before
// Today.
type ExhibitionFilter struct {
	City        string
	Country     string
	Artist      string
	CurrentOnly bool
	Today       time.Time
}

// CityRank is one row of the travel-planning view.
type CityRank struct {
	City            string `json:"city"`
	Country         string `json:"country"`
	ExhibitionCount int    `json:"exhibition_count"`
	SiteCount       int    `json:"site_count"`
}

// Stats summarises the store contents.
type Stats struct {
	Countries     int        `json:"countries"`
	Cities        int        `json:"cities"`
	Sites         int        `json:"sites"`
	Exhibitions   int        `json:"exhibitions"`
	Artists       int        `json:"artists"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty"`
}

// SnapshotEntry is one row of the exported snapshot.
type SnapshotEntry struct {
	Title        string `json:"title"`
	StartDateRaw string `json:"start_date_raw,omitempty"`
	EndDateRaw   string `json:"end_date_raw,omitempty"`
	StartDateISO string `json:"start_date_iso,omitempty"`
	EndDateISO   string `json:"end_date_iso,omitempty"`
	Site         string `json:"site"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Summary      string `json:"summary,omitempty"`
	URL          string `json:"url,omitempty"`
	Artists      string `json:"artists,omitempty"`
}
