package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

const defaultSearchLimit = 50

type storedExhibition struct {
	row      store.Exhibition
	prepared store.Prepared
}

// ExhibitionStore is an in-memory store.Repository for development and tests.
type ExhibitionStore struct {
	mu          sync.RWMutex
	nextSiteID  int64
	nextRowID   int64
	sites       []*store.Site
	exhibitions map[int64][]storedExhibition
	artists     map[string]string
}

var _ store.Repository = (*ExhibitionStore)(nil)

// NewExhibitionStore constructs an empty ExhibitionStore.
func NewExhibitionStore() *ExhibitionStore {
	return &ExhibitionStore{
		exhibitions: make(map[int64][]storedExhibition),
		artists:     make(map[string]string),
	}
}

// ImportSites upserts sites keyed by trimmed (name, city).
func (s *ExhibitionStore) ImportSites(_ context.Context, sites []store.SiteInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, in := range sites {
		in = trimInput(in)
		if in.Name == "" || in.URL == "" {
			return i, fmt.Errorf("site row %d: name and url are required", i+1)
		}
		site := s.siteLocked(in.Name, in.City)
		if site == nil {
			site = s.createSiteLocked(in.Name, in.City, in.Country, in.URL)
		}
		site.Country = in.Country
		site.URL = in.URL
	}
	return len(sites), nil
}

// DueSites returns sites never crawled or crawled before cutoff.
func (s *ExhibitionStore) DueSites(_ context.Context, cutoff time.Time) ([]store.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Site
	for _, site := range s.sites {
		if site.LastCrawledAt == nil || site.LastCrawledAt.Before(cutoff) {
			out = append(out, *site)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastCrawledAt, out[j].LastCrawledAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

// AllSites returns every site in insertion order.
func (s *ExhibitionStore) AllSites(_ context.Context) ([]store.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, *site)
	}
	return out, nil
}

// SiteByName finds a site by case-insensitive name.
func (s *ExhibitionStore) SiteByName(_ context.Context, name string) (store.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name = strings.TrimSpace(name)
	for _, site := range s.sites {
		if strings.EqualFold(site.Name, name) {
			return *site, nil
		}
	}
	return store.Site{}, fmt.Errorf("site %q: %w", name, crawler.ErrSiteUnknown)
}

// SaveExhibitions replaces the exhibitions of ref.
func (s *ExhibitionStore) SaveExhibitions(
	_ context.Context,
	ref crawler.SiteRef,
	exhibitions []crawler.Exhibition,
	crawledAt time.Time,
) (int, error) {
	prepared := store.Prepare(exhibitions)

	s.mu.Lock()
	defer s.mu.Unlock()
	site := s.siteLocked(ref.Name, ref.City)
	if site == nil {
		site = s.createSiteLocked(ref.Name, ref.City, ref.Country, ref.URL)
	}
	rows := make([]storedExhibition, 0, len(prepared))
	for _, p := range prepared {
		s.nextRowID++
		for _, credit := range p.Artists {
			if _, ok := s.artists[credit.NormalizedName]; !ok {
				s.artists[credit.NormalizedName] = credit.DisplayName
			}
		}
		rows = append(rows, storedExhibition{
			prepared: p,
			row: store.Exhibition{
				ID:           s.nextRowID,
				Title:        p.Title,
				TitleKey:     p.TitleKey,
				Site:         site.Name,
				City:         site.City,
				Country:      site.Country,
				StartDateISO: p.Dates.StartISO,
				EndDateISO:   p.Dates.EndISO,
				StartDateRaw: p.Dates.StartRaw,
				EndDateRaw:   p.Dates.EndRaw,
				Summary:      p.Summary,
				URL:          p.URL,
				MainArtist:   p.MainArtist(),
				OtherArtists: p.OtherArtists(),
				CrawledAt:    crawledAt.UTC(),
			},
		})
	}
	s.exhibitions[site.ID] = rows
	return len(rows), nil
}

// MarkSiteSuccess records a successful crawl.
func (s *ExhibitionStore) MarkSiteSuccess(_ context.Context, ref crawler.SiteRef, count int, at time.Time) error {
	return s.updateSite(ref, func(site *store.Site) {
		site.Status = store.SiteSuccess
		site.LastError = ""
		site.ExhibitionCount = count
		site.LastCrawledAt = pointerTime(at.UTC())
	})
}

// MarkSiteFailed records a failed crawl. Stored exhibitions are kept.
func (s *ExhibitionStore) MarkSiteFailed(_ context.Context, ref crawler.SiteRef, errMsg string, at time.Time) error {
	return s.updateSite(ref, func(site *store.Site) {
		site.Status = store.SiteFailed
		site.LastError = errMsg
		site.LastCrawledAt = pointerTime(at.UTC())
	})
}

// Exhibitions returns exhibitions matching filter.
func (s *ExhibitionStore) Exhibitions(_ context.Context, filter store.ExhibitionFilter) ([]store.Exhibition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	today := isoDay(filter.Today)
	artist := normalize.NormalizeName(filter.Artist)
	var out []store.Exhibition
	for _, stored := range s.allLocked() {
		row := stored.row
		if filter.City != "" && !strings.EqualFold(row.City, strings.TrimSpace(filter.City)) {
			continue
		}
		if filter.Country != "" && !strings.EqualFold(row.Country, strings.TrimSpace(filter.Country)) {
			continue
		}
		if artist != "" && !creditedArtist(stored.prepared, artist) {
			continue
		}
		if filter.CurrentOnly && !isCurrent(row, today) {
			continue
		}
		out = append(out, copyRow(row))
	}
	return out, nil
}

// SearchText returns exhibitions whose title, summary or artists contain
// every word of query.
func (s *ExhibitionStore) SearchText(_ context.Context, query string, limit int) ([]store.Exhibition, error) {
	terms := strings.Fields(normalize.NormalizeKey(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Exhibition
	for _, stored := range s.allLocked() {
		body := " " + normalize.NormalizeKey(stored.prepared.SearchBody) + " "
		matched := true
		for _, term := range terms {
			if !strings.Contains(body, " "+term+" ") {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, copyRow(stored.row))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CitiesRanked counts current exhibitions per city, busiest first.
func (s *ExhibitionStore) CitiesRanked(_ context.Context, today time.Time) ([]store.CityRank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := isoDay(today)
	type cityKey struct{ city, country string }
	counts := map[cityKey]*store.CityRank{}
	sitesPerCity := map[cityKey]map[string]struct{}{}
	var order []cityKey
	for _, stored := range s.allLocked() {
		row := stored.row
		if !isCurrent(row, day) {
			continue
		}
		key := cityKey{row.City, row.Country}
		rank, ok := counts[key]
		if !ok {
			rank = &store.CityRank{City: row.City, Country: row.Country}
			counts[key] = rank
			sitesPerCity[key] = map[string]struct{}{}
			order = append(order, key)
		}
		rank.ExhibitionCount++
		sitesPerCity[key][row.Site] = struct{}{}
	}
	out := make([]store.CityRank, 0, len(order))
	for _, key := range order {
		rank := counts[key]
		rank.SiteCount = len(sitesPerCity[key])
		out = append(out, *rank)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExhibitionCount != out[j].ExhibitionCount {
			return out[i].ExhibitionCount > out[j].ExhibitionCount
		}
		return out[i].City < out[j].City
	})
	return out, nil
}

// Stats summarises the store.
func (s *ExhibitionStore) Stats(_ context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	countries := map[string]struct{}{}
	cities := map[string]struct{}{}
	var stats store.Stats
	for _, site := range s.sites {
		countries[site.Country] = struct{}{}
		cities[site.City+"\x00"+site.Country] = struct{}{}
		stats.Exhibitions += len(s.exhibitions[site.ID])
		if site.LastCrawledAt != nil && (stats.LastCrawledAt == nil || site.LastCrawledAt.After(*stats.LastCrawledAt)) {
			stats.LastCrawledAt = pointerTime(*site.LastCrawledAt)
		}
	}
	stats.Countries = len(countries)
	stats.Cities = len(cities)
	stats.Sites = len(s.sites)
	stats.Artists = len(s.artists)
	return stats, nil
}

// Snapshot returns the denormalized export rows.
func (s *ExhibitionStore) Snapshot(_ context.Context) ([]store.SnapshotEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.allLocked()
	out := make([]store.SnapshotEntry, 0, len(all))
	for _, stored := range all {
		row := stored.row
		out = append(out, store.SnapshotEntry{
			Title:        row.Title,
			StartDateRaw: row.StartDateRaw,
			EndDateRaw:   row.EndDateRaw,
			StartDateISO: row.StartDateISO,
			EndDateISO:   row.EndDateISO,
			Site:         row.Site,
			City:         row.City,
			Country:      row.Country,
			Summary:      row.Summary,
			URL:          row.URL,
			Artists:      store.JoinArtists(row.MainArtist, row.OtherArtists),
		})
	}
	return out, nil
}

// Close is a no-op.
func (s *ExhibitionStore) Close() {}

func (s *ExhibitionStore) updateSite(ref crawler.SiteRef, mutate func(*store.Site)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site := s.siteLocked(ref.Name, ref.City)
	if site == nil {
		return fmt.Errorf("site %q: %w", ref.Name, crawler.ErrSiteUnknown)
	}
	mutate(site)
	return nil
}

func (s *ExhibitionStore) siteLocked(name, city string) *store.Site {
	name, city = strings.TrimSpace(name), strings.TrimSpace(city)
	for _, site := range s.sites {
		if site.Name == name && site.City == city {
			return site
		}
	}
	return nil
}

func (s *ExhibitionStore) createSiteLocked(name, city, country, url string) *store.Site {
	s.nextSiteID++
	site := &store.Site{
		ID:      s.nextSiteID,
		Name:    strings.TrimSpace(name),
		City:    strings.TrimSpace(city),
		Country: strings.TrimSpace(country),
		URL:     strings.TrimSpace(url),
		Status:  store.SitePending,
	}
	s.sites = append(s.sites, site)
	return site
}

// allLocked returns every stored exhibition ordered by start date (unknown
// last), city, site and title.
func (s *ExhibitionStore) allLocked() []storedExhibition {
	var all []storedExhibition
	for _, site := range s.sites {
		all = append(all, s.exhibitions[site.ID]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i].row, all[j].row
		if a.StartDateISO != b.StartDateISO {
			if a.StartDateISO == "" || b.StartDateISO == "" {
				return b.StartDateISO == ""
			}
			return a.StartDateISO < b.StartDateISO
		}
		if a.City != b.City {
			return a.City < b.City
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		return a.Title < b.Title
	})
	return all
}

func creditedArtist(p store.Prepared, needle string) bool {
	for _, credit := range p.Artists {
		if strings.Contains(credit.NormalizedName, needle) {
			return true
		}
	}
	return false
}

func isCurrent(row store.Exhibition, today string) bool {
	return row.EndDateISO == "" || row.EndDateISO >= today
}

func isoDay(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02")
}

func copyRow(row store.Exhibition) store.Exhibition {
	row.OtherArtists = append([]string(nil), row.OtherArtists...)
	return row
}

func trimInput(in store.SiteInput) store.SiteInput {
	return store.SiteInput{
		Name:    strings.TrimSpace(in.Name),
		City:    strings.TrimSpace(in.City),
		Country: strings.TrimSpace(in.Country),
		URL:     strings.TrimSpace(in.URL),
	}
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
