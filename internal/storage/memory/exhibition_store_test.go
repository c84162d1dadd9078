package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

var (
	tate = crawler.SiteRef{Name: "Tate Modern", City: "London", Country: "United Kingdom", URL: "https://tate.org.uk/whats-on"}
	moma = crawler.SiteRef{Name: "MoMA", City: "New York", Country: "United States", URL: "https://moma.org/calendar/exhibitions"}
)

func seed(t *testing.T) *ExhibitionStore {
	t.Helper()
	s := NewExhibitionStore()
	n, err := s.ImportSites(context.Background(), []store.SiteInput{
		{Name: tate.Name, City: tate.City, Country: tate.Country, URL: tate.URL},
		{Name: moma.Name, City: moma.City, Country: moma.Country, URL: moma.URL},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	return s
}

func TestImportSitesUpsertsByNameAndCity(t *testing.T) {
	t.Parallel()

	s := seed(t)
	ctx := context.Background()
	_, err := s.ImportSites(ctx, []store.SiteInput{{Name: " Tate Modern ", City: "London", Country: "UK", URL: "https://tate.org.uk/new"}})
	require.NoError(t, err)

	sites, err := s.AllSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "https://tate.org.uk/new", sites[0].URL)
	require.Equal(t, store.SitePending, sites[0].Status)

	_, err = s.ImportSites(ctx, []store.SiteInput{{Name: "No URL"}})
	require.Error(t, err)
}

func TestSaveExhibitionsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := seed(t)
	ctx := context.Background()
	list := []crawler.Exhibition{
		{Title: "Monet", MainArtist: "Claude Monet", StartDate: "12 March 2025", EndDate: "3 August 2025"},
		{Title: "Hockney", OtherArtists: []string{"David Hockney"}},
	}
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		n, err := s.SaveExhibitions(ctx, tate, list, now)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	}
	all, err := s.Exhibitions(ctx, store.ExhibitionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "Monet", all[0].Title)
	require.Equal(t, "2025-08-03", all[0].EndDateISO)
	require.Equal(t, "Hockney", all[1].Title)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, store.Stats{Countries: 2, Cities: 2, Sites: 2, Exhibitions: 2, Artists: 2}, stats)
}

func TestSaveExhibitionsCreatesUnknownSite(t *testing.T) {
	t.Parallel()

	s := NewExhibitionStore()
	ctx := context.Background()
	ref := crawler.SiteRef{Name: "Kunsthalle", City: "Basel", Country: "Switzerland", URL: "https://kunsthallebasel.ch"}
	_, err := s.SaveExhibitions(ctx, ref, []crawler.Exhibition{{Title: "Show"}}, time.Now())
	require.NoError(t, err)

	site, err := s.SiteByName(ctx, "kunsthalle")
	require.NoError(t, err)
	require.Equal(t, "Basel", site.City)
}

func TestMarkSiteFailedKeepsExhibitions(t *testing.T) {
	t.Parallel()

	s := seed(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.SaveExhibitions(ctx, tate, []crawler.Exhibition{{Title: "Monet"}}, at)
	require.NoError(t, err)
	require.NoError(t, s.MarkSiteSuccess(ctx, tate, 1, at))
	require.NoError(t, s.MarkSiteFailed(ctx, tate, "listing unreachable", at.Add(time.Hour)))

	site, err := s.SiteByName(ctx, tate.Name)
	require.NoError(t, err)
	require.Equal(t, store.SiteFailed, site.Status)
	require.Equal(t, "listing unreachable", site.LastError)
	require.Equal(t, 1, site.ExhibitionCount)

	all, err := s.Exhibitions(ctx, store.ExhibitionFilter{City: "london"})
	require.NoError(t, err)
	require.Len(t, all, 1)

	err = s.MarkSiteFailed(ctx, crawler.SiteRef{Name: "ghost"}, "x", at)
	require.ErrorIs(t, err, crawler.ErrSiteUnknown)
	_, err = s.SiteByName(ctx, "ghost")
	require.ErrorIs(t, err, crawler.ErrSiteUnknown)
}

func TestDueSitesOrdersNeverCrawledFirst(t *testing.T) {
	t.Parallel()

	s := seed(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSiteSuccess(ctx, tate, 0, now.AddDate(0, 0, -100)))

	due, err := s.DueSites(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Equal(t, moma.Name, due[0].Name)
	require.Equal(t, tate.Name, due[1].Name)

	require.NoError(t, s.MarkSiteSuccess(ctx, tate, 0, now))
	due, err = s.DueSites(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestQueriesFilterAndRank(t *testing.T) {
	t.Parallel()

	s := seed(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.SaveExhibitions(ctx, tate, []crawler.Exhibition{
		{Title: "Past Show", EndDate: "1 January 2025"},
		{Title: "Basquiat Now", MainArtist: "Jean-Michel Basquiat", StartDate: "1 April 2025", EndDate: "1 September 2025", Summary: "Paintings and drawings"},
		{Title: "Open Ended", StartDate: "1 March 2025"},
	}, at)
	require.NoError(t, err)
	_, err = s.SaveExhibitions(ctx, moma, []crawler.Exhibition{
		{Title: "Light Works", OtherArtists: []string{"Dan Flavin"}, StartDate: "5 May 2025", EndDate: "30 June 2025"},
	}, at)
	require.NoError(t, err)

	today := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	current, err := s.Exhibitions(ctx, store.ExhibitionFilter{CurrentOnly: true, Today: today})
	require.NoError(t, err)
	titles := make([]string, 0, len(current))
	for _, ex := range current {
		titles = append(titles, ex.Title)
	}
	require.Equal(t, []string{"Open Ended", "Basquiat Now", "Light Works"}, titles)

	byArtist, err := s.Exhibitions(ctx, store.ExhibitionFilter{Artist: "jean michel"})
	require.NoError(t, err)
	require.Len(t, byArtist, 1)
	require.Equal(t, "Jean-Michel Basquiat", byArtist[0].MainArtist)

	byCountry, err := s.Exhibitions(ctx, store.ExhibitionFilter{Country: "united states"})
	require.NoError(t, err)
	require.Len(t, byCountry, 1)

	found, err := s.SearchText(ctx, "basquiat drawings", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Basquiat Now", found[0].Title)
	none, err := s.SearchText(ctx, "   ", 0)
	require.NoError(t, err)
	require.Empty(t, none)

	ranked, err := s.CitiesRanked(ctx, today)
	require.NoError(t, err)
	require.Equal(t, []store.CityRank{
		{City: "London", Country: "United Kingdom", ExhibitionCount: 2, SiteCount: 1},
		{City: "New York", Country: "United States", ExhibitionCount: 1, SiteCount: 1},
	}, ranked)

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 4)
	for _, entry := range snapshot {
		if entry.Title == "Light Works" {
			require.Equal(t, "Dan Flavin", entry.Artists)
			require.Equal(t, "MoMA", entry.Site)
		}
	}
}
