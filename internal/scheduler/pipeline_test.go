package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/condense"
	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/orchestrator"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

const (
	galleryListing = "https://example.org/gallery"
	galleryMonet   = "https://example.org/gallery/ex/monet"
	gallerySlow    = "https://example.org/gallery/ex/slow"
)

// pageFetcher serves fixed HTML and blocks on URLs listed in hang until the
// caller gives up.
type pageFetcher struct {
	pages map[string]string
	hang  map[string]bool
}

func (f pageFetcher) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	if f.hang[url] {
		<-ctx.Done()
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w: %w", url, crawler.ErrTransient, ctx.Err())
	}
	html, ok := f.pages[url]
	if !ok {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", url, crawler.ErrNotFound)
	}
	return crawler.FetchResult{URL: url, HTML: html, Tier: "http2", Elapsed: time.Millisecond}, nil
}

type galleryExtractor struct{}

func (galleryExtractor) ExtractListing(_ context.Context, _, _ string, _ []crawler.Anchor) ([]crawler.ListingItem, error) {
	return []crawler.ListingItem{
		{Title: "Monet", Href: "/gallery/ex/monet", DateText: "2 August 2025 - 25 January 2026"},
		{Title: "Slow Show", Href: gallerySlow, DateText: "27 June – 8 November 2026"},
	}, nil
}

func (galleryExtractor) ExtractDetail(_ context.Context, _, _, url string) (crawler.DetailRecord, error) {
	if url != galleryMonet {
		return crawler.DetailRecord{}, fmt.Errorf("unexpected detail %s: %w", url, crawler.ErrExtractionInvalid)
	}
	return crawler.DetailRecord{
		Title:        "Monet: Light on Water",
		MainArtist:   "Claude Monet",
		OtherArtists: []string{"Berthe Morisot"},
		StartDate:    "2 August 2025",
		EndDate:      "25 January 2026",
		Summary:      "Water lilies at dusk.",
		URL:          galleryMonet,
	}, nil
}

func TestRunSiteEndToEndKeepsTimedOutDetailAsListingRow(t *testing.T) {
	t.Parallel()

	fetcher := pageFetcher{
		pages: map[string]string{
			galleryListing: `<html><body><main>
				<h1>Exhibitions</h1>
				<a href="/gallery/ex/monet">Monet</a>
				<a href="/gallery/ex/slow">Slow Show</a>
			</main></body></html>`,
			galleryMonet: `<html><body><main><h1>Monet: Light on Water</h1><p>Water lilies at dusk.</p></main></body></html>`,
		},
		hang: map[string]bool{gallerySlow: true},
	}
	orchCfg := orchestrator.DefaultConfig()
	orchCfg.DetailTimeout = 50 * time.Millisecond
	runner := orchestrator.New(orchCfg, condense.New(condense.DefaultConfig(), fetcher, zap.NewNop()), galleryExtractor{}, zap.NewNop())

	h := newHarness(t, noPause(), runner, "gallery")
	ctx := context.Background()

	res, err := h.sched.RunSite(ctx, "gallery")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, 2, res.ExhibitionCount)
	require.Empty(t, res.Error)

	site, err := h.repo.SiteByName(ctx, "gallery")
	require.NoError(t, err)
	require.Equal(t, store.SiteSuccess, site.Status)
	require.Equal(t, 2, site.ExhibitionCount)

	rows, err := h.repo.Exhibitions(ctx, store.ExhibitionFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byTitle := map[string]store.Exhibition{}
	for _, row := range rows {
		byTitle[row.Title] = row
	}

	enriched := byTitle["Monet: Light on Water"]
	require.Equal(t, "Claude Monet", enriched.MainArtist)
	require.Equal(t, []string{"Berthe Morisot"}, enriched.OtherArtists)
	require.Equal(t, "Water lilies at dusk.", enriched.Summary)
	require.Equal(t, "2025-08-02", enriched.StartDateISO)
	require.Equal(t, "2026-01-25", enriched.EndDateISO)

	listingOnly := byTitle["Slow Show"]
	require.Equal(t, gallerySlow, listingOnly.URL)
	require.Equal(t, "2026-06-27", listingOnly.StartDateISO)
	require.Equal(t, "2026-11-08", listingOnly.EndDateISO)
	require.Empty(t, listingOnly.MainArtist)
	require.Empty(t, listingOnly.Summary)
}
