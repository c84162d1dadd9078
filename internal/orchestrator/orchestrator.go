// Package orchestrator runs one site through listing discovery, candidate
// extraction, bounded-concurrency detail enrichment and merge.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/metrics"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
)

// Config tunes a site run.
type Config struct {
	FollowPagination   bool
	MaxPagers          int
	ListingTextBudget  int
	DetailConcurrency  int
	DetailTimeout      time.Duration
	DetailPhaseTimeout time.Duration
	Filter             DetailFilter
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		FollowPagination:   true,
		MaxPagers:          3,
		ListingTextBudget:  16000,
		DetailConcurrency:  10,
		DetailTimeout:      90 * time.Second,
		DetailPhaseTimeout: 15 * time.Minute,
		Filter:             EnrichAll{},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxPagers < 0 {
		c.MaxPagers = 0
	}
	if c.ListingTextBudget <= 0 {
		c.ListingTextBudget = def.ListingTextBudget
	}
	if c.DetailConcurrency <= 0 {
		c.DetailConcurrency = def.DetailConcurrency
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = def.DetailTimeout
	}
	if c.DetailPhaseTimeout <= 0 {
		c.DetailPhaseTimeout = def.DetailPhaseTimeout
	}
	if c.Filter == nil {
		c.Filter = def.Filter
	}
	return c
}

// Orchestrator implements the per-site crawl.
type Orchestrator struct {
	cfg       Config
	condenser crawler.Condenser
	extractor crawler.Extractor
	logger    *zap.Logger
}

// New builds an Orchestrator.
func New(cfg Config, condenser crawler.Condenser, extractor crawler.Extractor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		condenser: condenser,
		extractor: extractor,
		logger:    logger,
	}
}

type listing struct {
	text    string
	anchors []crawler.Anchor
	timing  crawler.BundleTiming
	pagers  []string
}

type detailOutcome struct {
	record crawler.DetailRecord
	page   PageReport
}

// Run crawls site. Only a failure to discover or extract the listing is
// returned as an error; detail page failures are recorded in the report and
// the affected candidates keep their listing data.
func (o *Orchestrator) Run(ctx context.Context, site crawler.SiteRef) (Result, error) {
	start := time.Now()
	logger := o.logger.With(zap.String("site", site.Name), zap.String("listing_url", site.URL))

	lst, err := o.listing(ctx, site.URL, logger)
	if err != nil {
		return Result{}, err
	}

	llmStart := time.Now()
	items, err := o.extractor.ExtractListing(ctx, site.Name, lst.text, lst.anchors)
	if err != nil {
		return Result{}, fmt.Errorf("extract listing %s: %w", site.URL, err)
	}
	listingLLM := time.Since(llmStart)
	candidates := dedupCandidates(site.URL, items)
	logger.Info("listing candidates",
		zap.Int("anchors", len(lst.anchors)),
		zap.Int("items", len(items)),
		zap.Int("candidates", len(candidates)),
	)

	detailStart := time.Now()
	outcomes := o.details(ctx, site, candidates, logger)
	detailPhase := time.Since(detailStart)

	exhibitions := merge(candidates, outcomes)
	report := Report{
		Site:       site.Name,
		ListingURL: site.URL,
		Pagers:     lst.pagers,
		Pages:      make(map[string]PageReport, len(candidates)),
		Timing: Timing{
			ListingFetchMS: lst.timing.TotalMS,
			ListingLLMMS:   millis(listingLLM),
			DetailsMS:      millis(detailPhase),
		},
	}
	report.Counts.Todo = len(candidates)
	for i, c := range candidates {
		page := outcomes[i].page
		report.Pages[c.Href] = page
		switch page.Status {
		case PageOK:
			report.Counts.Scraped++
		case PageSkipped:
			report.Counts.Skipped++
		default:
			report.Counts.Failed++
		}
	}
	report.Counts.Unique = len(exhibitions)
	report.Timing.OverallMS = millis(time.Since(start))

	logger.Info("site orchestrated",
		zap.Int("todo", report.Counts.Todo),
		zap.Int("scraped", report.Counts.Scraped),
		zap.Int("failed", report.Counts.Failed),
		zap.Int("skipped", report.Counts.Skipped),
		zap.Int("unique", report.Counts.Unique),
		zap.Float64("overall_ms", report.Timing.OverallMS),
	)
	return Result{Exhibitions: exhibitions, Report: report}, nil
}

// listing condenses the listing page and up to MaxPagers pagination links.
func (o *Orchestrator) listing(ctx context.Context, listingURL string, logger *zap.Logger) (listing, error) {
	base, err := o.condenser.CondenseURL(ctx, listingURL)
	if err != nil {
		return listing{}, fmt.Errorf("condense listing %s: %w", listingURL, err)
	}
	texts := []string{base.Text}
	anchors := append([]crawler.Anchor(nil), base.Anchors...)
	out := listing{timing: base.Timing}

	if o.cfg.FollowPagination {
		for _, href := range pagerLinks(listingURL, base.Anchors, o.cfg.MaxPagers) {
			page, err := o.condenser.CondenseURL(ctx, href)
			if err != nil {
				logger.Warn("pagination page failed", zap.String("url", href), zap.Error(err))
				continue
			}
			out.pagers = append(out.pagers, href)
			texts = append(texts, page.Text)
			anchors = append(anchors, page.Anchors...)
		}
	}
	out.text = normalize.Truncate(strings.Join(texts, "\n"), o.cfg.ListingTextBudget)
	out.anchors = anchors
	return out, nil
}

func pagerLinks(listingURL string, anchors []crawler.Anchor, limit int) []string {
	seen := map[string]struct{}{strings.TrimRight(listingURL, "/"): {}}
	var out []string
	for _, a := range anchors {
		if len(out) >= limit {
			break
		}
		if !a.Pager {
			continue
		}
		key := strings.TrimRight(a.Href, "/")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a.Href)
	}
	return out
}

// dedupCandidates resolves hrefs against the listing URL and keeps the
// first occurrence of each.
func dedupCandidates(listingURL string, items []crawler.ListingItem) []crawler.ListingItem {
	base, _ := url.Parse(listingURL)
	seen := make(map[string]struct{}, len(items))
	out := make([]crawler.ListingItem, 0, len(items))
	for _, it := range items {
		it.Href = resolveHref(base, it.Href)
		if _, dup := seen[it.Href]; dup {
			continue
		}
		seen[it.Href] = struct{}{}
		out = append(out, it)
	}
	return out
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	return abs.String()
}

// details enriches candidates concurrently. Outcomes are indexed like
// candidates.
func (o *Orchestrator) details(
	ctx context.Context,
	site crawler.SiteRef,
	candidates []crawler.ListingItem,
	logger *zap.Logger,
) []detailOutcome {
	outcomes := make([]detailOutcome, len(candidates))
	phaseCtx, cancel := context.WithTimeout(ctx, o.cfg.DetailPhaseTimeout)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(o.cfg.DetailConcurrency)
	for i, c := range candidates {
		if !o.cfg.Filter.ShouldEnrich(c) {
			outcomes[i] = detailOutcome{page: PageReport{Status: PageSkipped}}
			metrics.ObserveDetailPage(string(PageSkipped))
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("detail page panicked", zap.String("url", c.Href), zap.Any("panic", r))
					outcomes[i] = detailOutcome{page: PageReport{
						Status:    PagePanic,
						Error:     fmt.Sprint(r),
						ErrorKind: "panic",
					}}
				}
				metrics.ObserveDetailPage(string(outcomes[i].page.Status))
			}()
			outcomes[i] = o.detail(phaseCtx, site, c.Href, logger)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) detail(ctx context.Context, site crawler.SiteRef, href string, logger *zap.Logger) detailOutcome {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DetailTimeout)
	defer cancel()

	start := time.Now()
	bundle, err := o.condenser.CondenseURL(ctx, href)
	if err != nil {
		logger.Warn("detail fetch failed", zap.String("url", href), zap.Error(err))
		return detailOutcome{page: PageReport{
			Status:    PageFetchError,
			FetchMS:   millis(time.Since(start)),
			Error:     err.Error(),
			ErrorKind: crawler.ErrorKind(err),
		}}
	}
	page := PageReport{
		FetchMS:   bundle.Timing.TotalMS,
		HTMLChars: bundle.HTMLChars,
		TextChars: bundle.TextChars,
		FromCache: bundle.Timing.FromCache,
		Tier:      bundle.Timing.Tier,
	}

	llmStart := time.Now()
	rec, err := o.extractor.ExtractDetail(ctx, site.Name, bundle.Text, href)
	page.LLMMS = millis(time.Since(llmStart))
	if err != nil {
		logger.Warn("detail extraction failed", zap.String("url", href), zap.Error(err))
		page.Status = PageLLMError
		page.Error = err.Error()
		page.ErrorKind = crawler.ErrorKind(err)
		return detailOutcome{page: page}
	}
	page.Status = PageOK
	return detailOutcome{record: rec, page: page}
}

// merge overlays successful detail records onto the listing candidates and
// drops later records whose title key repeats an earlier one.
func merge(candidates []crawler.ListingItem, outcomes []detailOutcome) []crawler.Exhibition {
	out := make([]crawler.Exhibition, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		ex := crawler.Exhibition{Title: c.Title, URL: c.Href, StartDate: c.DateText}
		if outcomes[i].page.Status == PageOK {
			overlay(&ex, outcomes[i].record)
		}
		if strings.TrimSpace(ex.Title) == "" {
			continue
		}
		if key := normalize.NormalizeKey(ex.Title); key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, ex)
	}
	return out
}

func overlay(ex *crawler.Exhibition, rec crawler.DetailRecord) {
	if v := strings.TrimSpace(rec.Title); v != "" {
		ex.Title = v
	}
	if v := strings.TrimSpace(rec.MainArtist); v != "" {
		ex.MainArtist = v
	}
	if len(rec.OtherArtists) > 0 {
		ex.OtherArtists = append([]string(nil), rec.OtherArtists...)
	}
	if v := strings.TrimSpace(rec.StartDate); v != "" {
		ex.StartDate = v
	}
	if v := strings.TrimSpace(rec.EndDate); v != "" {
		ex.EndDate = v
	}
	if v := strings.TrimSpace(rec.Summary); v != "" {
		ex.Summary = v
	}
	if v := strings.TrimSpace(rec.URL); v != "" {
		ex.URL = v
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
