// Package extract turns condensed listing and detail pages into candidate
// exhibition records using a JSON-returning language model.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/metrics"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
)

// Completer returns a JSON object for a prompt.
type Completer interface {
	CompleteJSON(ctx context.Context, model, prompt string) (json.RawMessage, error)
}

// Config tunes prompt sizes and concurrency.
type Config struct {
	ListingModel     string
	DetailModel      string
	MaxInFlight      int
	ListingAnchors   int
	ListingTextChars int
	DetailTextChars  int
}

func (c Config) withDefaults() Config {
	if c.ListingModel == "" {
		c.ListingModel = "gpt-5-mini"
	}
	if c.DetailModel == "" {
		c.DetailModel = c.ListingModel
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 8
	}
	if c.ListingAnchors <= 0 {
		c.ListingAnchors = 80
	}
	if c.ListingTextChars <= 0 {
		c.ListingTextChars = 8000
	}
	if c.DetailTextChars <= 0 {
		c.DetailTextChars = 10000
	}
	return c
}

// LLMExtractor implements crawler.Extractor.
type LLMExtractor struct {
	cfg    Config
	llm    Completer
	sem    *semaphore.Weighted
	logger *zap.Logger
}

// New builds an extractor. At most cfg.MaxInFlight model calls run at once
// across all callers.
func New(cfg Config, llm Completer, logger *zap.Logger) *LLMExtractor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		cfg:    cfg,
		llm:    llm,
		sem:    semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger: logger,
	}
}

// ExtractListing returns clickable current or upcoming exhibitions. Items
// without a title or href are dropped.
func (e *LLMExtractor) ExtractListing(ctx context.Context, siteName, text string, anchors []crawler.Anchor) ([]crawler.ListingItem, error) {
	candidates := exhibitionAnchors(anchors, e.cfg.ListingAnchors)
	anchorsJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("marshal anchors: %w", err)
	}
	prompt := fmt.Sprintf(listingPrompt, siteName, normalize.Truncate(text, e.cfg.ListingTextChars), e.cfg.ListingAnchors, anchorsJSON)

	raw, err := e.call(ctx, "listing", e.cfg.ListingModel, prompt)
	if err != nil {
		return nil, err
	}
	items, err := parseListing(raw)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("listing extracted",
		zap.String("site", siteName),
		zap.Int("anchors", len(candidates)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// ExtractDetail returns a single exhibition record for url. Output that
// fails validation degrades to a title-only record when a title survives.
func (e *LLMExtractor) ExtractDetail(ctx context.Context, siteName, text, url string) (crawler.DetailRecord, error) {
	prompt := fmt.Sprintf(detailPrompt, siteName, siteName, url, normalize.Truncate(text, e.cfg.DetailTextChars))
	raw, err := e.call(ctx, "detail", e.cfg.DetailModel, prompt)
	if err != nil {
		return crawler.DetailRecord{}, err
	}
	rec, err := parseDetail(raw, url)
	if err != nil {
		return crawler.DetailRecord{}, fmt.Errorf("detail %s: %w", url, err)
	}
	return rec, nil
}

func (e *LLMExtractor) call(ctx context.Context, op, model, prompt string) (json.RawMessage, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for extraction slot: %w", err)
	}
	defer e.sem.Release(1)

	start := time.Now()
	raw, err := e.llm.CompleteJSON(ctx, model, prompt)
	metrics.ObserveExtraction(op, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s extraction: %w", op, err)
	}
	return raw, nil
}

func exhibitionAnchors(anchors []crawler.Anchor, limit int) []crawler.Anchor {
	out := make([]crawler.Anchor, 0, min(limit, len(anchors)))
	for _, a := range anchors {
		if a.Kind != crawler.AnchorExhibition {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

const listingPrompt = `You are given condensed page TEXT and candidate exhibition ANCHORS from the museum listing page for %q.

Return ONLY current or upcoming exhibitions that a visitor can click into (ignore Events, Calendar, Membership, News).
Extract from the ANCHORS primarily; use TEXT only when it clarifies titles/dates.

Output JSON:
{"items":[{"title": "...", "href":"...", "date_text":"..."}]}

TEXT (truncated):
%s

ANCHORS (top %d):
%s
`

const detailPrompt = `Extract a single exhibition record for museum %q from the following TEXT.
Be concise; if a field is unknown leave it null. Dates should be explicit like "9 October 2025".

Output JSON:
{
  "title": "...",
  "main_artist": "... or null",
  "other_artists": ["..."] or [],
  "start_date": "... or null",
  "end_date": "... or null",
  "museum": %q,
  "details": "1-2 sentence summary or null",
  "url": %q
}

TEXT (truncated):
%s
`

func blankish(s string) string {
	s = normalize.CleanText(s)
	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown", "-":
		return ""
	}
	return s
}
