// Package condense reduces museum pages to a bounded text summary plus
// classified links, the input the extraction step works from.
package condense

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
)

// Config bounds the condensed output.
type Config struct {
	TextBudget      int
	MaxAnchors      int
	AnchorTextLimit int
	ContextLimit    int
	ContextMinChars int
	ContextHops     int
}

// DefaultConfig returns the limits used in production.
func DefaultConfig() Config {
	return Config{
		TextBudget:      16000,
		MaxAnchors:      1000,
		AnchorTextLimit: 180,
		ContextLimit:    240,
		ContextMinChars: 40,
		ContextHops:     4,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TextBudget <= 0 {
		c.TextBudget = def.TextBudget
	}
	if c.MaxAnchors <= 0 {
		c.MaxAnchors = def.MaxAnchors
	}
	if c.AnchorTextLimit <= 0 {
		c.AnchorTextLimit = def.AnchorTextLimit
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = def.ContextLimit
	}
	if c.ContextMinChars <= 0 {
		c.ContextMinChars = def.ContextMinChars
	}
	if c.ContextHops <= 0 {
		c.ContextHops = def.ContextHops
	}
	return c
}

// mainSelectors are tried in order to find the main content region.
var mainSelectors = []string{
	"main",
	"#content",
	"#swup",
	"[role=main]",
	"article",
	".content",
	".exhibitions",
	"#exhibitions",
}

const (
	noiseSelector = "script, style, noscript, template, svg, iframe, object, embed, link, i[class*=icon]"
	textSelector  = "h1, h2, h3, h4, p, li, time, figcaption, dt, dd, em, strong, span"
)

var metaSelectors = []string{
	`meta[property="og:description"]`,
	`meta[name="twitter:description"]`,
	`meta[name="description"]`,
}

// Condenser implements crawler.Condenser over a Fetcher.
type Condenser struct {
	cfg     Config
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// New builds a Condenser.
func New(cfg Config, fetcher crawler.Fetcher, logger *zap.Logger) *Condenser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Condenser{cfg: cfg.withDefaults(), fetcher: fetcher, logger: logger}
}

// Fetch returns the page HTML through the fetch chain.
func (c *Condenser) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	if c.fetcher == nil {
		return crawler.FetchResult{}, fmt.Errorf("condenser has no fetcher")
	}
	res, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return crawler.FetchResult{}, fmt.Errorf("fetch page: %w", err)
	}
	return res, nil
}

// CondenseURL fetches url and condenses it, recording timings.
func (c *Condenser) CondenseURL(ctx context.Context, url string) (crawler.Bundle, error) {
	res, err := c.Fetch(ctx, url)
	if err != nil {
		return crawler.Bundle{}, err
	}
	start := time.Now()
	condensed, err := c.Condense(res.HTML, url)
	if err != nil {
		return crawler.Bundle{}, err
	}
	condenseElapsed := time.Since(start)

	c.logger.Debug("condensed page",
		zap.String("url", url),
		zap.String("tier", res.Tier),
		zap.Bool("from_cache", res.FromCache),
		zap.Int("html_chars", condensed.HTMLChars),
		zap.Int("text_chars", condensed.TextChars),
		zap.Int("anchors", len(condensed.Anchors)),
	)
	return crawler.Bundle{
		URL:       url,
		Condensed: condensed,
		Timing: crawler.BundleTiming{
			FetchMS:    millis(res.Elapsed),
			CondenseMS: millis(condenseElapsed),
			TotalMS:    millis(res.Elapsed + condenseElapsed),
			FromCache:  res.FromCache,
			Tier:       res.Tier,
		},
	}, nil
}

// Condense parses html and extracts text and anchors from its main region.
// Relative links resolve against baseURL.
func (c *Condenser) Condense(html, baseURL string) (crawler.Condensed, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawler.Condensed{}, fmt.Errorf("parse html: %w", err)
	}
	meta := metaDescriptions(doc)
	doc.Find(noiseSelector).Remove()

	region := chooseMain(doc)
	anchors, err := c.anchors(region, baseURL)
	if err != nil {
		return crawler.Condensed{}, err
	}
	text := c.text(region, meta)
	return crawler.Condensed{
		Text:      text,
		Anchors:   anchors,
		HTMLChars: len([]rune(html)),
		TextChars: len([]rune(text)),
	}, nil
}

func chooseMain(doc *goquery.Document) *goquery.Selection {
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	for _, sel := range mainSelectors {
		if node := root.Find(sel).First(); node.Length() > 0 {
			return node
		}
	}
	return root
}

func metaDescriptions(doc *goquery.Document) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, sel := range metaSelectors {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		content = normalize.CleanText(content)
		if content == "" {
			continue
		}
		if _, dup := seen[content]; dup {
			continue
		}
		seen[content] = struct{}{}
		out = append(out, content)
	}
	return out
}

// text walks the allow-listed tags in document order. Repeated lines, which
// come from nested allowed tags, are kept once.
func (c *Condenser) text(region *goquery.Selection, meta []string) string {
	budget := c.cfg.TextBudget
	lines := append([]string(nil), meta...)
	seen := make(map[string]struct{}, len(meta))
	for _, m := range meta {
		seen[m] = struct{}{}
	}
	count := 0
	for _, l := range lines {
		count += len([]rune(l)) + 1
	}
	found := false
	region.Find(textSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := normalize.CleanText(spacedText(s))
		if t == "" {
			return true
		}
		found = true
		if _, dup := seen[t]; dup {
			return true
		}
		seen[t] = struct{}{}
		lines = append(lines, t)
		count += len([]rune(t)) + 1
		return count < budget
	})
	if !found {
		lines = append(lines, normalize.CleanText(spacedText(region)))
	}
	return normalize.Truncate(strings.TrimSpace(strings.Join(lines, "\n")), budget)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
