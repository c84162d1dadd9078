package condense

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/normalize"
)

var (
	eventPattern = regexp.MustCompile(`\bevents?\b`)
	// Bare pager controls: "Previous", "2", "Page 3", "»".
	pagerControl = regexp.MustCompile(`(?i)^(?:(?:‹|«|←|<)\s*)?(?:previous(?: page)?|prev|page \d+|\d{1,3})?\s*(?:›|»|→|>)?$`)
	// Pager words anywhere in the text: "Next", "See more exhibitions",
	// "View all exhibitions". "Previous exhibitions" is an archive link.
	pagerWords = regexp.MustCompile(`(?i)\b(?:next|more|see all|view all|load more|older|newer)\b`)
	// Card links that read "Read more" open the detail page.
	detailMore = regexp.MustCompile(`(?i)\b(?:read|find out|learn|discover)\s+more\b`)
)

type anchorKey struct {
	href string
	text string
}

func (c *Condenser) anchors(region *goquery.Selection, baseURL string) ([]crawler.Anchor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	out := make([]crawler.Anchor, 0, 32)
	seen := make(map[anchorKey]struct{})
	region.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		rawHref, _ := a.Attr("href")
		text := normalize.Truncate(normalize.CleanText(spacedText(a)), c.cfg.AnchorTextLimit)
		if text == "" {
			text = normalize.Truncate(normalize.CleanText(a.AttrOr("aria-label", a.AttrOr("title", ""))), c.cfg.AnchorTextLimit)
		}
		if text == "" {
			return true
		}
		href, ok := resolve(base, rawHref)
		if !ok {
			return true
		}
		lowerText := strings.ToLower(text)
		if !sameHost(href, base) && !strings.Contains(lowerText, "exhibition") {
			return true
		}
		key := anchorKey{href: href.String(), text: lowerText}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}

		anchor := crawler.Anchor{
			Href:    key.href,
			Text:    text,
			Context: c.nearestContext(a),
		}
		anchor.Kind = classify(anchor)
		anchor.Pager = isPager(a, text)
		out = append(out, anchor)
		return len(out) < c.cfg.MaxAnchors
	})
	return out, nil
}

func resolve(base *url.URL, raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil, false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	abs.Fragment = ""
	return abs, true
}

func sameHost(u, base *url.URL) bool {
	return strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www."))
}

// nearestContext returns the text of the closest ancestor, within a few
// hops, that carries enough text to describe the link.
func (c *Condenser) nearestContext(a *goquery.Selection) string {
	node := a.Parent()
	for hops := 0; hops < c.cfg.ContextHops && node.Length() > 0; hops++ {
		t := normalize.CleanText(spacedText(node))
		if len([]rune(t)) >= c.cfg.ContextMinChars {
			return normalize.Truncate(t, c.cfg.ContextLimit)
		}
		node = node.Parent()
	}
	return ""
}

// spacedText is Selection.Text with a space between text nodes, so
// "<h3>Lilies</h3><p>Exhibition</p>" reads "Lilies Exhibition".
func spacedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				b.WriteString(child.Text())
				b.WriteByte(' ')
				return
			}
			walk(child)
		})
	}
	walk(sel)
	return b.String()
}

func classify(a crawler.Anchor) crawler.AnchorKind {
	text := strings.ToLower(a.Text + " " + a.Context)
	href := strings.ToLower(a.Href)
	isEvent := strings.Contains(href, "calendar") || eventPattern.MatchString(text)
	isExhibition := strings.Contains(text, "exhibit") || strings.Contains(href, "/exhibition")
	switch {
	case isExhibition && !isEvent:
		return crawler.AnchorExhibition
	case isEvent:
		return crawler.AnchorEvent
	default:
		return crawler.AnchorOther
	}
}

func isPager(a *goquery.Selection, text string) bool {
	for _, rel := range strings.Fields(strings.ToLower(a.AttrOr("rel", ""))) {
		if rel == "next" {
			return true
		}
	}
	if text == "" || detailMore.MatchString(text) {
		return false
	}
	return pagerControl.MatchString(text) || pagerWords.MatchString(text)
}
