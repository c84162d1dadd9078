// Package detector decides when a page served by a plain HTTP tier is an
// unrendered script shell that needs the browser tier.
package detector

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

const (
	defaultThreshold    = 2048
	defaultMinLinks     = 5
	defaultMinTextRunes = 200
)

// mountSelector matches the root nodes SPA frameworks render into.
const mountSelector = `#__next, #root, #app, #___gatsby, #__nuxt, app-root, [data-reactroot], [ng-app]`

// gridSelector matches the containers galleries fill with exhibition cards
// from a JSON endpoint.
const gridSelector = `[class*="exhibition"], [id*="exhibition"], [class*="event-list"], ` +
	`[class*="listing"], [class*="cards"], [data-exhibitions], [data-endpoint], [data-api]`

var notices = []string{
	"you need to enable javascript",
	"please enable javascript",
	"javascript is required",
	"requires javascript",
}

// Heuristic flags script shells. Bodies shorter than BodyLengthThreshold
// are checked for script density; any page with scripts and less than
// MinTextRunes of visible text is a shell; an empty exhibition grid on a
// page with fewer than MinListingLinks links is one too.
type Heuristic struct {
	BodyLengthThreshold int
	MinListingLinks     int
	MinTextRunes        int
}

// NewHeuristic creates a detector with the given small-body threshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{
		BodyLengthThreshold: threshold,
		MinListingLinks:     defaultMinLinks,
		MinTextRunes:        defaultMinTextRunes,
	}
}

// NeedsRender reports whether page should be fetched again with a browser.
func (h *Heuristic) NeedsRender(page crawler.RawPage) bool {
	if page.StatusCode != 0 && page.StatusCode != 200 {
		return false
	}
	body := bytes.TrimSpace(page.Body)
	if len(body) == 0 {
		return true
	}
	lower := strings.ToLower(string(body))
	for _, n := range notices {
		if strings.Contains(lower, n) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find(mountSelector).FilterFunction(isEmpty).Length() > 0 {
		return true
	}

	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	if len(body) < h.BodyLengthThreshold && scriptBytes*100/len(body) >= 25 {
		return true
	}

	doc.Find("script, style, noscript, template").Remove()
	visible := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if scripts.Length() > 0 && utf8.RuneCountInString(visible) < h.MinTextRunes {
		return true
	}

	emptyGrids := doc.Find(gridSelector).FilterFunction(isEmpty).Length()
	return emptyGrids > 0 && doc.Find("a[href]").Length() < h.MinListingLinks
}

// isEmpty is true for a node with no child elements and no text.
func isEmpty(_ int, s *goquery.Selection) bool {
	return s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == ""
}
