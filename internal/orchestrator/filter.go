package orchestrator

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// DetailFilter decides which listing candidates get a detail fetch.
type DetailFilter interface {
	Name() string
	ShouldEnrich(item crawler.ListingItem) bool
}

// Filter names accepted by NewDetailFilter.
const (
	FilterAll   = "all"
	FilterLight = "light"
)

// EnrichAll fetches every candidate.
type EnrichAll struct{}

// Name implements DetailFilter.
func (EnrichAll) Name() string { return FilterAll }

// ShouldEnrich implements DetailFilter.
func (EnrichAll) ShouldEnrich(crawler.ListingItem) bool { return true }

// LightFilter skips candidates whose listing entry already looks complete:
// a long descriptive title or a date text.
type LightFilter struct {
	MaxTitleRunes int
}

// Name implements DetailFilter.
func (LightFilter) Name() string { return FilterLight }

// ShouldEnrich implements DetailFilter.
func (f LightFilter) ShouldEnrich(item crawler.ListingItem) bool {
	if strings.TrimSpace(item.DateText) != "" {
		return false
	}
	return len([]rune(item.Title)) <= f.MaxTitleRunes
}

// NewDetailFilter returns the named strategy.
func NewDetailFilter(name string, maxTitleRunes int) (DetailFilter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FilterAll:
		return EnrichAll{}, nil
	case FilterLight:
		if maxTitleRunes <= 0 {
			maxTitleRunes = 80
		}
		return LightFilter{MaxTitleRunes: maxTitleRunes}, nil
	default:
		return nil, fmt.Errorf("unknown detail filter %q", name)
	}
}
