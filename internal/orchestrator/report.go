package orchestrator

import "github.com/JakeFAU/exhibitions-crawler/internal/crawler"

// PageStatus tags the outcome of one detail page.
type PageStatus string

// Detail page outcomes.
const (
	PageOK         PageStatus = "ok"
	PageFetchError PageStatus = "fetch_error"
	PageLLMError   PageStatus = "llm_error"
	PageSkipped    PageStatus = "skipped"
	PagePanic      PageStatus = "panic"
)

// PageReport is the diagnostic record of one detail page.
type PageReport struct {
	Status    PageStatus `json:"status"`
	FetchMS   float64    `json:"t_fetch_ms,omitempty"`
	LLMMS     float64    `json:"t_llm_ms,omitempty"`
	HTMLChars int        `json:"html_chars,omitempty"`
	TextChars int        `json:"text_chars,omitempty"`
	FromCache bool       `json:"from_cache,omitempty"`
	Tier      string     `json:"tier,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorKind string     `json:"error_type,omitempty"`
}

// Counts summarise a site run.
type Counts struct {
	Todo    int `json:"todo"`
	Scraped int `json:"scraped"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Unique  int `json:"unique"`
}

// Timing is the wall-clock breakdown of a site run in milliseconds.
type Timing struct {
	ListingFetchMS float64 `json:"listing_fetch"`
	ListingLLMMS   float64 `json:"listing_llm"`
	DetailsMS      float64 `json:"details_fetch"`
	OverallMS      float64 `json:"overall"`
}

// Report describes one orchestrated site run.
type Report struct {
	Site       string                `json:"site"`
	ListingURL string                `json:"listing_url"`
	Pagers     []string              `json:"pagers,omitempty"`
	Counts     Counts                `json:"counts"`
	Timing     Timing                `json:"timing_ms"`
	Pages      map[string]PageReport `json:"per_page"`
}

// Result is the merged, deduplicated output of a site run.
type Result struct {
	Exhibitions []crawler.Exhibition `json:"exhibitions"`
	Report      Report               `json:"summary"`
}
