package crawler

import "time"

// AnchorKind classifies a link found in the main content region.
type AnchorKind string

// Anchor kinds assigned by the condenser.
const (
	AnchorExhibition AnchorKind = "exhibition"
	AnchorEvent      AnchorKind = "event"
	AnchorOther      AnchorKind = "other"
)

// Anchor is an absolute link with its visible text and classification.
type Anchor struct {
	Href    string     `json:"href"`
	Text    string     `json:"text"`
	Context string     `json:"context,omitempty"`
	Kind    AnchorKind `json:"kind"`
	Pager   bool       `json:"pager"`
}

// FetchResult is the HTML produced by one tier of the fetch chain.
type FetchResult struct {
	URL       string        `json:"url"`
	HTML      string        `json:"-"`
	FromCache bool          `json:"from_cache"`
	Tier      string        `json:"tier"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Condensed is the bounded text and anchors reduced from a page.
type Condensed struct {
	Text      string   `json:"text"`
	Anchors   []Anchor `json:"anchors"`
	HTMLChars int      `json:"html_chars"`
	TextChars int      `json:"text_chars"`
}

// BundleTiming reports where the time went while condensing one URL.
type BundleTiming struct {
	FetchMS    float64 `json:"t_fetch_ms"`
	CondenseMS float64 `json:"t_condense_ms"`
	TotalMS    float64 `json:"t_total_ms"`
	FromCache  bool    `json:"from_cache"`
	Tier       string  `json:"tier"`
}

// Bundle is a condensed page plus its fetch timing.
type Bundle struct {
	URL string `json:"url"`
	Condensed
	Timing BundleTiming `json:"timing"`
}

// ListingItem is a candidate exhibition found on a listing page.
type ListingItem struct {
	Title    string `json:"title"`
	Href     string `json:"href"`
	DateText string `json:"date_text,omitempty"`
}

// DetailRecord is the structured output of detail extraction.
type DetailRecord struct {
	Title        string   `json:"title"`
	MainArtist   string   `json:"main_artist,omitempty"`
	OtherArtists []string `json:"other_artists,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	URL          string   `json:"url"`
}

// Exhibition is the merged record handed to the store. Date fields hold the
// raw text; the store derives ISO dates from them.
type Exhibition struct {
	Title        string   `json:"title"`
	URL          string   `json:"url,omitempty"`
	MainArtist   string   `json:"main_artist,omitempty"`
	OtherArtists []string `json:"other_artists,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

// SiteRef identifies a site for orchestration and persistence.
type SiteRef struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Country string `json:"country"`
	URL     string `json:"url"`
}

// RawPage is what a single network tier returned for a URL.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	// Partial is set when the browser tier timed out waiting for readiness
	// and returned the DOM it had at that point.
	Partial bool
}
