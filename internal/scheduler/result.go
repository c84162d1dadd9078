package scheduler

import "time"

// Status is the outcome of a site crawl or batch.
type Status string

// Statuses.
const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusUpToDate Status = "up_to_date"
)

// Error types reported beside the taxonomy labels from crawler.ErrorKind.
const (
	ErrorTypePanic     = "panic"
	ErrorTypeTimeout   = "timeout"
	ErrorTypeCancelled = "cancelled"
	ErrorTypeStore     = "store"
)

// SiteResult is the structured outcome of one site crawl.
type SiteResult struct {
	Status          Status        `json:"status"`
	Site            string        `json:"site"`
	City            string        `json:"city"`
	Error           string        `json:"error,omitempty"`
	ErrorType       string        `json:"error_type,omitempty"`
	ExhibitionCount int           `json:"exhibition_count"`
	Duration        time.Duration `json:"duration"`
}

// BatchResult aggregates a run over many sites.
type BatchResult struct {
	RunID        string        `json:"run_id"`
	Status       Status        `json:"status"`
	Sites        []SiteResult  `json:"sites"`
	SitesCrawled int           `json:"sites_crawled"`
	SitesFailed  int           `json:"sites_failed"`
	Duration     time.Duration `json:"duration"`
}

// Event is published after every site crawl.
type Event struct {
	RunID           string `json:"run_id"`
	Site            string `json:"site"`
	City            string `json:"city"`
	Status          Status `json:"status"`
	ExhibitionCount int    `json:"exhibition_count"`
	Error           string `json:"error,omitempty"`
}
