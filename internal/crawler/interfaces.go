package crawler

import (
	"context"
	"time"
)

// Fetcher returns the HTML for a URL from the first tier that can serve it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Condenser reduces pages to bounded text and classified anchors.
type Condenser interface {
	CondenseURL(ctx context.Context, url string) (Bundle, error)
}

// Extractor turns condensed pages into structured candidate records.
type Extractor interface {
	ExtractListing(ctx context.Context, siteName, text string, anchors []Anchor) ([]ListingItem, error)
	ExtractDetail(ctx context.Context, siteName, text, url string) (DetailRecord, error)
}

// PageCache stores raw HTML keyed by URL.
type PageCache interface {
	Get(ctx context.Context, url string) (string, bool, error)
	Put(ctx context.Context, url, html string) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used as cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
