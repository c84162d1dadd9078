// Package collyfetcher implements the plain HTTP fetch tiers using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// Tier names for the two transports.
const (
	TierHTTP2 = "http2"
	TierHTTP1 = "http1"
)

// defaultAccept mirrors what a desktop browser sends for documents.
const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// HTTP1Only disables HTTP/2 negotiation, for servers that reset h2 streams.
	HTTP1Only   bool
	MaxBodySize int
}

// Fetcher is one HTTP tier backed by a Colly collector.
type Fetcher struct {
	cfg           Config
	name          string
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport(cfg.HTTP1Only))
	c.SetRequestTimeout(cfg.Timeout)

	name := TierHTTP2
	if cfg.HTTP1Only {
		name = TierHTTP1
	}
	return &Fetcher{cfg: cfg, name: name, baseCollector: c}
}

// Name reports the tier label.
func (f *Fetcher) Name() string {
	return f.name
}

// Fetch executes a single GET, following redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.RawPage, error) {
	var (
		page     crawler.RawPage
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, url, &page, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return crawler.RawPage{}, err
	}
	if kind := crawler.ClassifyStatus(page.StatusCode); kind != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: f.name, StatusCode: page.StatusCode, Kind: kind}
	}
	if crawler.IsChallengePage(page.Body) {
		return crawler.RawPage{}, &crawler.FetchError{
			URL:        url,
			Tier:       f.name,
			StatusCode: page.StatusCode,
			Kind:       crawler.ErrBlocked,
			Err:        errors.New("anti-bot challenge page"),
		}
	}
	return page, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	url string,
	page *crawler.RawPage,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", defaultAccept)
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := url
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*page = crawler.RawPage{
			URL:        url,
			FinalURL:   finalURL,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		*fetchErr = f.wrap(url, status, err)
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return &crawler.FetchError{
			URL:  url,
			Tier: f.name,
			Kind: crawler.ErrTransient,
			Err:  fmt.Errorf("colly fetch canceled: %w", ctx.Err()),
		}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return f.wrap(url, 0, fmt.Errorf("colly visit failed: %w", err))
		}
		return nil
	}
}

// wrap classifies a Colly error. A zero status means the request never got
// a response, which is treated as transient.
func (f *Fetcher) wrap(url string, status int, err error) error {
	kind := crawler.ClassifyStatus(status)
	if status == 0 {
		kind = crawler.ErrTransient
		if errors.Is(err, context.Canceled) {
			kind = nil
		}
	}
	return &crawler.FetchError{URL: url, Tier: f.name, StatusCode: status, Kind: kind, Err: err}
}

func newHTTPTransport(http1Only bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     !http1Only,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if http1Only {
		t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return t
}
