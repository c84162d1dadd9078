// Package fetcher chains the page acquisition tiers: the on-disk cache, the
// plain HTTP tiers in order, and finally the browser. The first tier that
// yields usable HTML wins, and network results are written back to the cache.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/metrics"
)

// TierCache labels results served from the page cache.
const TierCache = "cache"

// Tier is one network strategy for retrieving a page.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, url string) (crawler.RawPage, error)
}

// Limiter spaces out requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Wait(ctx context.Context, attempt int) error
}

// Promoter flags plain-tier pages that only render in a browser.
type Promoter interface {
	NeedsRender(page crawler.RawPage) bool
}

// Options wires the chain. Everything except Tiers is optional.
type Options struct {
	Cache    crawler.PageCache
	Tiers    []Tier
	Browser  Tier
	Promoter Promoter
	Limiter  Limiter
	Retry    RetryPolicy
	Logger   *zap.Logger
}

// Chain implements crawler.Fetcher.
type Chain struct {
	cache    crawler.PageCache
	tiers    []Tier
	browser  Tier
	promoter Promoter
	limiter  Limiter
	retry    RetryPolicy
	logger   *zap.Logger
}

// New builds a Chain.
func New(opts Options) *Chain {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		cache:    opts.Cache,
		tiers:    opts.Tiers,
		browser:  opts.Browser,
		promoter: opts.Promoter,
		limiter:  opts.Limiter,
		retry:    opts.Retry,
		logger:   logger,
	}
}

// Fetch returns the HTML for url from the first tier that can serve it.
// Not-found is terminal. A blocked response skips the remaining plain tiers
// and goes straight to the browser. A plain page the promoter flags as a
// script shell is re-fetched with the browser and kept if the browser fails.
func (c *Chain) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	start := time.Now()
	if html, ok := c.fromCache(ctx, url); ok {
		return crawler.FetchResult{URL: url, HTML: html, FromCache: true, Tier: TierCache, Elapsed: time.Since(start)}, nil
	}

	var errs []error
	for _, tier := range c.tiers {
		page, err := c.attempt(ctx, tier, url)
		if err == nil {
			return c.promote(ctx, url, tier.Name(), page, start), nil
		}
		errs = append(errs, err)
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.FetchResult{}, err
		}
		if ctx.Err() != nil {
			return crawler.FetchResult{}, fmt.Errorf("fetch %s: %w", url, errors.Join(errs...))
		}
		if errors.Is(err, crawler.ErrBlocked) {
			break
		}
		c.logger.Debug("fetch tier failed, escalating",
			zap.String("url", url),
			zap.String("tier", tier.Name()),
			zap.Error(err),
		)
	}

	if c.browser != nil {
		c.logger.Info("falling back to browser tier", zap.String("url", url))
		page, err := c.attemptOnce(ctx, c.browser, url)
		if err == nil {
			return c.accept(ctx, url, c.browser.Name(), page, start), nil
		}
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.FetchResult{}, err
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return crawler.FetchResult{}, fmt.Errorf("fetch %s: no fetch tiers configured", url)
	}
	return crawler.FetchResult{}, fmt.Errorf("fetch %s: all tiers failed: %w", url, errors.Join(errs...))
}

func (c *Chain) promote(ctx context.Context, url, tier string, page crawler.RawPage, start time.Time) crawler.FetchResult {
	if c.browser == nil || c.promoter == nil || !c.promoter.NeedsRender(page) {
		return c.accept(ctx, url, tier, page, start)
	}
	c.logger.Info("page looks like a script shell, rendering in browser",
		zap.String("url", url),
		zap.String("tier", tier),
	)
	rendered, err := c.attemptOnce(ctx, c.browser, url)
	if err != nil {
		c.logger.Warn("browser render failed, keeping plain page", zap.String("url", url), zap.Error(err))
		return c.accept(ctx, url, tier, page, start)
	}
	return c.accept(ctx, url, c.browser.Name(), rendered, start)
}

func (c *Chain) fromCache(ctx context.Context, url string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	html, ok, err := c.cache.Get(ctx, url)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("url", url), zap.Error(err))
		return "", false
	}
	ok = ok && len(bytes.TrimSpace([]byte(html))) > 0
	metrics.ObserveCacheLookup(ok)
	return html, ok
}

func (c *Chain) attempt(ctx context.Context, tier Tier, url string) (crawler.RawPage, error) {
	for attempt := 1; ; attempt++ {
		page, err := c.attemptOnce(ctx, tier, url)
		if err == nil {
			return page, nil
		}
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			return crawler.RawPage{}, err
		}
		c.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.String("tier", tier.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if waitErr := c.retry.Wait(ctx, attempt); waitErr != nil {
			return crawler.RawPage{}, err
		}
	}
}

func (c *Chain) attemptOnce(ctx context.Context, tier Tier, url string) (crawler.RawPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: tier.Name(), Kind: crawler.ErrTransient, Err: err}
		}
	}
	page, err := tier.Fetch(ctx, url)
	if err == nil && len(bytes.TrimSpace(page.Body)) == 0 {
		err = &crawler.FetchError{URL: url, Tier: tier.Name(), StatusCode: page.StatusCode, Kind: crawler.ErrEmptyBody}
	}
	outcome := "ok"
	if err != nil {
		outcome = crawler.ErrorKind(err)
	}
	metrics.ObserveFetch(tier.Name(), outcome, len(page.Body))
	return page, err
}

func (c *Chain) accept(ctx context.Context, url, tier string, page crawler.RawPage, start time.Time) crawler.FetchResult {
	html := string(page.Body)
	if c.cache != nil {
		if err := c.cache.Put(ctx, url, html); err != nil {
			c.logger.Warn("cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return crawler.FetchResult{URL: url, HTML: html, Tier: tier, Elapsed: time.Since(start)}
}
