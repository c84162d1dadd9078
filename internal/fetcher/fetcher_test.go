package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/headless/detector"
	"github.com/JakeFAU/exhibitions-crawler/internal/policy/retry"
)

const pageURL = "https://museum.example/whats-on"

type fakeTier struct {
	name    string
	mu      sync.Mutex
	results []tierResult
	calls   int
}

type tierResult struct {
	body string
	err  error
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) Fetch(_ context.Context, url string) (crawler.RawPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	res := f.results[idx]
	if res.err != nil {
		return crawler.RawPage{}, res.err
	}
	return crawler.RawPage{URL: url, StatusCode: 200, Body: []byte(res.body)}, nil
}

func (f *fakeTier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu    sync.Mutex
	pages map[string]string
	puts  int
}

func newFakeCache() *fakeCache { return &fakeCache{pages: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, url string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	html, ok := c.pages[url]
	return html, ok, nil
}

func (c *fakeCache) Put(_ context.Context, url, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[url] = html
	c.puts++
	return nil
}

func kindErr(tier string, kind error) error {
	return &crawler.FetchError{URL: pageURL, Tier: tier, Kind: kind}
}

func fastRetry() *retry.ExponentialPolicy {
	return retry.NewExponentialPolicy(retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestChainServesFromCacheFirst(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.pages[pageURL] = "<html>cached</html>"
	h2 := &fakeTier{name: "http2", results: []tierResult{{body: "<html>net</html>"}}}

	chain := New(Options{Cache: cache, Tiers: []Tier{h2}, Logger: zap.NewNop()})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, TierCache, res.Tier)
	require.Equal(t, "<html>cached</html>", res.HTML)
	require.Zero(t, h2.Calls())
}

func TestChainWritesNetworkResultToCache(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	h2 := &fakeTier{name: "http2", results: []tierResult{{body: "<html>net</html>"}}}

	chain := New(Options{Cache: cache, Tiers: []Tier{h2}})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, "http2", res.Tier)
	require.Equal(t, "<html>net</html>", cache.pages[pageURL])
}

func TestChainRetriesTransientThenFallsBackToHTTP1(t *testing.T) {
	t.Parallel()

	h2 := &fakeTier{name: "http2", results: []tierResult{{err: kindErr("http2", crawler.ErrTransient)}}}
	h1 := &fakeTier{name: "http1", results: []tierResult{{body: "<html>h1</html>"}}}

	chain := New(Options{Tiers: []Tier{h2, h1}, Retry: fastRetry()})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "http1", res.Tier)
	require.Equal(t, 2, h2.Calls())
	require.Equal(t, 1, h1.Calls())
}

func TestChainNotFoundIsTerminal(t *testing.T) {
	t.Parallel()

	h2 := &fakeTier{name: "http2", results: []tierResult{{err: kindErr("http2", crawler.ErrNotFound)}}}
	h1 := &fakeTier{name: "http1", results: []tierResult{{body: "<html>h1</html>"}}}
	browser := &fakeTier{name: "browser", results: []tierResult{{body: "<html>b</html>"}}}

	chain := New(Options{Tiers: []Tier{h2, h1}, Browser: browser, Retry: fastRetry()})
	_, err := chain.Fetch(context.Background(), pageURL)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.Equal(t, 1, h2.Calls())
	require.Zero(t, h1.Calls())
	require.Zero(t, browser.Calls())
}

func TestChainBlockedSkipsToBrowser(t *testing.T) {
	t.Parallel()

	h2 := &fakeTier{name: "http2", results: []tierResult{{err: kindErr("http2", crawler.ErrBlocked)}}}
	h1 := &fakeTier{name: "http1", results: []tierResult{{body: "<html>h1</html>"}}}
	browser := &fakeTier{name: "browser", results: []tierResult{{body: "<html>rendered</html>"}}}

	chain := New(Options{Tiers: []Tier{h2, h1}, Browser: browser, Retry: fastRetry()})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "browser", res.Tier)
	require.Equal(t, 1, h2.Calls())
	require.Zero(t, h1.Calls())
}

func TestChainEmptyBodyEscalates(t *testing.T) {
	t.Parallel()

	h2 := &fakeTier{name: "http2", results: []tierResult{{body: "   "}}}
	h1 := &fakeTier{name: "http1", results: []tierResult{{body: "<html>h1</html>"}}}

	chain := New(Options{Tiers: []Tier{h2, h1}, Retry: fastRetry()})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "http1", res.Tier)
	require.Equal(t, 1, h2.Calls())
}

func TestChainAllTiersFailKeepsKinds(t *testing.T) {
	t.Parallel()

	h2 := &fakeTier{name: "http2", results: []tierResult{{err: kindErr("http2", crawler.ErrBlocked)}}}
	browser := &fakeTier{name: "browser", results: []tierResult{{err: kindErr("browser", crawler.ErrTransient)}}}

	chain := New(Options{Tiers: []Tier{h2}, Browser: browser})
	_, err := chain.Fetch(context.Background(), pageURL)
	require.ErrorIs(t, err, crawler.ErrBlocked)
	require.ErrorIs(t, err, crawler.ErrTransient)
	require.Equal(t, "blocked", crawler.ErrorKind(err))
}

func TestChainWithoutTiers(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).Fetch(context.Background(), pageURL)
	require.Error(t, err)
}

func TestChainPromotesScriptShellToBrowser(t *testing.T) {
	t.Parallel()

	shell := `<html><body><div id="root"></div><script src="/bundle.js"></script></body></html>`
	h2 := &fakeTier{name: "http2", results: []tierResult{{body: shell}}}
	browser := &fakeTier{name: "browser", results: []tierResult{{body: "<html><main>rendered</main></html>"}}}
	cache := newFakeCache()

	chain := New(Options{Cache: cache, Tiers: []Tier{h2}, Browser: browser, Promoter: detector.NewHeuristic(0)})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "browser", res.Tier)
	require.Contains(t, res.HTML, "rendered")
	require.Contains(t, cache.pages[pageURL], "rendered")
}

func TestChainKeepsShellWhenBrowserFails(t *testing.T) {
	t.Parallel()

	shell := `<html><body><div id="app"></div></body></html>`
	h2 := &fakeTier{name: "http2", results: []tierResult{{body: shell}}}
	browser := &fakeTier{name: "browser", results: []tierResult{{err: kindErr("browser", crawler.ErrTransient)}}}

	chain := New(Options{Tiers: []Tier{h2}, Browser: browser, Promoter: detector.NewHeuristic(0)})
	res, err := chain.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	require.Equal(t, "http2", res.Tier)
	require.Equal(t, shell, res.HTML)
	require.Equal(t, 1, browser.Calls())
}
