package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

func newMuseumServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/whats-on", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "test-agent/1.0" {
			http.Error(w, "bad agent", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("<html><body><main><h1>Now showing</h1></main></body></html>"))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/whats-on", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>Just a moment...</title></head></html>"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("<html>late</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcherReturnsBodyAndFollowsRedirects(t *testing.T) {
	t.Parallel()

	srv := newMuseumServer(t)
	f := New(Config{UserAgent: "test-agent/1.0", Timeout: time.Second})
	require.Equal(t, TierHTTP2, f.Name())

	page, err := f.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "Now showing")
}

func TestFetcherClassifiesFailures(t *testing.T) {
	t.Parallel()

	srv := newMuseumServer(t)
	f := New(Config{UserAgent: "test-agent/1.0", Timeout: time.Second, HTTP1Only: true})
	require.Equal(t, TierHTTP1, f.Name())

	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = f.Fetch(context.Background(), srv.URL+"/forbidden")
	require.ErrorIs(t, err, crawler.ErrBlocked)
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusForbidden, fe.StatusCode)
	require.Equal(t, TierHTTP1, fe.Tier)

	_, err = f.Fetch(context.Background(), srv.URL+"/challenge")
	require.ErrorIs(t, err, crawler.ErrBlocked)
}

func TestFetcherTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	srv := newMuseumServer(t)
	f := New(Config{Timeout: 50 * time.Millisecond})

	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	require.ErrorIs(t, err, crawler.ErrTransient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(Config{Timeout: time.Second}).Fetch(ctx, srv.URL+"/slow")
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var page crawler.RawPage
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, "https://museum.example/a", &page, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	require.Equal(t, defaultAccept, req.Headers.Get("Accept"))

	final, err := url.Parse("https://museum.example/b")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: final},
	})
	require.Equal(t, "https://museum.example/b", page.FinalURL)
	require.Equal(t, "body", string(page.Body))

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.ErrorIs(t, fetchErr, crawler.ErrNotFound)

	hooks.onError(nil, errors.New("connection reset by peer"))
	require.ErrorIs(t, fetchErr, crawler.ErrTransient)
}

func TestHTTP1TransportDisablesNegotiation(t *testing.T) {
	t.Parallel()

	h1 := newHTTPTransport(true)
	require.False(t, h1.ForceAttemptHTTP2)
	require.NotNil(t, h1.TLSNextProto)
	require.Empty(t, h1.TLSNextProto)

	h2 := newHTTPTransport(false)
	require.True(t, h2.ForceAttemptHTTP2)
	require.Nil(t, h2.TLSNextProto)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }
