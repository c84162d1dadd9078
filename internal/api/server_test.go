package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/scheduler"
)

func TestServer_CrawlDueAccepted(t *testing.T) {
	t.Parallel()

	trigger := &fakeTrigger{runID: "run-7"}
	server := NewServer(trigger, nil, Config{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/due", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"run_id":"run-7"}`, rec.Body.String())
	require.Equal(t, 1, trigger.dueCalls)
}

func TestServer_CrawlSiteMapsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "unknown", err: fmt.Errorf("lookup site: %w", crawler.ErrSiteUnknown), status: http.StatusNotFound},
		{name: "running", err: scheduler.ErrAlreadyRunning, status: http.StatusConflict},
		{name: "broken", err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			trigger := &fakeTrigger{runID: "run-1", err: tc.err}
			server := NewServer(trigger, nil, Config{}, zap.NewNop())
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/crawl/sites/Tate%20Modern", nil)
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "Tate Modern", trigger.lastSite())
		})
	}
}

func TestServer_ReadyzPingsStore(t *testing.T) {
	t.Parallel()

	pinger := &fakePinger{}
	server := NewServer(&fakeTrigger{}, pinger, Config{}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	pinger.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeTrigger{}, nil, Config{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeTrigger{runID: "run-1"}, nil, Config{APIKey: "secret"}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/due", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/crawl/due", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeTrigger{}, nil, Config{}, zap.NewNop())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.client.Close())
}

type fakeTrigger struct {
	mu       sync.Mutex
	runID    string
	err      error
	dueCalls int
	site     string
}

func (f *fakeTrigger) TriggerDue(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dueCalls++
	return f.runID, f.err
}

func (f *fakeTrigger) TriggerSite(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.site = name
	return f.runID, f.err
}

func (f *fakeTrigger) lastSite() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.site
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}
