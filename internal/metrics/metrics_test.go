package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Museum.example/whats-on", "museum.example"},
		{"no scheme", "museum.example/path", "museum.example"},
		{"host with port", "museum.example:8080", "museum.example"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserversAreUsableWithoutExplicitInit(t *testing.T) {
	ObserveFetch("http2", "ok", 512)
	ObserveCacheLookup(true)
	ObserveDetailPage("ok")
	ObserveExtraction("detail", errors.New("bad json"), time.Second)
	ObserveSiteCrawl("success", 3, time.Minute)
	IncActiveSiteCrawls()
	DecActiveSiteCrawls()
	ObserveRateLimitDelay("museum.example", 10*time.Millisecond)
	ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)

	require.GreaterOrEqual(t, testutil.ToFloat64(fetchesTotal.WithLabelValues("http2", "ok")), float64(1))
	require.GreaterOrEqual(t, testutil.ToFloat64(exhibitionsSavedTotal), float64(3))
}

func TestHandlerServesCollectors(t *testing.T) {
	ObserveDetailPage("fetch_error")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "exhibitions_detail_pages_total")
}
