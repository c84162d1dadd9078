package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

func TestNewSessionIsLazyAndDefaults(t *testing.T) {
	t.Parallel()

	s := NewSession(Config{}, nil)
	require.False(t, s.Started())
	require.Equal(t, TierBrowser, s.Name())
	require.Equal(t, 45*time.Second, s.cfg.NavigationTimeout)
	require.Equal(t, "body", s.cfg.ReadySelector)
	require.Equal(t, 10*time.Second, s.cfg.SnapshotTimeout)
}

func TestFetchAfterCloseFails(t *testing.T) {
	t.Parallel()

	s := NewSession(Config{}, nil)
	s.Close()
	s.Close()

	_, err := s.Fetch(context.Background(), "https://museum.example/")
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, err, crawler.ErrTransient)
	require.False(t, s.Started())
}

func TestResponseMetaKeepsFirstDocumentSuccess(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://museum.example/logo.png"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://museum.example/exhibitions"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://museum.example/iframe"},
	})

	status, url := meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, 200, status)
	require.Equal(t, "https://museum.example/exhibitions", url)
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, url := newResponseMeta().snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, 200, status)
	require.Equal(t, "https://final", url)

	_, url = newResponseMeta().snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}
