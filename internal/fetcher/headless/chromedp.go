// Package headless is the last-resort fetch tier: a real browser driven by
// chromedp. One browser session is kept per process, started on first use
// and navigated by one caller at a time.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
)

// TierBrowser is the tier label reported for browser fetches.
const TierBrowser = "browser"

// ErrSessionClosed is returned by Fetch after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Config controls the behavior of the browser session.
type Config struct {
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	// ReadySelector is waited for after navigation; body by default.
	ReadySelector   string
	SettleDelay     time.Duration
	SnapshotTimeout time.Duration
}

// Session owns the browser process.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
	starts        int
}

// NewSession returns a Session; the browser itself is not started until the
// first Fetch.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = "body"
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, logger: logger}
}

// Name reports the tier label.
func (s *Session) Name() string {
	return TierBrowser
}

// Started reports whether a browser process is currently live.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browserCtx != nil && s.browserCtx.Err() == nil
}

// Close releases the browser. Further fetches fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.teardownLocked()
}

// Fetch navigates to url and returns the rendered DOM. If readiness is not
// reached before NavigationTimeout, whatever DOM exists is returned with
// Partial set.
func (s *Session) Fetch(ctx context.Context, url string) (crawler.RawPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(); err != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: TierBrowser, Kind: crawler.ErrTransient, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: TierBrowser, Kind: crawler.ErrTransient, Err: fmt.Errorf("open tab: %w", err)}
	}
	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	navCtx, cancelNav := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	navErr := chromedp.Run(navCtx,
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(s.cfg.ReadySelector, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	cancelNav()

	html, finalURL, snapErr := s.snapshot(tabCtx)
	if snapErr != nil || strings.TrimSpace(html) == "" {
		cause := navErr
		if cause == nil {
			cause = snapErr
		}
		if cause == nil {
			cause = crawler.ErrEmptyBody
		}
		return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: TierBrowser, Kind: crawler.ErrTransient, Err: cause}
	}
	if navErr != nil {
		s.logger.Debug("browser readiness timed out, keeping partial DOM",
			zap.String("url", url),
			zap.Int("html_bytes", len(html)),
			zap.Error(navErr),
		)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	page := crawler.RawPage{
		URL:        url,
		FinalURL:   responseURL,
		StatusCode: status,
		Body:       []byte(html),
		Partial:    navErr != nil,
	}
	if kind := crawler.ClassifyStatus(status); kind != nil {
		return crawler.RawPage{}, &crawler.FetchError{URL: url, Tier: TierBrowser, StatusCode: status, Kind: kind}
	}
	return page, nil
}

func (s *Session) snapshot(tabCtx context.Context) (string, string, error) {
	ctx, cancel := context.WithTimeout(tabCtx, s.cfg.SnapshotTimeout)
	defer cancel()
	var html, finalURL string
	err := chromedp.Run(ctx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("snapshot dom: %w", err)
	}
	return html, finalURL, nil
}

func (s *Session) ensureLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return nil
	}
	s.teardownLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("start browser: %w", err)
	}
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.starts++
	s.logger.Info("browser session started", zap.Int("starts", s.starts))
	return nil
}

func (s *Session) teardownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.browserCancel = nil
	s.allocCancel = nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 && m.status < 300 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
