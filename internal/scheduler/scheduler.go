// Package scheduler decides which sites are due, crawls them in bounded
// batches and persists each site's outcome independently.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/metrics"
	"github.com/JakeFAU/exhibitions-crawler/internal/orchestrator"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

// EventSiteCrawled is the event name published after every site crawl.
const EventSiteCrawled = "site.crawled"

// ErrAlreadyRunning is returned by the trigger surface when the same run is
// still in flight.
var ErrAlreadyRunning = errors.New("run already in progress")

// SiteRunner crawls one site.
type SiteRunner interface {
	Run(ctx context.Context, site crawler.SiteRef) (orchestrator.Result, error)
}

// Exporter rewrites the downstream snapshot.
type Exporter interface {
	Export(ctx context.Context) (string, int, error)
}

// Config controls batching and due-ness.
type Config struct {
	BatchSize        int
	BatchPause       time.Duration
	RescrapeInterval time.Duration
	SiteTimeout      time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:        3,
		BatchPause:       2 * time.Second,
		RescrapeInterval: 90 * 24 * time.Hour,
		SiteTimeout:      30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	if c.RescrapeInterval <= 0 {
		c.RescrapeInterval = def.RescrapeInterval
	}
	if c.SiteTimeout <= 0 {
		c.SiteTimeout = def.SiteTimeout
	}
	return c
}

// Options carries the collaborators. Exporter and Publisher are optional.
type Options struct {
	Repo      store.Repository
	Runner    SiteRunner
	Exporter  Exporter
	Publisher crawler.Publisher
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Logger    *zap.Logger
}

// Scheduler drives batch crawls.
type Scheduler struct {
	cfg       Config
	repo      store.Repository
	runner    SiteRunner
	exporter  Exporter
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	logger    *zap.Logger

	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inFlight map[string]string
}

// New builds a Scheduler.
func New(cfg Config, opts Options) (*Scheduler, error) {
	if opts.Repo == nil || opts.Runner == nil {
		return nil, fmt.Errorf("scheduler requires a repository and a site runner")
	}
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if opts.IDs == nil {
		return nil, fmt.Errorf("scheduler requires an id generator")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		repo:      opts.Repo,
		runner:    opts.Runner,
		exporter:  opts.Exporter,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		ids:       opts.IDs,
		logger:    opts.Logger,
		baseCtx:   ctx,
		cancel:    cancel,
		inFlight:  make(map[string]string),
	}, nil
}

// RunDue crawls every site never crawled or last crawled before
// now minus the rescrape interval.
func (s *Scheduler) RunDue(ctx context.Context) (BatchResult, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return BatchResult{}, fmt.Errorf("new run id: %w", err)
	}
	return s.runDue(ctx, runID)
}

// RunAll crawls every registered site regardless of its last crawl.
func (s *Scheduler) RunAll(ctx context.Context) (BatchResult, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return BatchResult{}, fmt.Errorf("new run id: %w", err)
	}
	sites, err := s.repo.AllSites(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list sites: %w", err)
	}
	return s.runSites(ctx, runID, sites), nil
}

// RunSite crawls one named site on demand.
func (s *Scheduler) RunSite(ctx context.Context, name string) (SiteResult, error) {
	site, err := s.repo.SiteByName(ctx, name)
	if err != nil {
		return SiteResult{}, fmt.Errorf("lookup site: %w", err)
	}
	runID, err := s.ids.NewID()
	if err != nil {
		return SiteResult{}, fmt.Errorf("new run id: %w", err)
	}
	return s.crawlSite(ctx, runID, site), nil
}

func (s *Scheduler) runDue(ctx context.Context, runID string) (BatchResult, error) {
	cutoff := s.clock.Now().Add(-s.cfg.RescrapeInterval)
	sites, err := s.repo.DueSites(ctx, cutoff)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list due sites: %w", err)
	}
	return s.runSites(ctx, runID, sites), nil
}

func (s *Scheduler) runSites(ctx context.Context, runID string, sites []store.Site) BatchResult {
	start := s.clock.Now()
	logger := s.logger.With(zap.String("run_id", runID))
	if len(sites) == 0 {
		logger.Info("no sites due")
		return BatchResult{RunID: runID, Status: StatusUpToDate, Sites: []SiteResult{}}
	}

	results := make([]SiteResult, len(sites))
	for offset := 0; offset < len(sites); offset += s.cfg.BatchSize {
		if offset > 0 && !sleepCtx(ctx, s.cfg.BatchPause) {
			break
		}
		end := min(offset+s.cfg.BatchSize, len(sites))
		var g errgroup.Group
		for i := offset; i < end; i++ {
			g.Go(func() error {
				results[i] = s.crawlSite(ctx, runID, sites[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	batch := BatchResult{RunID: runID, Status: StatusSuccess, Sites: make([]SiteResult, 0, len(results))}
	for i, res := range results {
		if res.Status == "" {
			res = cancelled(sites[i], ctx.Err())
		}
		batch.Sites = append(batch.Sites, res)
		if res.Status == StatusSuccess {
			batch.SitesCrawled++
		} else {
			batch.SitesFailed++
		}
	}
	batch.Duration = s.clock.Now().Sub(start)
	logger.Info("batch finished",
		zap.Int("sites", len(sites)),
		zap.Int("sites_crawled", batch.SitesCrawled),
		zap.Int("sites_failed", batch.SitesFailed),
		zap.Duration("duration", batch.Duration),
	)
	return batch
}

// crawlSite never panics and never returns an error: every outcome becomes a
// SiteResult.
func (s *Scheduler) crawlSite(ctx context.Context, runID string, site store.Site) (result SiteResult) {
	ref := site.Ref()
	logger := s.logger.With(zap.String("run_id", runID), zap.String("site", ref.Name), zap.String("city", ref.City))
	start := s.clock.Now()

	metrics.IncActiveSiteCrawls()
	defer metrics.DecActiveSiteCrawls()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("site crawl panicked", zap.Any("panic", r))
			result = s.fail(ctx, ref, fmt.Errorf("panic: %v", r), ErrorTypePanic, logger)
		}
		result.Duration = s.clock.Now().Sub(start)
		metrics.ObserveSiteCrawl(string(result.Status), result.ExhibitionCount, result.Duration)
		s.publish(ctx, runID, result, logger)
	}()

	siteCtx, cancel := context.WithTimeout(ctx, s.cfg.SiteTimeout)
	defer cancel()
	res, err := s.runner.Run(siteCtx, ref)
	if err != nil {
		return s.fail(ctx, ref, err, errorType(err), logger)
	}

	crawledAt := s.clock.Now()
	saved, err := s.repo.SaveExhibitions(ctx, ref, res.Exhibitions, crawledAt)
	if err != nil {
		return s.fail(ctx, ref, fmt.Errorf("save exhibitions: %w", err), ErrorTypeStore, logger)
	}
	if err := s.repo.MarkSiteSuccess(ctx, ref, saved, crawledAt); err != nil {
		logger.Warn("mark site success failed", zap.Error(err))
	}
	s.export(ctx, logger)

	logger.Info("site crawled",
		zap.Int("candidates", res.Report.Counts.Todo),
		zap.Int("detail_failures", res.Report.Counts.Failed),
		zap.Int("saved", saved),
	)
	return SiteResult{
		Status:          StatusSuccess,
		Site:            ref.Name,
		City:            ref.City,
		ExhibitionCount: saved,
	}
}

func (s *Scheduler) fail(ctx context.Context, ref crawler.SiteRef, cause error, kind string, logger *zap.Logger) SiteResult {
	logger.Error("site crawl failed", zap.String("error_type", kind), zap.Error(cause))
	if err := s.repo.MarkSiteFailed(ctx, ref, cause.Error(), s.clock.Now()); err != nil {
		logger.Warn("mark site failed failed", zap.Error(err))
	}
	return SiteResult{
		Status:    StatusFailed,
		Site:      ref.Name,
		City:      ref.City,
		Error:     cause.Error(),
		ErrorType: kind,
	}
}

func (s *Scheduler) export(ctx context.Context, logger *zap.Logger) {
	if s.exporter == nil {
		return
	}
	location, rows, err := s.exporter.Export(ctx)
	if err != nil {
		logger.Warn("snapshot export failed", zap.Error(err))
		return
	}
	logger.Debug("snapshot written", zap.String("location", location), zap.Int("rows", rows))
}

func (s *Scheduler) publish(ctx context.Context, runID string, result SiteResult, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	event := Event{
		RunID:           runID,
		Site:            result.Site,
		City:            result.City,
		Status:          result.Status,
		ExhibitionCount: result.ExhibitionCount,
		Error:           result.Error,
	}
	if _, err := s.publisher.Publish(ctx, EventSiteCrawled, event); err != nil {
		logger.Warn("publish crawl event failed", zap.Error(err))
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	default:
		return crawler.ErrorKind(err)
	}
}

func cancelled(site store.Site, err error) SiteResult {
	msg := "batch cancelled"
	if err != nil {
		msg = err.Error()
	}
	return SiteResult{
		Status:    StatusFailed,
		Site:      site.Name,
		City:      site.City,
		Error:     msg,
		ErrorType: ErrorTypeCancelled,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func siteKey(name string) string {
	return "site:" + strings.ToLower(strings.TrimSpace(name))
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
