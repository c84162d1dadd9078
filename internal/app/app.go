// Package app builds the long-lived services from configuration and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/api"
	"github.com/JakeFAU/exhibitions-crawler/internal/clock/system"
	"github.com/JakeFAU/exhibitions-crawler/internal/condense"
	"github.com/JakeFAU/exhibitions-crawler/internal/config"
	"github.com/JakeFAU/exhibitions-crawler/internal/crawler"
	"github.com/JakeFAU/exhibitions-crawler/internal/export"
	"github.com/JakeFAU/exhibitions-crawler/internal/extract"
	"github.com/JakeFAU/exhibitions-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/exhibitions-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/exhibitions-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/exhibitions-crawler/internal/hash/sha256"
	"github.com/JakeFAU/exhibitions-crawler/internal/headless/detector"
	"github.com/JakeFAU/exhibitions-crawler/internal/id/uuid"
	"github.com/JakeFAU/exhibitions-crawler/internal/llm"
	"github.com/JakeFAU/exhibitions-crawler/internal/orchestrator"
	"github.com/JakeFAU/exhibitions-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/exhibitions-crawler/internal/policy/retry"
	memorypublisher "github.com/JakeFAU/exhibitions-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/exhibitions-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/exhibitions-crawler/internal/scheduler"
	"github.com/JakeFAU/exhibitions-crawler/internal/storage/gcs"
	"github.com/JakeFAU/exhibitions-crawler/internal/storage/local"
	"github.com/JakeFAU/exhibitions-crawler/internal/storage/memory"
	"github.com/JakeFAU/exhibitions-crawler/internal/storage/postgres"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

// App holds the shared services. Build it once per process with New and
// release it with Close.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	repo         store.Repository
	condenser    *condense.Condenser
	orchestrator *orchestrator.Orchestrator
	scheduler    *scheduler.Scheduler
	exporter     *export.Writer
	publisher    crawler.Publisher
	browser      *headless.Session
	closers      []func() error
}

// New wires every component named by cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("export_provider", cfg.Export.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	repo, err := a.buildRepository(ctx)
	if err != nil {
		return err
	}
	a.repo = repo

	chain, err := a.buildFetcher()
	if err != nil {
		return err
	}
	a.condenser = condense.New(condense.Config{
		TextBudget:      cfg.Condense.TextBudget,
		MaxAnchors:      cfg.Condense.MaxAnchors,
		AnchorTextLimit: cfg.Condense.AnchorTextLimit,
		ContextLimit:    cfg.Condense.ContextLimit,
		ContextHops:     cfg.Condense.ContextHops,
	}, chain, a.logger.Named("condense"))

	llmRetry := retry.NewExponentialPolicy(retry.Config{
		MaxAttempts: cfg.HTTP.MaxRetries,
		BaseDelay:   cfg.HTTP.BackoffBase,
		MaxDelay:    cfg.HTTP.BackoffMax,
	})
	client := llm.New(llm.Config{
		BaseURL:          cfg.LLM.BaseURL,
		APIKey:           cfg.LLM.APIKey,
		Timeout:          cfg.LLM.Timeout,
		Temperature:      cfg.LLM.Temperature,
		MaxResponseBytes: cfg.LLM.MaxResponseBytes,
	}, &http.Client{Timeout: cfg.LLM.Timeout}, llmRetry, a.logger.Named("llm"))
	extractor := extract.New(extract.Config{
		ListingModel:     cfg.LLM.ListingModel,
		DetailModel:      cfg.LLM.DetailModel,
		MaxInFlight:      cfg.LLM.MaxInFlight,
		ListingAnchors:   cfg.LLM.ListingAnchors,
		ListingTextChars: cfg.LLM.ListingTextChars,
		DetailTextChars:  cfg.LLM.DetailTextChars,
	}, client, a.logger.Named("extract"))

	filter, err := orchestrator.NewDetailFilter(cfg.Orchestrator.DetailFilter, cfg.Orchestrator.LightMaxTitle)
	if err != nil {
		return fmt.Errorf("build detail filter: %w", err)
	}
	a.orchestrator = orchestrator.New(orchestrator.Config{
		FollowPagination:   cfg.Orchestrator.FollowPagination,
		MaxPagers:          cfg.Orchestrator.MaxPagers,
		ListingTextBudget:  cfg.Condense.TextBudget,
		DetailConcurrency:  cfg.Orchestrator.DetailConcurrency,
		DetailTimeout:      cfg.Orchestrator.DetailTimeout,
		DetailPhaseTimeout: cfg.Orchestrator.DetailPhaseTimeout,
		Filter:             filter,
	}, a.condenser, extractor, a.logger.Named("orchestrator"))

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return err
	}
	var exporter scheduler.Exporter
	if blobs != nil {
		a.exporter = export.New(repo, blobs, cfg.Export.Object, a.logger.Named("export"))
		exporter = a.exporter
	}

	if err := a.buildPublisher(ctx); err != nil {
		return err
	}

	a.scheduler, err = scheduler.New(scheduler.Config{
		BatchSize:        cfg.Scheduler.BatchSize,
		BatchPause:       cfg.Scheduler.BatchPause,
		RescrapeInterval: cfg.Scheduler.RescrapeInterval,
		SiteTimeout:      cfg.Scheduler.SiteTimeout,
	}, scheduler.Options{
		Repo:      repo,
		Runner:    a.orchestrator,
		Exporter:  exporter,
		Publisher: a.publisher,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    a.logger.Named("scheduler"),
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.scheduler.Close()
		return nil
	})
	return nil
}

func (a *App) buildRepository(ctx context.Context) (store.Repository, error) {
	switch a.cfg.DB.Driver {
	case config.DriverMemory:
		a.logger.Info("using in-memory exhibition store; data is lost on exit")
		return memory.NewExhibitionStore(), nil
	case config.DriverPostgres:
		repo, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error {
			repo.Close()
			return nil
		})
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown db driver %q", a.cfg.DB.Driver)
	}
}

func (a *App) buildFetcher() (*fetcher.Chain, error) {
	cfg := a.cfg
	tiers := []fetcher.Tier{collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.HTTP.Timeout,
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})}
	if !cfg.HTTP.DisableHTTP1 {
		tiers = append(tiers, collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.HTTP.UserAgent,
			Timeout:     cfg.HTTP.Timeout,
			HTTP1Only:   true,
			MaxBodySize: cfg.HTTP.MaxBodyBytes,
		}))
	}

	opts := fetcher.Options{
		Tiers: tiers,
		Limiter: ratelimit.New(ratelimit.Config{
			PerHostRPS: cfg.HTTP.PerHostRPS,
			Burst:      cfg.HTTP.PerHostBurst,
		}),
		Retry: retry.NewExponentialPolicy(retry.Config{
			MaxAttempts: cfg.HTTP.MaxRetries,
			BaseDelay:   cfg.HTTP.BackoffBase,
			MaxDelay:    cfg.HTTP.BackoffMax,
		}),
		Logger: a.logger.Named("fetcher"),
	}
	if cfg.Cache.Enabled {
		cache, err := local.NewPageCache(cfg.Cache.Dir, sha256.New())
		if err != nil {
			return nil, fmt.Errorf("init page cache: %w", err)
		}
		opts.Cache = cache
	}
	if cfg.Headless.Enabled {
		a.browser = headless.NewSession(headless.Config{
			UserAgent:         cfg.HTTP.UserAgent,
			ExecPath:          cfg.Headless.ExecPath,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			SettleDelay:       cfg.Headless.SettleDelay,
		}, a.logger.Named("headless"))
		opts.Browser = a.browser
		opts.Promoter = detector.NewHeuristic(cfg.Headless.PromotionThreshold)
		a.closers = append(a.closers, func() error {
			a.browser.Close()
			return nil
		})
	}
	return fetcher.New(opts), nil
}

func (a *App) buildBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Export.Provider {
	case config.ExportNone:
		return nil, nil
	case config.ExportLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Export.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local export: %w", err)
		}
		return blobs, nil
	case config.ExportGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Export.Bucket, Prefix: a.cfg.Export.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs export: %w", err)
		}
		return blobs, nil
	default:
		return nil, fmt.Errorf("unknown export provider %q", a.cfg.Export.Provider)
	}
}

func (a *App) buildPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := pubsubpublisher.Dial(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Repository returns the exhibition store.
func (a *App) Repository() store.Repository { return a.repo }

// Condenser returns the page condenser.
func (a *App) Condenser() *condense.Condenser { return a.condenser }

// Orchestrator returns the per-site crawler.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orchestrator }

// Scheduler returns the batch scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Exporter returns the snapshot writer, or nil when export is disabled.
func (a *App) Exporter() *export.Writer { return a.exporter }

// Publisher returns the completion event publisher.
func (a *App) Publisher() crawler.Publisher { return a.publisher }

// Server builds the ops HTTP server over the scheduler.
func (a *App) Server() *api.Server {
	var ready store.Pinger
	if p, ok := a.repo.(store.Pinger); ok {
		ready = p
	}
	return api.NewServer(a.scheduler, ready, api.Config{
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}, a.logger.Named("api"))
}

// Migrate applies the schema when the repository needs one.
func (a *App) Migrate(ctx context.Context) (bool, error) {
	m, ok := a.repo.(store.Migrator)
	if !ok {
		return false, nil
	}
	if err := m.Migrate(ctx); err != nil {
		return true, fmt.Errorf("migrate: %w", err)
	}
	return true, nil
}

// Close releases services in reverse construction order.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
