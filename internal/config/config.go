// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers and export providers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	ExportLocal = "local"
	ExportGCS   = "gcs"
	ExportNone  = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Server       ServerConfig       `mapstructure:"server"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Headless     HeadlessConfig     `mapstructure:"headless"`
	Condense     CondenseConfig     `mapstructure:"condense"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	DB           DBConfig           `mapstructure:"db"`
	Export       ExportConfig       `mapstructure:"export"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
}

// LogConfig toggles zap development features.
type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// HTTPConfig configures the plain HTTP tiers.
type HTTPConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	PerHostRPS   float64       `mapstructure:"per_host_rps"`
	PerHostBurst int           `mapstructure:"per_host_burst"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
	DisableHTTP1 bool          `mapstructure:"disable_http1_fallback"`
}

// CacheConfig controls the on-disk HTML cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// HeadlessConfig configures the browser fallback tier.
type HeadlessConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	ExecPath           string        `mapstructure:"exec_path"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay        time.Duration `mapstructure:"settle_delay"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
}

// CondenseConfig bounds condensed pages.
type CondenseConfig struct {
	TextBudget      int `mapstructure:"text_budget"`
	MaxAnchors      int `mapstructure:"max_anchors"`
	AnchorTextLimit int `mapstructure:"anchor_text_limit"`
	ContextLimit    int `mapstructure:"context_limit"`
	ContextHops     int `mapstructure:"context_hops"`
}

// LLMConfig configures the extraction capability. Temperature is sent only
// when set; some models accept only their default.
type LLMConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	ListingModel     string        `mapstructure:"listing_model"`
	DetailModel      string        `mapstructure:"detail_model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxInFlight      int           `mapstructure:"max_in_flight"`
	ListingAnchors   int           `mapstructure:"listing_anchors"`
	ListingTextChars int           `mapstructure:"listing_text_chars"`
	DetailTextChars  int           `mapstructure:"detail_text_chars"`
	Temperature      *float64      `mapstructure:"temperature"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
}

// OrchestratorConfig tunes one site run.
type OrchestratorConfig struct {
	FollowPagination   bool          `mapstructure:"follow_pagination"`
	MaxPagers          int           `mapstructure:"max_pagers"`
	DetailConcurrency  int           `mapstructure:"detail_concurrency"`
	DetailTimeout      time.Duration `mapstructure:"detail_timeout"`
	DetailPhaseTimeout time.Duration `mapstructure:"detail_phase_timeout"`
	DetailFilter       string        `mapstructure:"detail_filter"`
	LightMaxTitle      int           `mapstructure:"light_max_title"`
}

// SchedulerConfig controls batch crawls.
type SchedulerConfig struct {
	BatchSize        int           `mapstructure:"batch_size"`
	BatchPause       time.Duration `mapstructure:"batch_pause"`
	RescrapeInterval time.Duration `mapstructure:"rescrape_interval"`
	SiteTimeout      time.Duration `mapstructure:"site_timeout"`
	Tick             time.Duration `mapstructure:"tick"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ExportConfig selects where the snapshot is written.
type ExportConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Object   string `mapstructure:"object"`
}

// PubSubConfig holds metadata for crawl completion events.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXHIBITIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.development", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; Exhibitions/1.1)")
	v.SetDefault("http.timeout", "20s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", "500ms")
	v.SetDefault("http.backoff_max", "8s")
	v.SetDefault("http.per_host_rps", 2.0)
	v.SetDefault("http.per_host_burst", 2)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.disable_http1_fallback", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", ".cache/html")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.navigation_timeout", "25s")
	v.SetDefault("headless.settle_delay", "1s")
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("condense.text_budget", 16000)
	v.SetDefault("condense.max_anchors", 1000)
	v.SetDefault("condense.anchor_text_limit", 180)
	v.SetDefault("condense.context_limit", 240)
	v.SetDefault("condense.context_hops", 4)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.listing_model", "gpt-5-mini")
	v.SetDefault("llm.detail_model", "gpt-5-mini")
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.max_in_flight", 8)
	v.SetDefault("llm.listing_anchors", 80)
	v.SetDefault("llm.listing_text_chars", 8000)
	v.SetDefault("llm.detail_text_chars", 10000)
	v.SetDefault("llm.max_response_bytes", 4<<20)
	v.SetDefault("orchestrator.follow_pagination", true)
	v.SetDefault("orchestrator.max_pagers", 3)
	v.SetDefault("orchestrator.detail_concurrency", 10)
	v.SetDefault("orchestrator.detail_timeout", "90s")
	v.SetDefault("orchestrator.detail_phase_timeout", "15m")
	v.SetDefault("orchestrator.detail_filter", "all")
	v.SetDefault("orchestrator.light_max_title", 80)
	v.SetDefault("scheduler.batch_size", 3)
	v.SetDefault("scheduler.batch_pause", "2s")
	v.SetDefault("scheduler.rescrape_interval", "2160h")
	v.SetDefault("scheduler.site_timeout", "30m")
	v.SetDefault("scheduler.tick", "24h")
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("export.provider", ExportLocal)
	v.SetDefault("export.dir", "data")
	v.SetDefault("export.bucket", "")
	v.SetDefault("export.prefix", "")
	v.SetDefault("export.object", "exhibitions.json")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir must be set when the cache is enabled")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be > 0")
	}
	if c.Orchestrator.DetailConcurrency <= 0 {
		return fmt.Errorf("orchestrator.detail_concurrency must be > 0")
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	switch c.Export.Provider {
	case ExportNone:
	case ExportLocal:
		if c.Export.Dir == "" {
			return fmt.Errorf("export.dir must be set for the local provider")
		}
	case ExportGCS:
		if c.Export.Bucket == "" {
			return fmt.Errorf("export.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("export.provider %q is not supported", c.Export.Provider)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}
