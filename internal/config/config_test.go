package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "Mozilla/5.0 (compatible; Exhibitions/1.1)", cfg.HTTP.UserAgent)
	require.Equal(t, 20*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 16000, cfg.Condense.TextBudget)
	require.Equal(t, 1000, cfg.Condense.MaxAnchors)
	require.Equal(t, 80, cfg.LLM.ListingAnchors)
	require.Equal(t, 8000, cfg.LLM.ListingTextChars)
	require.Equal(t, 10000, cfg.LLM.DetailTextChars)
	require.Nil(t, cfg.LLM.Temperature)
	require.Equal(t, int64(4<<20), cfg.LLM.MaxResponseBytes)
	require.Equal(t, 3, cfg.Orchestrator.MaxPagers)
	require.Equal(t, 10, cfg.Orchestrator.DetailConcurrency)
	require.Equal(t, "all", cfg.Orchestrator.DetailFilter)
	require.Equal(t, 3, cfg.Scheduler.BatchSize)
	require.Equal(t, 2*time.Second, cfg.Scheduler.BatchPause)
	require.Equal(t, 90*24*time.Hour, cfg.Scheduler.RescrapeInterval)
	require.Equal(t, DriverMemory, cfg.DB.Driver)
	require.Equal(t, ExportLocal, cfg.Export.Provider)
	require.False(t, cfg.PubSub.Enabled)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
log:
  development: false
server:
  port: 9090
  api_key: secret
http:
  timeout: 45s
  per_host_rps: 0.5
llm:
  temperature: 0.3
orchestrator:
  detail_filter: light
  max_pagers: 1
scheduler:
  batch_size: 5
  rescrape_interval: 720h
db:
  driver: postgres
  dsn: postgres://localhost/exhibitions
export:
  provider: gcs
  bucket: snapshots
pubsub:
  enabled: true
  project_id: proj
  topic_name: crawls
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Log.Development)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "secret", cfg.Server.APIKey)
	require.Equal(t, 45*time.Second, cfg.HTTP.Timeout)
	require.InDelta(t, 0.5, cfg.HTTP.PerHostRPS, 1e-9)
	require.NotNil(t, cfg.LLM.Temperature)
	require.InDelta(t, 0.3, *cfg.LLM.Temperature, 1e-9)
	require.Equal(t, "light", cfg.Orchestrator.DetailFilter)
	require.Equal(t, 1, cfg.Orchestrator.MaxPagers)
	require.Equal(t, 5, cfg.Scheduler.BatchSize)
	require.Equal(t, 30*24*time.Hour, cfg.Scheduler.RescrapeInterval)
	require.Equal(t, DriverPostgres, cfg.DB.Driver)
	require.Equal(t, "snapshots", cfg.Export.Bucket)
	require.Equal(t, "crawls", cfg.PubSub.TopicName)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("EXHIBITIONS_SERVER_PORT", "7070")
	t.Setenv("EXHIBITIONS_LLM_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, errMsg: "server.port"},
		{name: "http timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }, errMsg: "http.timeout"},
		{name: "cache dir", mutate: func(c *Config) { c.Cache.Dir = "" }, errMsg: "cache.dir"},
		{name: "postgres dsn", mutate: func(c *Config) { c.DB.Driver = DriverPostgres }, errMsg: "db.dsn"},
		{name: "driver", mutate: func(c *Config) { c.DB.Driver = "sqlite" }, errMsg: "db.driver"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Export.Provider = ExportGCS }, errMsg: "export.bucket"},
		{name: "provider", mutate: func(c *Config) { c.Export.Provider = "s3" }, errMsg: "export.provider"},
		{name: "pubsub", mutate: func(c *Config) { c.PubSub.Enabled = true }, errMsg: "pubsub.project_id"},
		{name: "batch", mutate: func(c *Config) { c.Scheduler.BatchSize = 0 }, errMsg: "scheduler.batch_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}
}
