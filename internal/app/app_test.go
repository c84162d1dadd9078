package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/exhibitions-crawler/internal/config"
	"github.com/JakeFAU/exhibitions-crawler/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Export.Dir = filepath.Join(dir, "export")
	cfg.Headless.Enabled = false
	return cfg
}

func TestNewWiresMemoryStack(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Repository())
	require.NotNil(t, a.Condenser())
	require.NotNil(t, a.Orchestrator())
	require.NotNil(t, a.Scheduler())
	require.NotNil(t, a.Exporter())
	require.NotNil(t, a.Publisher())
	require.NotNil(t, a.Server().Handler())

	migrated, err := a.Migrate(context.Background())
	require.NoError(t, err)
	require.False(t, migrated)

	_, err = a.Repository().ImportSites(context.Background(), []store.SiteInput{
		{Name: "Tate Modern", City: "London", Country: "United Kingdom", URL: "https://www.tate.org.uk"},
	})
	require.NoError(t, err)
	location, n, err := a.Exporter().Export(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Contains(t, location, "exhibitions.json")
}

func TestNewWithoutExport(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Export.Provider = config.ExportNone
	cfg.Cache.Enabled = false
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.Nil(t, a.Exporter())
}

func TestNewRejectsUnknownFilter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Orchestrator.DetailFilter = "heavy"
	_, err := New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "detail filter")
}
