package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dealcatalog/internal/catalog"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments and trailing commas are fine in json5
		dir: "out",
		http: { min_delay_ms: 250, headers: { "accept-language": "en-AU" } },
		enrich: { concurrency: 4, timeout_ms: 60000, },
		cache: { db: { file: ":memory:" } },
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dealcatalog.local.json5"), []byte(`{
		enrich: { concurrency: 8 },
	}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "out", cfg.Dir)
	require.Equal(t, 250*time.Millisecond, cfg.FetchConfig().MinDelay)
	require.Equal(t, "en-AU", cfg.FetchConfig().Headers["accept-language"])
	// untouched defaults survive the merge.
	require.Equal(t, 30*time.Second, cfg.FetchConfig().Timeout)
	require.Equal(t, 4, cfg.RetryPolicy().MaxAttempts)
	require.Equal(t, 2*time.Second, cfg.RetryPolicy().InitialInterval)

	require.Equal(t, 8, cfg.EnrichOptions().Concurrency)
	require.Equal(t, time.Minute, cfg.EnrichOptions().Timeout)
	require.True(t, cfg.Cache.DB.Enabled())
	require.Equal(t, 7*24*time.Hour, cfg.CacheTTL())

	require.Equal(t, "AUD", cfg.Currency(catalog.PlatformNintendo))
	require.Equal(t, "USD", cfg.Currency(catalog.PlatformSteam))

	crawler := cfg.CrawlerConfig()
	require.Equal(t, catalog.PlatformNintendo, crawler.Platform)
	url, err := crawler.Source.PageURL(3)
	require.NoError(t, err)
	require.Equal(t, "https://store.nintendo.com.au/au/nintendo-eshop/current-offers?p=3", url)
}

func TestLoadUnlimitedPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{ nintendo: { max_pages: -1 } }`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, -1, cfg.CrawlerConfig().MaxPages)

	// zero values never override a default.
	require.NoError(t, os.WriteFile(path, []byte(`{ nintendo: { max_pages: 0 } }`), 0644))
	cfg, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, 200, cfg.CrawlerConfig().MaxPages)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Enrich.WeakMatchThreshold = 1.5
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Retry.MaxAttempts = 0
	require.Error(t, cfg.Validate())
}
