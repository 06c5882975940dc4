// Package config is the configuration of a dealcatalog run. It is read from
// dealcatalog.json5 (and dealcatalog.local.json5) over the defaults below,
// durations are integer milliseconds.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/enrich"
	"dealcatalog/internal/extract"
	"dealcatalog/internal/fetch"
	"dealcatalog/internal/pipeline"
	"dealcatalog/lib/configutil"
	configlibsql "dealcatalog/lib/configutil/libsql"
	"dealcatalog/lib/retry"
	"dealcatalog/lib/telemetry"
)

const FileName = "dealcatalog.json5"

type HttpConfig struct {
	UserAgent  string            `json:"user_agent"`
	Headers    map[string]string `json:"headers"`
	TimeoutMs  int               `json:"timeout_ms"`
	MinDelayMs int               `json:"min_delay_ms"`
	Burst      int               `json:"burst"`
	// BypassCloudflare only matters for storefronts behind a browser check.
	BypassCloudflare bool `json:"bypass_cloudflare"`
	// DumpDir receives every http message when set.
	DumpDir string `json:"dump_dir"`
}

type RetryConfig struct {
	MaxAttempts       int     `json:"max_attempts"`
	InitialIntervalMs int     `json:"initial_interval_ms"`
	MaxIntervalMs     int     `json:"max_interval_ms"`
	Multiplier        float64 `json:"multiplier"`
}

type NintendoConfig struct {
	// URLTemplate has a %d placeholder for the page index.
	URLTemplate string `json:"url_template"`
	Currency    string `json:"currency"`
	// MaxPages of -1 is unlimited, a 0 in a config file is indistinguishable from
	// unset and keeps the default.
	MaxPages int `json:"max_pages"`
}

type SteamConfig struct {
	Currency string `json:"currency"`
}

type EnrichConfig struct {
	BaseURL            string  `json:"base_url"`
	Concurrency        int     `json:"concurrency"`
	TimeoutMs          int     `json:"timeout_ms"`
	WeakMatchThreshold float64 `json:"weak_match_threshold"`
}

type CacheConfig struct {
	// DB is disabled unless a file or url is set.
	DB       configlibsql.Struct `json:"db"`
	TTLHours int                 `json:"ttl_hours"`
}

type Config struct {
	// Dir is where input files are read from and output files are written to.
	Dir string `json:"dir"`
	// Timezone decides the date in file names, "" is the system zone.
	Timezone            string           `json:"timezone"`
	Telemetry           telemetry.Config `json:"telemetry"`
	PerfStatsIntervalMs int              `json:"perf_stats_interval_ms"`
	Http                HttpConfig       `json:"http"`
	Retry               RetryConfig      `json:"retry"`
	Nintendo            NintendoConfig   `json:"nintendo"`
	Steam               SteamConfig      `json:"steam"`
	Enrich              EnrichConfig     `json:"enrich"`
	Cache               CacheConfig      `json:"cache"`
}

func Defaults() Config {
	return Config{
		Dir: ".",
		Http: HttpConfig{
			UserAgent:  fetch.DefaultUserAgent,
			TimeoutMs:  30_000,
			MinDelayMs: 1_000,
			Burst:      1,
		},
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialIntervalMs: 2_000,
			MaxIntervalMs:     30_000,
			Multiplier:        2,
		},
		Nintendo: NintendoConfig{
			URLTemplate: "https://store.nintendo.com.au/au/nintendo-eshop/current-offers?p=%d",
			Currency:    "AUD",
			MaxPages:    200,
		},
		Steam: SteamConfig{
			Currency: "USD",
		},
		Enrich: EnrichConfig{
			BaseURL:            enrich.DefaultBaseURL,
			Concurrency:        1,
			WeakMatchThreshold: 0.75,
		},
		Cache: CacheConfig{
			TTLHours: 24 * 7,
		},
	}
}

// Load reads the config at path, or searches for dealcatalog.json5 from the working
// directory up when path is empty. A missing file found by searching means defaults,
// a missing file given explicitly is an error.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		cfg, err = configutil.ReadConfig(path, Defaults())
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		cfg, err = configutil.ReadRecursively(FileName, Defaults())
		if errors.Is(err, os.ErrNotExist) {
			cfg, err = Defaults(), nil
		}
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Enrich.WeakMatchThreshold < 0 || c.Enrich.WeakMatchThreshold > 1 {
		return fmt.Errorf("enrich.weak_match_threshold must be within 0-1, got %v", c.Enrich.WeakMatchThreshold)
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: millis(c.Retry.InitialIntervalMs),
		MaxInterval:     millis(c.Retry.MaxIntervalMs),
		Multiplier:      c.Retry.Multiplier,
	}
}

func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		UserAgent:        c.Http.UserAgent,
		Headers:          c.Http.Headers,
		Timeout:          millis(c.Http.TimeoutMs),
		MinDelay:         millis(c.Http.MinDelayMs),
		Burst:            c.Http.Burst,
		Retry:            c.RetryPolicy(),
		BypassCloudflare: c.Http.BypassCloudflare,
		DumpDir:          c.Http.DumpDir,
	}
}

func (c Config) CrawlerConfig() pipeline.CrawlerConfig {
	return pipeline.CrawlerConfig{
		Source: fetch.Source{
			Name:        string(catalog.PlatformNintendo),
			URLTemplate: c.Nintendo.URLTemplate,
		},
		Schema:   extract.NintendoSchema(),
		Platform: catalog.PlatformNintendo,
		Currency: c.Nintendo.Currency,
		MaxPages: c.Nintendo.MaxPages,
	}
}

func (c Config) EnricherConfig() enrich.Config {
	return enrich.Config{
		BaseURL:            c.Enrich.BaseURL,
		Schema:             extract.MetacriticSchema(),
		WeakMatchThreshold: c.Enrich.WeakMatchThreshold,
	}
}

func (c Config) EnrichOptions() pipeline.EnrichOptions {
	return pipeline.EnrichOptions{
		Concurrency: c.Enrich.Concurrency,
		Timeout:     millis(c.Enrich.TimeoutMs),
	}
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func (c Config) PerfStatsInterval() time.Duration {
	return millis(c.PerfStatsIntervalMs)
}

// Currency is the default currency of a platform's prices.
func (c Config) Currency(platform catalog.Platform) string {
	if platform == catalog.PlatformSteam {
		return c.Steam.Currency
	}
	return c.Nintendo.Currency
}
