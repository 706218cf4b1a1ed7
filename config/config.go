// Package config holds the process-wide configuration struct. It is built
// once in main (file, then environment) and injected explicitly; nothing
// deeper in the pipeline reads ambient state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry "2s"-style values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("failed to parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is everything the pipeline needs to run.
type Config struct {
	// StartURL is the news page to harvest.
	StartURL string `yaml:"start_url"`

	// FeedURL, when non-empty, enables the RSS backfill pass.
	FeedURL string `yaml:"feed_url"`

	// OriginBase is the origin site's base URL, used to resolve redirect
	// paths and classify still-on-origin destinations.
	OriginBase string `yaml:"origin_base"`

	// File paths.
	CachePath         string `yaml:"cache_path"`
	UniqueSourcesPath string `yaml:"unique_sources_path"`
	RedirectIndexPath string `yaml:"redirect_index_path"`
	SourceConfigPath  string `yaml:"source_config_path"`
	DatabasePath      string `yaml:"database_path"`
	ScreenshotDir     string `yaml:"screenshot_dir"`

	// Reader API.
	ReaderBaseURL string `yaml:"reader_base_url"`
	ReaderAPIKey  string `yaml:"reader_api_key"`

	// Browser behavior.
	Headless    bool     `yaml:"headless"`
	ScrollPause Duration `yaml:"scroll_pause"`

	// MaxRetries is the stale-scroll exhaustion threshold.
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrency caps fallback-extraction fan-out.
	MaxConcurrency int `yaml:"max_concurrency"`

	// SessionPoolSize is how many browser sessions the enrichment pass
	// reuses for redirect resolution.
	SessionPoolSize int `yaml:"session_pool_size"`

	// ForceRefresh makes cached URLs eligible for overwrite.
	ForceRefresh bool `yaml:"force_refresh"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		StartURL:          "https://cryptopanic.com/news",
		OriginBase:        "https://cryptopanic.com",
		CachePath:         "news_data/cached_news_data.json",
		UniqueSourcesPath: "news_data/cached_unique_urls.json",
		RedirectIndexPath: "news_data/cached_redirect_urls.json",
		SourceConfigPath:  "news_data/source_configs.json",
		DatabasePath:      "news_data/articles.db",
		ScreenshotDir:     "news_data",
		ReaderBaseURL:     "https://r.jina.ai",
		Headless:          true,
		ScrollPause:       Duration(2 * time.Second),
		MaxRetries:        5,
		MaxConcurrency:    50,
		SessionPoolSize:   4,
		LogLevel:          "info",
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error: the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays NEWSHARVEST_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("NEWSHARVEST_START_URL"); v != "" {
		c.StartURL = v
	}
	if v := os.Getenv("NEWSHARVEST_FEED_URL"); v != "" {
		c.FeedURL = v
	}
	if v := os.Getenv("NEWSHARVEST_READER_API_KEY"); v != "" {
		c.ReaderAPIKey = v
	}
	if v := os.Getenv("NEWSHARVEST_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("NEWSHARVEST_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NEWSHARVEST_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Headless = b
		}
	}
}
