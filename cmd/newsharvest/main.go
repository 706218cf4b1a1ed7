package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	newsharvest "github.com/pevans/newsharvest"
	"github.com/pevans/newsharvest/browser"
	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/enrich"
	"github.com/pevans/newsharvest/feed"
	"github.com/pevans/newsharvest/scraper"
	"github.com/pevans/newsharvest/sentiment"
	"github.com/pevans/newsharvest/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func run() error {
	// Best effort; a missing .env just means the environment is already set.
	_ = godotenv.Load()

	var (
		configPath     = flag.String("config", "newsharvest.yaml", "path to config file")
		forceUpdate    = flag.Bool("force-update", false, "re-extract articles already in the cache")
		maxConcurrency = flag.Int("max-concurrency", 0, "cap on per-element fallback extraction (0 uses config)")
		skipEnrich     = flag.Bool("skip-enrich", false, "stop after the harvest pass")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if *forceUpdate {
		cfg.ForceRefresh = true
	}
	if *maxConcurrency > 0 {
		cfg.MaxConcurrency = *maxConcurrency
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.ScreenshotDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cache := newsharvest.LoadCache(cfg.CachePath, newsharvest.DefaultCheckpointInterval, log)
	log.WithField("cached", cache.Len()).Info("cache loaded")

	chrome, err := browser.NewChrome(ctx, browser.ChromeOptions{Headless: cfg.Headless})
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer chrome.Stop()

	if err := harvest(ctx, cfg, chrome, cache, log); err != nil {
		return err
	}

	if cfg.FeedURL != "" {
		feed.Backfill(ctx, cfg.FeedURL, cache, log)
	}

	if *skipEnrich {
		return nil
	}
	return enrichPass(ctx, cfg, chrome, cache, log)
}

func harvest(ctx context.Context, cfg config.Config, chrome *browser.Chrome, cache *newsharvest.Cache, log *logrus.Logger) error {
	page, err := chrome.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	extractor := scraper.NewExtractor(cfg.MaxConcurrency, log)
	extractor.ForceRefresh = cfg.ForceRefresh
	extractor.Score = sentiment.Score

	s := &scraper.Scraper{
		Gate:              scraper.NewGate(cfg.ScreenshotDir, log),
		Driver:            scraper.NewDriver(cfg.ScrollPause.Std(), cfg.MaxRetries, log),
		Extractor:         extractor,
		StartURL:          cfg.StartURL,
		UniqueSourcesPath: cfg.UniqueSourcesPath,
		Log:               log,
	}
	return s.Run(ctx, page, cache)
}

func enrichPass(ctx context.Context, cfg config.Config, chrome *browser.Chrome, cache *newsharvest.Cache, log *logrus.Logger) error {
	index := newsharvest.LoadRedirectIndex(cfg.RedirectIndexPath, log)

	configs, err := enrich.LoadSourceConfigs(cfg.SourceConfigPath)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	reader := enrich.NewReader(cfg.ReaderBaseURL, cfg.ReaderAPIKey, configs, log)
	log.WithField("interval", reader.Interval()).Info("reader rate configured")

	pool := make([]browser.Page, 0, cfg.SessionPoolSize)
	defer func() {
		for _, p := range pool {
			p.Close()
		}
	}()
	for i := 0; i < cfg.SessionPoolSize; i++ {
		p, err := chrome.NewPage()
		if err != nil {
			return fmt.Errorf("failed to open session: %w", err)
		}
		pool = append(pool, p)
	}

	e := &enrich.Enricher{
		Cache:    cache,
		Index:    index,
		Reader:   reader,
		Resolver: &enrich.Resolver{
			OriginBase:      cfg.OriginBase,
			ChallengeMarker: "#challenge-error-title",
			Log:             log,
		},
		Sink:     db,
		Log:      log,
	}
	return e.Run(ctx, pool)
}
