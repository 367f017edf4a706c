// Package app wires the services shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jordanlanch/leadscope/config"
	"github.com/jordanlanch/leadscope/pkg/audit"
	"github.com/jordanlanch/leadscope/pkg/business"
	"github.com/jordanlanch/leadscope/pkg/cache"
	"github.com/jordanlanch/leadscope/pkg/competitor"
	"github.com/jordanlanch/leadscope/pkg/dashboard"
	"github.com/jordanlanch/leadscope/pkg/database"
	"github.com/jordanlanch/leadscope/pkg/history"
	"github.com/jordanlanch/leadscope/pkg/jobs"
	"github.com/jordanlanch/leadscope/pkg/logger"
	"github.com/jordanlanch/leadscope/pkg/mapdata"
	"github.com/jordanlanch/leadscope/pkg/maps"
	"github.com/jordanlanch/leadscope/pkg/metrics"
	"github.com/jordanlanch/leadscope/pkg/scrape"
	"github.com/jordanlanch/leadscope/pkg/scraper"
	"github.com/jordanlanch/leadscope/pkg/search"
)

// App holds the wired services
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics
	DB      *database.Client
	Cache   *cache.Client // nil when Redis is not configured

	Geocoder     *maps.Geocoder
	Finder       *maps.PlaceFinder
	Businesses   *business.Repository
	Upserter     *business.Upserter
	Tracker      *history.Tracker
	Ranker       *competitor.Ranker
	Assembler    *mapdata.Assembler
	Scrapes      *scrape.Store
	Crawler      *scraper.Crawler
	Orchestrator *scrape.Orchestrator
	Search       *search.Service
	Dashboard    *dashboard.Service
	Audit        *audit.Service
	Cron         *jobs.CronManager
}

// New connects to the database (and Redis when configured) and builds every
// service. m may be nil.
func New(cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*App, error) {
	log = logger.OrDefault(log)

	sslCfg := &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	}
	db, err := database.NewClientWithSSL(cfg.DBDriver, cfg.DatabaseURL, sslCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{Config: cfg, Logger: log, Metrics: m, DB: db}
	if cfg.RedisURL != "" {
		a.Cache, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.Config

	a.Audit = audit.NewService(a.DB, a.Logger)
	client := maps.NewClient(maps.ClientConfig{
		BaseURL:  cfg.MapsBaseURL,
		APIKey:   cfg.MapsAPIKey,
		Timeout:  cfg.OutboundTimeout,
		Observer: a.Audit,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	geocoderOpts := []maps.GeocoderOption{maps.WithGeocoderMetrics(a.Metrics)}
	if a.Cache != nil {
		geocoderOpts = append(geocoderOpts, maps.WithCache(a.Cache, cfg.GeocodeCacheTTL))
	}
	a.Geocoder = maps.NewGeocoder(client, geocoderOpts...)
	a.Finder = maps.NewPlaceFinder(client, a.Geocoder, cfg.DetailsConcurrency)

	a.Businesses = business.NewRepository(a.DB)
	a.Upserter = business.NewUpserter(a.DB, a.Businesses, a.Logger, a.Metrics)
	a.Tracker = history.NewTracker(a.DB, a.Logger)
	competitors := competitor.NewStore(a.DB)
	a.Ranker = competitor.NewRanker(a.DB, a.Tracker, a.Businesses, competitors, a.Logger, a.Metrics)
	a.Assembler = mapdata.NewAssembler(a.Tracker, a.Businesses, competitors, a.Logger)
	a.Scrapes = scrape.NewStore(a.DB)

	crawler, err := a.newCrawler()
	if err != nil {
		return err
	}
	a.Crawler = crawler

	var locker scrape.Locker = scrape.NewLocalLocker()
	if a.Cache != nil {
		locker = scrape.NewRedisLocker(a.Cache, a.Logger)
	}
	scrapeCfg := scrape.DefaultConfig()
	scrapeCfg.Workers = cfg.ScraperWorkers
	scrapeCfg.QueueSize = cfg.ScraperQueueSize
	a.Orchestrator = scrape.NewOrchestrator(a.Scrapes, a.Crawler, locker, scrapeCfg, a.Logger, a.Metrics)

	a.Search = search.NewService(search.Deps{
		Finder:    a.Finder,
		Locator:   a.Geocoder,
		Upserter:  a.Upserter,
		Repo:      a.Businesses,
		Tracker:   a.Tracker,
		Ranker:    a.Ranker,
		Assembler: a.Assembler,
		Scrapes:   a.Scrapes,
		Trigger:   a.Orchestrator,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	})
	a.Dashboard = dashboard.NewService(a.DB, a.Tracker, a.Businesses, a.Scrapes, a.Logger)
	a.Cron = jobs.NewCronManager(jobs.NewScrapeMonitor(a.DB, a.Scrapes, cfg.ScrapeStaleAfter, a.Logger), a.Logger)
	return nil
}

func (a *App) newCrawler() (*scraper.Crawler, error) {
	cfg := a.Config

	rules, err := scraper.LoadRules(cfg.ScraperRulesPath)
	if err != nil {
		return nil, err
	}

	var fetcher scraper.Fetcher
	if cfg.ScraperBrowser {
		fetcher = scraper.NewBrowserFetcher(cfg.ScraperChromePath)
	} else {
		fetcher = scraper.NewHTTPFetcher(&http.Client{Timeout: cfg.ScraperPageTimeout})
	}

	opts := []scraper.Option{
		scraper.WithRules(rules),
		scraper.WithConfig(scraper.Config{
			HomepageTimeout: cfg.ScraperHomepageTimeout,
			PageTimeout:     cfg.ScraperPageTimeout,
			MaxPages:        cfg.ScraperMaxPages,
		}),
		scraper.WithLogger(a.Logger),
		scraper.WithMetrics(a.Metrics),
	}
	if cfg.ScraperVerifyMX {
		opts = append(opts, scraper.WithVerifier(scraper.NewMXVerifier(nil, 5*time.Second)))
	}
	return scraper.NewCrawler(fetcher, opts...), nil
}

// Shutdown stops the crawl workers
func (a *App) Shutdown(ctx context.Context) error {
	if a.Orchestrator == nil {
		return nil
	}
	return a.Orchestrator.Shutdown(ctx)
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			log.Printf("⚠️  Failed to close Redis: %v", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("⚠️  Failed to close database: %v", err)
	}
}
