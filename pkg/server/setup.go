package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/export"
	"github.com/nicktill/ntk-tracker/pkg/graphql"
	"github.com/nicktill/ntk-tracker/pkg/live"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/occupancy"
	"github.com/nicktill/ntk-tracker/pkg/predict"
	"github.com/nicktill/ntk-tracker/pkg/scrape"
	"github.com/nicktill/ntk-tracker/pkg/server/monitor"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/badger"
	"github.com/nicktill/ntk-tracker/pkg/storage/memory"
	"github.com/nicktill/ntk-tracker/pkg/storage/postgres"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Version is reported by /health.
const Version = "1.0.0"

// OpenStore opens the backend named by cfg.Storage.Driver. Postgres tables
// are created if missing.
func OpenStore(ctx context.Context, cfg *config.Config, clk clock.Clock, norm *timezone.Normalizer) (storage.Store, error) {
	log := logging.Component("setup")

	switch cfg.Storage.Driver {
	case "memory":
		log.Warn().Msg("using in-memory storage, readings are lost on restart")
		return memory.New(clk, norm), nil

	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Storage.Postgres.DSN,
			MaxConns: cfg.Storage.Postgres.MaxConns,
		}, clk, norm)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("postgres storage initialized")
		return store, nil

	default:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := badger.New(badger.Config{
			Path:        cfg.Storage.DataDir,
			MaxMemoryMB: cfg.Storage.MaxMemoryMB,
		}, clk, norm)
		if err != nil {
			return nil, err
		}
		log.Info().Str("data_dir", cfg.Storage.DataDir).Int64("max_memory_mb", cfg.Storage.MaxMemoryMB).Msg("badger storage initialized")
		return store, nil
	}
}

// App holds the wired components of a running tracker.
type App struct {
	Config  *config.Config
	Clock   clock.Clock
	Norm    *timezone.Normalizer
	Store   storage.Store
	Cache   *cache.Cache
	Service *occupancy.Service
	Engine  *predict.Engine
	Hub     *live.Hub
	GraphQL *graphql.Handler
	Export  *export.Handler

	// Fetcher and ScrapeMonitor are nil when scraping is disabled.
	Fetcher       *scrape.Fetcher
	ScrapeMonitor *monitor.TaskMonitor
	// Disk is nil for backends without a local data directory.
	Disk *monitor.StorageMonitor

	startedAt time.Time
	log       zerolog.Logger
}

// NewApp builds every component on top of an open store.
func NewApp(cfg *config.Config, store storage.Store, clk clock.Clock, norm *timezone.Normalizer) (*App, error) {
	start, err := timezone.ParseSlot(cfg.Predict.StartOfDay)
	if err != nil {
		return nil, fmt.Errorf("predict.start_of_day: %w", err)
	}
	end, err := timezone.ParseSlot(cfg.Predict.EndOfDay)
	if err != nil {
		return nil, fmt.Errorf("predict.end_of_day: %w", err)
	}

	a := &App{
		Config:    cfg,
		Clock:     clk,
		Norm:      norm,
		Store:     store,
		Cache:     cache.New(clk, cfg.Cache.DefaultTTL),
		Hub:       live.NewHub(),
		startedAt: clk.Now(),
		log:       logging.Component("setup"),
	}

	a.Service = occupancy.NewService(store, a.Cache, norm, clk,
		occupancy.WithNotifier(a.Hub),
		occupancy.WithTTLs(cacheTTLs(cfg.Cache)),
		occupancy.WithStartOfDay(start),
	)

	a.Engine = predict.NewEngine(a.Service, a.Cache, norm, clk, predict.Config{
		LookbackWeeks: cfg.Predict.LookbackWeeks,
		StartOfDay:    start,
		EndOfDay:      end,
		BaselineTTL:   cfg.Cache.DayOfWeek,
		CurveTTL:      cfg.Cache.Predict,
	})

	a.GraphQL, err = graphql.NewHandler(a.Service, a.Engine, norm, config.GraphQLTimeout)
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}

	var importer *export.Importer
	if cfg.Export.AllowImport {
		importer = export.NewImporter(a.Service, norm, clk)
	}
	a.Export = export.NewHandler(export.NewExporter(a.Service, norm, clk), importer, cfg.Export.MaxImportMB<<20)

	if cfg.Scrape.Enabled {
		a.Fetcher = scrape.NewFetcher(scrape.Config{
			URL:             cfg.Scrape.URL,
			Selector:        cfg.Scrape.Selector,
			UserAgent:       cfg.Scrape.UserAgent,
			Timeout:         cfg.Scrape.Timeout,
			BreakerFailures: cfg.Scrape.BreakerFailures,
			BreakerCooldown: cfg.Scrape.BreakerCooldown,
		}, nil)
		// Overnight the page keeps loading, so staleness means a real outage.
		a.ScrapeMonitor = monitor.NewTaskMonitor("scraper", clk, 4*cfg.Scrape.Interval, config.TaskFailureThreshold)
	}

	if cfg.Storage.Driver == "badger" {
		a.Disk = monitor.NewStorageMonitor(cfg.Storage.DataDir, cfg.Storage.MaxStorageGB<<30, clk)
	}

	a.log.Info().
		Str("driver", cfg.Storage.Driver).
		Str("timezone", norm.Name()).
		Bool("scrape", cfg.Scrape.Enabled).
		Bool("import", cfg.Export.AllowImport).
		Msg("components initialized")
	return a, nil
}

func cacheTTLs(c config.CacheConfig) occupancy.TTLs {
	return occupancy.TTLs{
		cache.NSHistory: c.History,
		cache.NSCurrent: c.Current,
		cache.NSHighest: c.Highest,
		cache.NSDow:     c.DayOfWeek,
		cache.NSDaily:   c.Daily,
		cache.NSWeekly:  c.Weekly,
		cache.NSDayAvg:  c.DayAverage,
		cache.NSHeatmap: c.Heatmap,
		cache.NSPredict: c.Predict,
	}
}
