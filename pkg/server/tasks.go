package server

import (
	"context"
	"net"
	"net/http"

	"github.com/thejerf/suture/v4"

	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
	"github.com/nicktill/ntk-tracker/pkg/scheduler"
)

// Services lists the background services of the tracker, HTTP server last.
func (a *App) Services() []suture.Service {
	svcs := []suture.Service{
		a.Hub,
		scheduler.NewCacheSweep(a.Cache, a.Config.Cache.SweepInterval),
		scheduler.NewCacheFlush(a.Cache, a.Norm, a.Clock),
	}

	if a.Fetcher != nil {
		task := &scheduler.ScrapeTask{
			Fetch:         a.Fetcher,
			Record:        a.Service,
			Monitor:       a.ScrapeMonitor,
			InsertTimeout: config.ScrapeInsertTimeout,
		}
		svcs = append(svcs, scheduler.NewScrapeService(task, a.Config.Scrape.Interval))
	}

	if gc, ok := a.Store.(scheduler.GarbageCollector); ok {
		svcs = append(svcs, scheduler.NewBadgerGC(gc, config.BadgerGCInterval))
	}
	if a.Disk != nil {
		svcs = append(svcs, scheduler.NewPeriodic("storage-check", config.StorageCheckInterval, true, a.checkDisk))
	}

	return append(svcs, NewHTTPService(a.HTTPServer(), a.Config.Server.ShutdownTimeout))
}

// HTTPServer builds the listener configured in cfg.Server.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort("", a.Config.Server.Port),
		Handler:      a.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// checkDisk warns when the data directory outgrows its limit.
func (a *App) checkDisk(context.Context) error {
	report, err := a.Disk.Report()
	if err != nil {
		return err
	}
	metrics.StorageBytes.Set(float64(report.UsedBytes))
	if report.OverLimit {
		a.log.Warn().
			Int64("used_bytes", report.UsedBytes).
			Int64("limit_bytes", report.LimitBytes).
			Msg("data directory exceeds the configured storage limit")
	}
	return nil
}
