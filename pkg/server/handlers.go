package server

import (
	"context"
	"net/http"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/httpx"
	"github.com/nicktill/ntk-tracker/pkg/server/monitor"
	"github.com/nicktill/ntk-tracker/pkg/storage"
)

// CacheHealth summarizes the read cache.
type CacheHealth struct {
	cache.Stats
	HitRate float64 `json:"hitRate"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version"`
	Uptime      string              `json:"uptime"`
	Timezone    string              `json:"timezone"`
	Scrape      *monitor.TaskStatus `json:"scrape,omitempty"`
	Breaker     string              `json:"breaker,omitempty"`
	LiveClients int                 `json:"liveClients"`
	Cache       CacheHealth         `json:"cache"`
}

// StorageResponse is the /api/storage body.
type StorageResponse struct {
	Store *storage.Stats         `json:"store"`
	Disk  *monitor.StorageReport `json:"disk,omitempty"`
	Cache CacheHealth            `json:"cache"`
}

// handleHealth reports "ok", or "degraded" with 503 once the scraper keeps
// failing.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Version:     Version,
		Uptime:      a.Clock.Now().Sub(a.startedAt).Round(time.Second).String(),
		Timezone:    a.Norm.Name(),
		LiveClients: a.Hub.ClientCount(),
		Cache:       a.cacheHealth(),
	}
	status := http.StatusOK

	if a.ScrapeMonitor != nil {
		s := a.ScrapeMonitor.Status()
		resp.Scrape = &s
		if !s.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if a.Fetcher != nil {
		resp.Breaker = a.Fetcher.State().String()
	}

	httpx.RespondJSON(w, status, resp)
}

// handleStorage reports row counts, disk usage and cache counters.
func (a *App) handleStorage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	resp := StorageResponse{
		Store: a.Service.Stats(ctx),
		Cache: a.cacheHealth(),
	}
	if a.Disk != nil {
		report, err := a.Disk.Report()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Disk = &report
	}
	httpx.RespondJSON(w, http.StatusOK, resp)
}

func (a *App) cacheHealth() CacheHealth {
	return CacheHealth{Stats: a.Cache.Stats(), HitRate: storage.Round2(a.Cache.HitRate())}
}

// withTimeout bounds the request context.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
