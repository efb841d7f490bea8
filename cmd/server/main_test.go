package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/scheduler"
	"github.com/nicktill/ntk-tracker/pkg/server"
	"github.com/nicktill/ntk-tracker/pkg/storage/memory"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

const homepage = `<html><body>
<div class="panel-body text-center lead"><span> 57 </span></div>
</body></html>`

// TestE2E_ScrapeThenPredict scrapes a fake homepage once and reads the
// result back through the day curve.
func TestE2E_ScrapeThenPredict(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(homepage))
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Server.StaticDir = ""
	cfg.Scrape.URL = upstream.URL

	norm := timezone.MustNew(cfg.Timezone.Name)
	// 10:07 in Prague on a Wednesday.
	clk := clock.NewManual(time.Date(2025, 1, 15, 9, 7, 0, 0, time.UTC))
	app, err := server.NewApp(&cfg, memory.New(clk, norm), clk, norm)
	require.NoError(t, err)

	task := &scheduler.ScrapeTask{Fetch: app.Fetcher, Record: app.Service, Monitor: app.ScrapeMonitor}
	require.NoError(t, task.Tick(context.Background()))
	assert.True(t, app.ScrapeMonitor.IsHealthy())

	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/predict", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var points []struct {
		Time         string `json:"time"`
		PeopleCount  *int   `json:"people_count"`
		IsPrediction bool   `json:"is_prediction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 73)

	assert.Equal(t, "06:00", points[0].Time)
	assert.Nil(t, points[0].PeopleCount, "slots before the anchor are gaps")

	anchor := points[16]
	require.Equal(t, "10:00", anchor.Time)
	require.NotNil(t, anchor.PeopleCount)
	assert.Equal(t, 57, *anchor.PeopleCount)
	assert.False(t, anchor.IsPrediction)

	next := points[17]
	require.NotNil(t, next.PeopleCount)
	assert.Equal(t, 57, *next.PeopleCount)
	assert.True(t, next.IsPrediction)
}

func TestRunFailsOnMissingConfig(t *testing.T) {
	err := run(context.Background(), "/nonexistent/ntk-tracker.yaml")
	assert.Error(t, err)
}
