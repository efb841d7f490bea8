package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/config"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
	"github.com/nicktill/ntk-tracker/pkg/server/monitor"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Fetcher reads the current occupancy from upstream.
type Fetcher interface {
	FetchCurrentOccupancy(ctx context.Context) (int, error)
}

// Recorder persists a count.
type Recorder interface {
	Record(ctx context.Context, count int) (storage.Reading, error)
}

// ScrapeTask is one fetch-and-store cycle.
type ScrapeTask struct {
	Fetch         Fetcher
	Record        Recorder
	Monitor       *monitor.TaskMonitor
	InsertTimeout time.Duration
}

// Tick runs one cycle synchronously. A failed cycle is skipped: nothing is
// stored and the failure is recorded on the monitor.
func (t *ScrapeTask) Tick(ctx context.Context) error {
	count, err := t.Fetch.FetchCurrentOccupancy(ctx)
	if err != nil {
		metrics.ScrapeAttempts.WithLabelValues("fetch_error").Inc()
		t.fail(err)
		return fmt.Errorf("fetch occupancy: %w", err)
	}

	insertCtx := ctx
	if t.InsertTimeout > 0 {
		var cancel context.CancelFunc
		insertCtx, cancel = context.WithTimeout(ctx, t.InsertTimeout)
		defer cancel()
	}

	r, err := t.Record.Record(insertCtx, count)
	if err != nil {
		metrics.ScrapeAttempts.WithLabelValues("insert_error").Inc()
		t.fail(err)
		return fmt.Errorf("record occupancy: %w", err)
	}

	metrics.ScrapeAttempts.WithLabelValues("ok").Inc()
	if t.Monitor != nil {
		t.Monitor.RecordSuccess()
	}
	log := logging.Component("scraper")
	log.Info().Int64("id", r.ID).Int("people_count", r.PeopleCount).Msg("occupancy recorded")
	return nil
}

func (t *ScrapeTask) fail(err error) {
	if t.Monitor != nil {
		t.Monitor.RecordFailure(err)
	}
}

// NewScrapeService repeats task every interval, starting immediately.
func NewScrapeService(task *ScrapeTask, interval time.Duration) *Periodic {
	return NewPeriodic("scraper", interval, true, task.Tick)
}

// NewCacheSweep drops expired cache entries every interval.
func NewCacheSweep(c *cache.Cache, interval time.Duration) *Periodic {
	return NewPeriodic("cache-sweep", interval, false, func(context.Context) error {
		if n := c.Sweep(); n > 0 {
			log := logging.Component("cache")
			log.Debug().Int("expired", n).Msg("swept expired entries")
		}
		return nil
	})
}

// NewCacheFlush empties the cache at every local midnight, when yesterday's
// "today" curves stop being valid.
func NewCacheFlush(c *cache.Cache, norm *timezone.Normalizer, clk clock.Clock) *Daily {
	return NewDaily("cache-flush", norm, clk, func(context.Context) error {
		n := c.Clear()
		log := logging.Component("cache")
		log.Info().Int("evicted", n).Msg("daily cache flush")
		return nil
	})
}

// GarbageCollector reclaims value-log space.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// NewBadgerGC runs one value-log GC pass every interval.
func NewBadgerGC(gc GarbageCollector, interval time.Duration) *Periodic {
	return NewPeriodic("badger-gc", interval, false, func(context.Context) error {
		err := gc.RunGC(config.BadgerGCDiscardRatio)
		if errors.Is(err, badgerdb.ErrNoRewrite) {
			return nil
		}
		return err
	})
}
