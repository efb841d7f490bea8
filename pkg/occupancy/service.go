// Package occupancy is the read/write facade over the store.
//
// Reads are memoized in the cache and never fail: a store error is logged,
// counted and turned into a neutral value (nil slice or nil pointer) so one
// broken aggregate cannot take down the read path. Writes return their
// error to the caller and evict every write-sensitive cache namespace.
package occupancy

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Defaults for read parameters left at zero.
const (
	DefaultDailyDays     = 365
	DefaultLookbackWeeks = 8
	ImportBatchSize      = 5000
)

// Notifier receives every newly recorded reading.
type Notifier interface {
	Broadcast(v any) error
}

// Update is the live message sent for a new reading.
type Update struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	PeopleCount int    `json:"people_count"`
	Timestamp   string `json:"timestamp"`
}

// IntervalAverage is the mean count of one 15-minute slot of a day.
type IntervalAverage struct {
	IntervalStart string  `json:"interval_start"`
	AverageCount  float64 `json:"average_count"`
}

// TTLs maps cache namespaces to entry lifetimes. Missing namespaces use the
// cache default.
type TTLs map[string]time.Duration

// Service wires the store, cache and timezone rules together.
type Service struct {
	store      storage.Store
	cache      *cache.Cache
	norm       *timezone.Normalizer
	clock      clock.Clock
	ttls       TTLs
	startOfDay timezone.Slot
	notifier   Notifier
	log        zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier pushes every recorded reading to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithTTLs sets per-namespace cache lifetimes.
func WithTTLs(ttls TTLs) Option {
	return func(s *Service) { s.ttls = ttls }
}

// WithStartOfDay sets the first slot DailyAverage reports.
func WithStartOfDay(slot timezone.Slot) Option {
	return func(s *Service) { s.startOfDay = slot }
}

// NewService creates the facade.
func NewService(store storage.Store, c *cache.Cache, norm *timezone.Normalizer, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cache:      c,
		norm:       norm,
		clock:      clk,
		ttls:       TTLs{},
		startOfDay: timezone.MustParseSlot("06:00"),
		log:        logging.Component("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalizer exposes the shared timezone rules.
func (s *Service) Normalizer() *timezone.Normalizer { return s.norm }

// Cache exposes the shared cache.
func (s *Service) Cache() *cache.Cache { return s.cache }

// Now reads the service clock.
func (s *Service) Now() time.Time { return s.clock.Now() }

// TTL returns the lifetime configured for a namespace.
func (s *Service) TTL(namespace string) time.Duration { return s.ttls[namespace] }

// Record stores a scraped count, evicts stale aggregates and notifies live
// clients.
func (s *Service) Record(ctx context.Context, count int) (storage.Reading, error) {
	r, err := s.store.Insert(ctx, count)
	if err != nil {
		return storage.Reading{}, err
	}

	evicted := s.cache.InvalidatePrefixes(cache.WriteSensitive...)
	metrics.ReadingsInserted.Inc()
	metrics.LastOccupancy.Set(float64(r.PeopleCount))
	s.log.Debug().Int64("id", r.ID).Int("people_count", r.PeopleCount).Int("evicted", evicted).Msg("reading recorded")

	if s.notifier != nil {
		if err := s.notifier.Broadcast(Update{
			Type:        "occupancy_update",
			ID:          r.ID,
			PeopleCount: r.PeopleCount,
			Timestamp:   s.norm.Timestamp(r.Timestamp),
		}); err != nil {
			s.log.Warn().Err(err).Msg("live broadcast failed")
		}
	}
	return r, nil
}

// Import backfills readings in batches and evicts stale aggregates once.
// On error the count of readings already stored is returned with it.
func (s *Service) Import(ctx context.Context, readings []storage.Reading) (int, error) {
	if err := storage.ValidateBatch(readings); err != nil {
		return 0, err
	}

	var total int
	defer func() {
		if total > 0 {
			s.cache.InvalidatePrefixes(cache.WriteSensitive...)
			metrics.ReadingsInserted.Add(float64(total))
		}
	}()

	for start := 0; start < len(readings); start += ImportBatchSize {
		end := min(start+ImportBatchSize, len(readings))
		n, err := s.store.InsertBatch(ctx, readings[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	s.log.Info().Int("imported", total).Msg("import complete")
	return total, nil
}

// History returns the most recent readings, newest first.
func (s *Service) History(ctx context.Context, limit int) []storage.Reading {
	limit = storage.HistoryWindow(limit)
	return remember(s, "history", cache.Key(cache.NSHistory, strconv.Itoa(limit)), func() ([]storage.Reading, error) {
		return s.store.History(ctx, limit)
	})
}

// Current returns the latest reading or nil.
func (s *Service) Current(ctx context.Context) *storage.Reading {
	return remember(s, "latest", cache.Key(cache.NSCurrent), func() (*storage.Reading, error) {
		return s.store.Latest(ctx)
	})
}

// Highest returns the busiest reading ever recorded, or nil.
func (s *Service) Highest(ctx context.Context) *storage.Reading {
	return remember(s, "max_by_count", cache.Key(cache.NSHighest), func() (*storage.Reading, error) {
		return s.store.MaxByCount(ctx)
	})
}

// DailyAverages returns per-date means of the last lastDays days.
func (s *Service) DailyAverages(ctx context.Context, lastDays int) []storage.DailyAverage {
	if lastDays <= 0 {
		lastDays = DefaultDailyDays
	}
	return remember(s, "daily_averages", cache.Key(cache.NSDaily, strconv.Itoa(lastDays)), func() ([]storage.DailyAverage, error) {
		return s.store.DailyAverages(ctx, lastDays)
	})
}

// WeeklyAverages returns per-weekday means of the lookback window.
func (s *Service) WeeklyAverages(ctx context.Context, lookbackWeeks int) []storage.WeeklyAverage {
	if lookbackWeeks <= 0 {
		lookbackWeeks = DefaultLookbackWeeks
	}
	return remember(s, "weekly_averages", cache.Key(cache.NSWeekly, strconv.Itoa(lookbackWeeks)), func() ([]storage.WeeklyAverage, error) {
		return s.store.WeeklyAverages(ctx, lookbackWeeks)
	})
}

// Heatmap returns weekday x hour means of the lookback window.
func (s *Service) Heatmap(ctx context.Context, lookbackWeeks int) []storage.HeatmapCell {
	if lookbackWeeks <= 0 {
		lookbackWeeks = DefaultLookbackWeeks
	}
	return remember(s, "heatmap", cache.Key(cache.NSHeatmap, strconv.Itoa(lookbackWeeks)), func() ([]storage.HeatmapCell, error) {
		return s.store.Heatmap(ctx, lookbackWeeks)
	})
}

// DailyAverage returns 15-minute interval means of one local date, from the
// start-of-day slot to the end of the day. Malformed dates yield nil.
func (s *Service) DailyAverage(ctx context.Context, date string) []IntervalAverage {
	midnight, err := s.norm.ParseDate(date)
	if err != nil {
		s.log.Debug().Str("date", date).Msg("daily average: unparseable date")
		return nil
	}
	date = s.norm.Date(midnight)

	return remember(s, "daily_average", cache.Key(cache.NSDayAvg, date), func() ([]IntervalAverage, error) {
		start := s.norm.SlotStart(midnight, s.startOfDay)
		readings, err := s.store.QueryRange(ctx, start, s.norm.NextMidnight(midnight))
		if err != nil {
			return nil, err
		}
		return s.intervalAverages(midnight, readings), nil
	})
}

func (s *Service) intervalAverages(midnight time.Time, readings []storage.Reading) []IntervalAverage {
	var buckets [timezone.SlotsPerDay]storage.Aggregate
	for _, r := range readings {
		buckets[s.norm.SlotOf(r.Timestamp)].Add(r.PeopleCount)
	}

	var out []IntervalAverage
	for slot := range buckets {
		if buckets[slot].Count == 0 {
			continue
		}
		out = append(out, IntervalAverage{
			IntervalStart: s.norm.Timestamp(s.norm.SlotStart(midnight, timezone.Slot(slot))),
			AverageCount:  storage.Round2(buckets[slot].Average()),
		})
	}
	return out
}

// Stats reports store statistics, nil on failure.
func (s *Service) Stats(ctx context.Context) *storage.Stats {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.neutral("stats", err)
		return nil
	}
	return stats
}

// Range passes through to the store without caching.
func (s *Service) Range(ctx context.Context, start, end time.Time) ([]storage.Reading, error) {
	return s.store.QueryRange(ctx, start, end)
}

// ByDayOfWeek passes through to the store without caching.
func (s *Service) ByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]storage.Reading, error) {
	return s.store.QueryByDayOfWeek(ctx, dow, lookbackWeeks)
}

// Latest passes through to the store without caching.
func (s *Service) Latest(ctx context.Context) (*storage.Reading, error) {
	return s.store.Latest(ctx)
}

// All returns every reading for export.
func (s *Service) All(ctx context.Context) ([]storage.Reading, error) {
	return s.store.All(ctx)
}

func (s *Service) neutral(op string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.log.Error().Err(err).Str("operation", op).Msg("store read failed, serving neutral result")
}

// remember is cache.Remember with the neutral-on-error policy applied.
func remember[T any](s *Service, op, key string, fn func() (T, error)) T {
	v, err := cache.Remember(s.cache, key, s.ttls[cache.Namespace(key)], fn)
	if err != nil {
		s.neutral(op, err)
		var zero T
		return zero
	}
	return v
}
