package predict

import (
	"context"
	"errors"
	"fmt"
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

// ErrInvalidDate rejects a malformed date parameter.
var ErrInvalidDate = errors.New("predict: invalid date, expected YYYY-MM-DD")

// Source supplies uncached readings.
type Source interface {
	Range(ctx context.Context, start, end time.Time) ([]storage.Reading, error)
	ByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]storage.Reading, error)
	Latest(ctx context.Context) (*storage.Reading, error)
}

// Config tunes the engine.
type Config struct {
	LookbackWeeks int
	StartOfDay    timezone.Slot
	EndOfDay      timezone.Slot
	BaselineTTL   time.Duration
	CurveTTL      time.Duration
}

// DefaultConfig covers 06:00 to 24:00 over eight weeks of history.
func DefaultConfig() Config {
	return Config{
		LookbackWeeks: 8,
		StartOfDay:    timezone.MustParseSlot("06:00"),
		EndOfDay:      timezone.EndOfDay,
		BaselineTTL:   10 * time.Minute,
		CurveTTL:      2 * time.Minute,
	}
}

// Engine builds day curves.
type Engine struct {
	src   Source
	cache *cache.Cache
	norm  *timezone.Normalizer
	clock clock.Clock
	cfg   Config
	log   zerolog.Logger
}

// NewEngine creates an engine over src.
func NewEngine(src Source, c *cache.Cache, norm *timezone.Normalizer, clk clock.Clock, cfg Config) *Engine {
	if cfg.LookbackWeeks <= 0 {
		cfg.LookbackWeeks = DefaultConfig().LookbackWeeks
	}
	if cfg.EndOfDay <= cfg.StartOfDay {
		cfg.StartOfDay, cfg.EndOfDay = DefaultConfig().StartOfDay, DefaultConfig().EndOfDay
	}
	return &Engine{src: src, cache: c, norm: norm, clock: clk, cfg: cfg, log: logging.Component("predict")}
}

// Slots lists the slots every curve covers.
func (e *Engine) Slots() []timezone.Slot {
	return timezone.SlotRange(e.cfg.StartOfDay, e.cfg.EndOfDay)
}

// DayCurve returns the curve of a local date; "" means today. Store failures
// degrade the curve instead of failing it, and degraded curves are not cached.
func (e *Engine) DayCurve(ctx context.Context, date string) ([]Point, error) {
	now := e.clock.Now()
	today := e.norm.Date(now)
	if date == "" {
		date = today
	}

	midnight, err := e.norm.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	date = e.norm.Date(midnight)

	key := cache.Key(cache.NSPredict, date)
	if v, ok := e.cache.Get(key); ok {
		if points, ok := v.([]Point); ok {
			return points, nil
		}
	}

	start := time.Now()
	points, degraded := e.build(ctx, date, today, midnight)
	metrics.PredictDuration.Observe(time.Since(start).Seconds())

	if !degraded {
		e.cache.SetWithTTL(key, points, e.cfg.CurveTTL)
	}
	return points, nil
}

func (e *Engine) build(ctx context.Context, date, today string, midnight time.Time) ([]Point, bool) {
	var degraded bool

	baseline, err := e.Baseline(ctx, midnight.Weekday())
	if err != nil {
		e.degrade("baseline", date, err)
		degraded = true
	}

	// Readings before the first slot never reach the curve.
	day, err := e.src.Range(ctx, e.norm.SlotStart(midnight, e.cfg.StartOfDay), e.norm.NextMidnight(midnight))
	if err != nil {
		e.degrade("day_range", date, err)
		degraded = true
		day = nil
	}

	in := CurveInput{
		Slots:    e.Slots(),
		Baseline: baseline,
		Day:      day,
		Kind:     kindOf(date, today),
		Norm:     e.norm,
	}

	if in.Kind == Today {
		live, err := e.src.Latest(ctx)
		if err != nil {
			// Fall back to the day's own last reading.
			e.degrade("latest", date, err)
			degraded = true
			live = nil
		}
		in.Anchor = SelectAnchor(live, day, e.norm, date)
	}

	points := Assemble(in)
	ev := e.log.Debug().Str("date", date).Int("day_readings", len(day)).Int("observed_slots", baseline.Observed)
	if in.Anchor != nil {
		ev = ev.Str("anchor", in.Anchor.Slot.Label()).Int("offset", Offset(baseline, in.Anchor))
	}
	ev.Msg("day curve built")
	return points, degraded
}

// Baseline returns the cached seasonal baseline of a weekday.
func (e *Engine) Baseline(ctx context.Context, dow time.Weekday) (Baseline, error) {
	key := cache.Key(cache.NSDow, strconv.Itoa(int(dow)), strconv.Itoa(e.cfg.LookbackWeeks))
	return cache.Remember(e.cache, key, e.cfg.BaselineTTL, func() (Baseline, error) {
		readings, err := e.src.ByDayOfWeek(ctx, dow, e.cfg.LookbackWeeks)
		if err != nil {
			return Baseline{}, err
		}
		return BuildBaseline(readings, e.norm), nil
	})
}

func (e *Engine) degrade(op, date string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	e.log.Error().Err(err).Str("operation", op).Str("date", date).Msg("store read failed, curve degraded")
}

// kindOf compares ISO dates; lexical order is chronological.
func kindOf(date, today string) DayKind {
	switch {
	case date < today:
		return Past
	case date > today:
		return Future
	}
	return Today
}
