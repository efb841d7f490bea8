package predict

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/occupancy"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/memory"
)

func at(date string, hh, mm int) time.Time {
	d, err := time.ParseInLocation("2006-01-02", date, prague.Location())
	if err != nil {
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, prague.Location()).UTC()
}

type engineFixture struct {
	engine *Engine
	store  *memory.Storage
	clock  *clock.Manual
	cache  *cache.Cache
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	clk := clock.NewManual(at("2025-01-15", 10, 0))
	store := memory.New(clk, prague)
	c := cache.New(clk, time.Minute)
	svc := occupancy.NewService(store, c, prague, clk)
	return &engineFixture{
		engine: NewEngine(svc, c, prague, clk, DefaultConfig()),
		store:  store,
		clock:  clk,
		cache:  c,
	}
}

func TestEngine_WednesdayWithoutHistory(t *testing.T) {
	f := newEngineFixture(t)

	points, err := f.engine.DayCurve(context.Background(), "2025-01-22")
	require.NoError(t, err)
	require.Len(t, points, 73)
	assertAscending(t, points)
	for _, p := range points {
		require.NotNil(t, p.PeopleCount, p.Time)
		assert.Equal(t, 0, *p.PeopleCount, p.Time)
		assert.True(t, p.IsPrediction, p.Time)
	}
}

func TestEngine_TodayAnchoredOnLiveReading(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.store.InsertBatch(ctx, []storage.Reading{
		{Timestamp: at("2025-01-08", 10, 0), PeopleCount: 50},
		{Timestamp: at("2025-01-08", 12, 0), PeopleCount: 30},
	})
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, 55)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)

	points, err := f.engine.DayCurve(ctx, "")
	require.NoError(t, err)
	require.Len(t, points, 73)

	anchor := pointAt(t, points, "10:00")
	assert.False(t, anchor.IsPrediction)
	assert.Equal(t, 55, *anchor.PeopleCount)

	// Today's reading joins the Wednesday history: 10:00 -> round(52.5) = 53,
	// overall round(41.5) = 42, offset 55 - 53 = 2.
	assert.Equal(t, 44, *pointAt(t, points, "10:15").PeopleCount)
	assert.Equal(t, 32, *pointAt(t, points, "12:00").PeopleCount)

	gap := pointAt(t, points, "09:45")
	assert.Nil(t, gap.PeopleCount)
	assert.True(t, gap.IsPrediction)
}

func TestEngine_CachesCurve(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first, err := f.engine.DayCurve(ctx, "2025-01-22")
	require.NoError(t, err)

	// Behind the service's back: the cached curve is served.
	_, err = f.store.Insert(ctx, 99)
	require.NoError(t, err)
	second, err := f.engine.DayCurve(ctx, "2025-01-22")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	f.cache.InvalidatePrefixes(cache.WriteSensitive...)
	third, err := f.engine.DayCurve(ctx, "2025-01-22")
	require.NoError(t, err)
	assert.Equal(t, 99, *pointAt(t, third, "10:00").PeopleCount)
}

func TestEngine_EarlyMorningReadingsDoNotCrowdOutTheDay(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	night := make([]storage.Reading, storage.RangeLimit)
	for i := range night {
		night[i] = storage.Reading{Timestamp: at("2025-01-14", 0, 0).Add(time.Duration(i) * 40 * time.Second), PeopleCount: 1}
	}
	_, err := f.store.InsertBatch(ctx, append(night, storage.Reading{Timestamp: at("2025-01-14", 15, 0), PeopleCount: 77}))
	require.NoError(t, err)

	points, err := f.engine.DayCurve(ctx, "2025-01-14")
	require.NoError(t, err)

	afternoon := pointAt(t, points, "15:00")
	require.NotNil(t, afternoon.PeopleCount)
	assert.Equal(t, 77, *afternoon.PeopleCount)
	assert.False(t, afternoon.IsPrediction)
}

type rangeRecorder struct {
	flakySource
	start time.Time
}

func (s *rangeRecorder) Range(_ context.Context, start, _ time.Time) ([]storage.Reading, error) {
	s.start = start
	return nil, nil
}

func TestEngine_DayRangeStartsAtFirstSlot(t *testing.T) {
	clk := clock.NewManual(at("2025-01-15", 10, 0))
	src := &rangeRecorder{}
	e := NewEngine(src, cache.New(clk, time.Minute), prague, clk, DefaultConfig())

	_, err := e.DayCurve(context.Background(), "2025-01-14")
	require.NoError(t, err)
	assert.Equal(t, at("2025-01-14", 6, 0), src.start.UTC())
}

func TestEngine_InvalidDate(t *testing.T) {
	f := newEngineFixture(t)

	for _, date := range []string{"15-01-2025", "2025-13-01", "tomorrow"} {
		_, err := f.engine.DayCurve(context.Background(), date)
		assert.ErrorIs(t, err, ErrInvalidDate, date)
	}
}

type flakySource struct {
	err      error
	readings []storage.Reading
}

func (s *flakySource) Range(context.Context, time.Time, time.Time) ([]storage.Reading, error) {
	return nil, s.err
}

func (s *flakySource) ByDayOfWeek(context.Context, time.Weekday, int) ([]storage.Reading, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.readings, nil
}

func (s *flakySource) Latest(context.Context) (*storage.Reading, error) {
	return nil, s.err
}

func TestEngine_DegradesWithoutCaching(t *testing.T) {
	clk := clock.NewManual(at("2025-01-15", 10, 0))
	src := &flakySource{err: errors.New("connection refused")}
	c := cache.New(clk, time.Minute)
	e := NewEngine(src, c, prague, clk, DefaultConfig())

	points, err := e.DayCurve(context.Background(), "2025-01-22")
	require.NoError(t, err)
	require.Len(t, points, 73)
	assert.Equal(t, 0, *points[0].PeopleCount)
	assert.Zero(t, c.Len(), "degraded curves are not cached")

	src.err = nil
	src.readings = []storage.Reading{{Timestamp: at("2025-01-08", 6, 0), PeopleCount: 8}}
	points, err = e.DayCurve(context.Background(), "2025-01-22")
	require.NoError(t, err)
	assert.Equal(t, 8, *points[0].PeopleCount)
}

func TestHandler_DayCurve(t *testing.T) {
	f := newEngineFixture(t)
	h := NewHandler(f.engine)

	rec := httptest.NewRecorder()
	h.HandleDayCurve(rec, httptest.NewRequest(http.MethodGet, "/api/predict?date=2025-01-22", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 73)
	assert.Equal(t, "06:00", body[0]["time"])
	assert.Contains(t, body[0], "people_count")
	assert.Contains(t, body[0], "is_prediction")
	assert.NotContains(t, body[0], "State")

	rec = httptest.NewRecorder()
	h.HandleDayCurve(rec, httptest.NewRequest(http.MethodGet, "/api/predict?date=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
