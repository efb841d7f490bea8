// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store driven by clk and norm.
type Factory func(t *testing.T, clk clock.Clock, norm *timezone.Normalizer) storage.Store

// Start is a Wednesday morning in Prague (09:00 UTC = 10:00 local).
var Start = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

// Run exercises a backend against the shared contract.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store, clk *clock.Manual)
	}{
		{"InsertStampsClock", testInsertStampsClock},
		{"InsertRejectsNegative", testInsertRejectsNegative},
		{"EmptyStore", testEmptyStore},
		{"QueryRangeHalfOpenAscending", testQueryRange},
		{"QueryRangeCap", testQueryRangeCap},
		{"QueryByDayOfWeek", testQueryByDayOfWeek},
		{"HistoryNewestFirst", testHistory},
		{"LatestAndMax", testLatestAndMax},
		{"InsertBatchKeepsTimestamps", testInsertBatch},
		{"Averages", testAverages},
		{"ClearAndStats", testClearAndStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(Start)
			s := open(t, clk, timezone.MustNew(timezone.DefaultZone))
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s, clk)
		})
	}
}

func testInsertStampsClock(t *testing.T, s storage.Store, clk *clock.Manual) {
	ctx := context.Background()

	first, err := s.Insert(ctx, 12)
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)
	second, err := s.Insert(ctx, 0)
	require.NoError(t, err)

	assert.True(t, Start.Equal(first.Timestamp))
	assert.Equal(t, 12, first.PeopleCount)
	assert.Greater(t, second.ID, first.ID, "ids are monotonic")
	assert.Equal(t, 0, second.PeopleCount)
}

func testInsertRejectsNegative(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()

	_, err := s.Insert(ctx, -1)
	assert.ErrorIs(t, err, storage.ErrNegativeCount)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "rejected reading must not be stored")
}

func testEmptyStore(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	highest, err := s.MaxByCount(ctx)
	require.NoError(t, err)
	assert.Nil(t, highest)

	rows, err := s.QueryByDayOfWeek(ctx, time.Wednesday, 8)
	require.NoError(t, err)
	assert.Empty(t, rows)

	daily, err := s.DailyAverages(ctx, 365)
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func testQueryRange(t *testing.T, s storage.Store, clk *clock.Manual) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := s.Insert(ctx, i)
		require.NoError(t, err)
		clk.Advance(15 * time.Minute)
	}

	rows, err := s.QueryRange(ctx, Start.Add(15*time.Minute), Start.Add(45*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 2, "end bound is exclusive")
	assert.Equal(t, 1, rows[0].PeopleCount)
	assert.Equal(t, 2, rows[1].PeopleCount)
}

func testQueryRangeCap(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()
	batch := make([]storage.Reading, storage.RangeLimit+20)
	for i := range batch {
		batch[i] = storage.Reading{Timestamp: Start.Add(time.Duration(i) * time.Minute), PeopleCount: i}
	}
	n, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, len(batch), n)

	rows, err := s.QueryRange(ctx, Start, Start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, storage.RangeLimit)
	assert.Equal(t, 0, rows[0].PeopleCount, "cap keeps the oldest rows")
}

func testQueryByDayOfWeek(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()
	batch := []storage.Reading{
		{Timestamp: Start.AddDate(0, 0, -7), PeopleCount: 10},                       // Wednesday, last week
		{Timestamp: Start.AddDate(0, 0, -14), PeopleCount: 20},                      // Wednesday, two weeks ago
		{Timestamp: Start.AddDate(0, 0, -7*10), PeopleCount: 99},                    // Wednesday, out of window
		{Timestamp: Start.AddDate(0, 0, -1), PeopleCount: 5},                        // Tuesday
		{Timestamp: time.Date(2025, 1, 14, 23, 30, 0, 0, time.UTC), PeopleCount: 7}, // Wednesday 00:30 local
	}
	_, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)

	rows, err := s.QueryByDayOfWeek(ctx, time.Wednesday, 8)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{7, 10, 20}, counts(rows), "newest first")

	rows, err = s.QueryByDayOfWeek(ctx, time.Tuesday, 8)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, counts(rows))
}

func testHistory(t *testing.T, s storage.Store, clk *clock.Manual) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, i)
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	rows, err := s.History(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2}, counts(rows))

	rows, err = s.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func testLatestAndMax(t *testing.T, s storage.Store, clk *clock.Manual) {
	ctx := context.Background()
	for _, c := range []int{3, 40, 12} {
		_, err := s.Insert(ctx, c)
		require.NoError(t, err)
		clk.Advance(5 * time.Minute)
	}

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 12, latest.PeopleCount)

	highest, err := s.MaxByCount(ctx)
	require.NoError(t, err)
	require.NotNil(t, highest)
	assert.Equal(t, 40, highest.PeopleCount)
}

func testInsertBatch(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()
	old := Start.Add(-72 * time.Hour)

	n, err := s.InsertBatch(ctx, []storage.Reading{{ID: 999, Timestamp: old, PeopleCount: 8}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, old.Equal(rows[0].Timestamp))

	_, err = s.InsertBatch(ctx, []storage.Reading{{Timestamp: old, PeopleCount: -2}})
	assert.ErrorIs(t, err, storage.ErrNegativeCount)
}

func testAverages(t *testing.T, s storage.Store, _ *clock.Manual) {
	ctx := context.Background()
	batch := []storage.Reading{
		{Timestamp: Start.Add(-24 * time.Hour), PeopleCount: 4},                // Tuesday 10:00
		{Timestamp: Start.Add(-24*time.Hour + 30*time.Minute), PeopleCount: 6}, // Tuesday 10:30
		{Timestamp: Start.Add(-time.Hour), PeopleCount: 9},                     // Wednesday 09:00
		{Timestamp: Start.AddDate(0, 0, -400), PeopleCount: 100},               // outside both windows
	}
	_, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)

	daily, err := s.DailyAverages(ctx, 365)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-01-14", daily[0].Date)
	assert.InDelta(t, 5.0, daily[0].Average, 0.001)
	assert.Equal(t, 2, daily[0].SampleCount)
	assert.Equal(t, "2025-01-15", daily[1].Date)

	weekly, err := s.WeeklyAverages(ctx, 8)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, 2, weekly[0].DayOfWeek)
	assert.Equal(t, 3, weekly[1].DayOfWeek)
	assert.InDelta(t, 9.0, weekly[1].Average, 0.001)

	cells, err := s.Heatmap(ctx, 8)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, storage.HeatmapCell{DayOfWeek: 2, Hour: 10, Average: 5, SampleCount: 2}, cells[0])
	assert.Equal(t, storage.HeatmapCell{DayOfWeek: 3, Hour: 9, Average: 9, SampleCount: 1}, cells[1])
}

func testClearAndStats(t *testing.T, s storage.Store, clk *clock.Manual) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, i)
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.TotalReadings)
	assert.True(t, Start.Equal(stats.Oldest))
	assert.True(t, Start.Add(2*time.Minute).Equal(stats.Newest))

	require.NoError(t, s.Clear(ctx))
	rows, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func counts(rows []storage.Reading) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.PeopleCount
	}
	return out
}
