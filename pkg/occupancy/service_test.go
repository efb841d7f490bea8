package occupancy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/cache"
	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/memory"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Wednesday 2025-01-15 10:00 in Prague.
var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Broadcast(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, v)
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Storage, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	norm := timezone.MustNew(timezone.DefaultZone)
	store := memory.New(clk, norm)
	svc := NewService(store, cache.New(clk, time.Minute), norm, clk,
		WithTTLs(TTLs{cache.NSWeekly: 30 * time.Minute}))
	return svc, store, clk
}

func TestService_RecordInvalidatesAndNotifies(t *testing.T) {
	svc, _, clk := newTestService(t)
	rec := &recorder{}
	svc.notifier = rec
	ctx := context.Background()

	assert.Nil(t, svc.Current(ctx))

	r, err := svc.Record(ctx, 42)
	require.NoError(t, err)

	current := svc.Current(ctx)
	require.NotNil(t, current, "write must evict the cached empty result")
	assert.Equal(t, r.ID, current.ID)

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, Update{Type: "occupancy_update", ID: r.ID, PeopleCount: 42, Timestamp: "2025-01-15T10:00:00"}, rec.msgs[0])

	clk.Advance(time.Minute)
	_, err = svc.Record(ctx, -1)
	assert.ErrorIs(t, err, storage.ErrNegativeCount)
	assert.Len(t, rec.msgs, 1)
}

func TestService_WeeklyAveragesStaleButConsistent(t *testing.T) {
	svc, store, clk := newTestService(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, 10)
	require.NoError(t, err)
	first := svc.WeeklyAverages(ctx, 8)
	require.Len(t, first, 1)

	// Written behind the service's back: no invalidation.
	_, err = store.Insert(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, first, svc.WeeklyAverages(ctx, 8))

	clk.Advance(31 * time.Minute)
	after := svc.WeeklyAverages(ctx, 8)
	require.Len(t, after, 1)
	assert.InDelta(t, 20.0, after[0].Average, 0.001)

	_, err = svc.Record(ctx, 50)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, svc.WeeklyAverages(ctx, 8)[0].Average, 0.001)
}

func TestService_DailyAverageIntervals(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := store.InsertBatch(ctx, []storage.Reading{
		{Timestamp: time.Date(2025, 1, 15, 4, 0, 0, 0, time.UTC), PeopleCount: 1},  // 05:00 local, before start of day
		{Timestamp: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), PeopleCount: 10}, // 10:00
		{Timestamp: time.Date(2025, 1, 15, 9, 5, 0, 0, time.UTC), PeopleCount: 20}, // 10:05
		{Timestamp: time.Date(2025, 1, 15, 9, 20, 0, 0, time.UTC), PeopleCount: 7}, // 10:20
		{Timestamp: time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC), PeopleCount: 3}, // next local day
	})
	require.NoError(t, err)

	got := svc.DailyAverage(ctx, "2025-01-15")
	assert.Equal(t, []IntervalAverage{
		{IntervalStart: "2025-01-15T10:00:00", AverageCount: 15},
		{IntervalStart: "2025-01-15T10:15:00", AverageCount: 7},
	}, got)

	assert.Nil(t, svc.DailyAverage(ctx, "15/01/2025"))
}

func TestService_Import(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	readings := make([]storage.Reading, ImportBatchSize+3)
	for i := range readings {
		readings[i] = storage.Reading{Timestamp: t0.Add(-time.Duration(i) * time.Minute), PeopleCount: i % 40}
	}
	n, err := svc.Import(ctx, readings)
	require.NoError(t, err)
	assert.Equal(t, len(readings), n)

	_, err = svc.Import(ctx, []storage.Reading{{Timestamp: t0, PeopleCount: -5}})
	assert.ErrorIs(t, err, storage.ErrNegativeCount)
}

func TestService_HistoryAndHighest(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	for _, c := range []int{5, 80, 12} {
		_, err := svc.Record(ctx, c)
		require.NoError(t, err)
		clk.Advance(5 * time.Minute)
	}

	history := svc.History(ctx, 2)
	require.Len(t, history, 2)
	assert.Equal(t, 12, history[0].PeopleCount)

	highest := svc.Highest(ctx)
	require.NotNil(t, highest)
	assert.Equal(t, 80, highest.PeopleCount)
}

type failingStore struct {
	storage.Store
}

var errDown = errors.New("connection refused")

func (failingStore) History(context.Context, int) ([]storage.Reading, error) {
	return nil, errDown
}
func (failingStore) Latest(context.Context) (*storage.Reading, error) {
	return nil, errDown
}
func (failingStore) WeeklyAverages(context.Context, int) ([]storage.WeeklyAverage, error) {
	return nil, errDown
}
func (failingStore) QueryRange(context.Context, time.Time, time.Time) ([]storage.Reading, error) {
	return nil, errDown
}
func (failingStore) Stats(context.Context) (*storage.Stats, error) { return nil, errDown }

func TestService_NeutralOnError(t *testing.T) {
	clk := clock.NewManual(t0)
	c := cache.New(clk, time.Minute)
	svc := NewService(failingStore{}, c, timezone.MustNew(timezone.DefaultZone), clk)
	ctx := context.Background()

	assert.Nil(t, svc.History(ctx, 10))
	assert.Nil(t, svc.Current(ctx))
	assert.Nil(t, svc.WeeklyAverages(ctx, 8))
	assert.Nil(t, svc.DailyAverage(ctx, "2025-01-15"))
	assert.Nil(t, svc.Stats(ctx))
	assert.Equal(t, 0, c.Len(), "failures are not cached")
}
