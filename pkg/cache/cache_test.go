package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/clock"
)

var t0 = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

func TestKey(t *testing.T) {
	assert.Equal(t, "weekly", Key(NSWeekly))
	assert.Equal(t, "dow:3:8", Key(NSDow, "3", "8"))
	assert.Equal(t, "predict", Namespace("predict:2025-01-15"))
	assert.Equal(t, "current", Namespace("current"))
}

func TestCache_TTL(t *testing.T) {
	clk := clock.NewManual(t0)
	c := New(clk, time.Minute)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry expires exactly at its TTL")
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidatePrefixesIsSelective(t *testing.T) {
	c := New(clock.NewManual(t0), time.Hour)
	c.Set(Key(NSWeekly, "8"), "w")
	c.Set(Key(NSPredict, "2025-01-15"), "p")
	c.Set(Key(NSStats), "s")
	c.Set("weeklyish", "not in the weekly namespace")

	removed := c.InvalidatePrefixes(WriteSensitive...)
	assert.Equal(t, 2, removed)

	_, ok := c.Get(Key(NSStats))
	assert.True(t, ok)
	_, ok = c.Get("weeklyish")
	assert.True(t, ok)
	_, ok = c.Get(Key(NSWeekly, "8"))
	assert.False(t, ok)
}

func TestCache_ClearAndSweep(t *testing.T) {
	clk := clock.NewManual(t0)
	c := New(clk, time.Minute)
	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, t0.Add(2*time.Minute), c.Stats().LastCleanup)

	assert.Equal(t, 1, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestCache_StatsAndHitRate(t *testing.T) {
	c := New(clock.NewManual(t0), time.Minute)
	assert.Equal(t, 0.0, c.HitRate())

	c.Set("k", true)
	c.Get("k")
	c.Get("k")
	c.Get("missing")

	s := c.Stats()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.TotalKeys)
	assert.InDelta(t, 66.67, c.HitRate(), 0.01)
}

func TestRemember_StaleButConsistent(t *testing.T) {
	clk := clock.NewManual(t0)
	c := New(clk, time.Minute)

	source := []int{1, 2, 3}
	compute := func() ([]int, error) {
		out := make([]int, len(source))
		copy(out, source)
		return out, nil
	}

	first, err := Remember(c, Key(NSWeekly), 30*time.Minute, compute)
	require.NoError(t, err)

	source[0] = 99
	second, err := Remember(c, Key(NSWeekly), 30*time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, first, second, "within TTL the cached value is served")

	c.InvalidatePrefixes(WriteSensitive...)
	third, err := Remember(c, Key(NSWeekly), 30*time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 99, third[0])

	source[0] = 7
	clk.Advance(31 * time.Minute)
	fourth, err := Remember(c, Key(NSWeekly), 30*time.Minute, compute)
	require.NoError(t, err)
	assert.Equal(t, 7, fourth[0])
}

func TestRemember_ErrorNotCached(t *testing.T) {
	c := New(clock.NewManual(t0), time.Minute)
	boom := errors.New("boom")

	_, err := Remember(c, "k", 0, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := Remember(c, "k", 0, func() (int, error) { return 5, nil })
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(clock.Real{}, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := Key(NSHistory, string(rune('a'+i)))
				c.Set(key, j)
				c.Get(key)
				if j%50 == 0 {
					c.InvalidatePrefixes(NSHistory)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
