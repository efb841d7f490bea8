package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Storage keeps readings in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	clock clock.Clock
	norm  *timezone.Normalizer

	mu       sync.RWMutex
	readings []storage.Reading // ascending by (timestamp, id)
	nextID   int64
}

var _ storage.Store = (*Storage)(nil)

// New creates an in-memory storage backend
func New(clk clock.Clock, norm *timezone.Normalizer) *Storage {
	return &Storage{
		clock:    clk,
		norm:     norm,
		readings: make([]storage.Reading, 0, 10000),
		nextID:   1,
	}
}

// Insert appends a reading stamped with the store clock.
func (s *Storage) Insert(ctx context.Context, count int) (storage.Reading, error) {
	if err := storage.ValidateCount(count); err != nil {
		return storage.Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := storage.Reading{ID: s.nextID, Timestamp: s.clock.Now().UTC(), PeopleCount: count}
	s.nextID++
	s.insertSorted(r)
	return r, nil
}

// InsertBatch appends backfilled readings.
func (s *Storage) InsertBatch(ctx context.Context, readings []storage.Reading) (int, error) {
	if err := storage.ValidateBatch(readings); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		r.ID = s.nextID
		r.Timestamp = r.Timestamp.UTC()
		s.nextID++
		s.insertSorted(r)
	}
	return len(readings), nil
}

// insertSorted keeps the slice ordered; the common case appends at the end.
func (s *Storage) insertSorted(r storage.Reading) {
	i := sort.Search(len(s.readings), func(i int) bool {
		return s.readings[i].Timestamp.After(r.Timestamp)
	})
	s.readings = append(s.readings, storage.Reading{})
	copy(s.readings[i+1:], s.readings[i:])
	s.readings[i] = r
}

// QueryRange returns readings in [start, end), oldest first.
func (s *Storage) QueryRange(ctx context.Context, start, end time.Time) ([]storage.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []storage.Reading
	for _, r := range s.readings[s.lowerBound(start):] {
		if !r.Timestamp.Before(end) {
			break
		}
		results = append(results, r)
		if len(results) >= storage.RangeLimit {
			break
		}
	}
	return results, nil
}

// QueryByDayOfWeek returns one local weekday of the lookback window, newest first.
func (s *Storage) QueryByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]storage.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := storage.Cutoff(s.clock.Now(), lookbackWeeks*7)
	var results []storage.Reading
	for i := len(s.readings) - 1; i >= 0; i-- {
		r := s.readings[i]
		if r.Timestamp.Before(cutoff) {
			break
		}
		if s.norm.Weekday(r.Timestamp) != dow {
			continue
		}
		results = append(results, r)
		if len(results) >= storage.DayOfWeekLimit {
			break
		}
	}
	return results, nil
}

// History returns the newest readings first.
func (s *Storage) History(ctx context.Context, limit int) ([]storage.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = storage.HistoryWindow(limit)
	results := make([]storage.Reading, 0, min(limit, len(s.readings)))
	for i := len(s.readings) - 1; i >= 0 && len(results) < limit; i-- {
		results = append(results, s.readings[i])
	}
	return results, nil
}

// Latest returns the newest reading.
func (s *Storage) Latest(ctx context.Context) (*storage.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.readings) == 0 {
		return nil, nil
	}
	r := s.readings[len(s.readings)-1]
	return &r, nil
}

// MaxByCount returns the busiest reading.
func (s *Storage) MaxByCount(ctx context.Context) (*storage.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.MaxReading(s.readings), nil
}

// DailyAverages groups the trailing window by local date.
func (s *Storage) DailyAverages(ctx context.Context, lastDays int) ([]storage.DailyAverage, error) {
	return storage.GroupDaily(s.since(storage.Cutoff(s.clock.Now(), lastDays)), s.norm), nil
}

// WeeklyAverages groups the trailing window by local weekday.
func (s *Storage) WeeklyAverages(ctx context.Context, lookbackWeeks int) ([]storage.WeeklyAverage, error) {
	return storage.GroupWeekly(s.since(storage.Cutoff(s.clock.Now(), lookbackWeeks*7)), s.norm), nil
}

// Heatmap groups the trailing window by weekday and hour.
func (s *Storage) Heatmap(ctx context.Context, lookbackWeeks int) ([]storage.HeatmapCell, error) {
	return storage.GroupHeatmap(s.since(storage.Cutoff(s.clock.Now(), lookbackWeeks*7)), s.norm), nil
}

// All returns a copy of every reading.
func (s *Storage) All(ctx context.Context) ([]storage.Reading, error) {
	return s.since(time.Time{}), nil
}

// Clear drops every reading. IDs keep increasing.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings = s.readings[:0]
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		Backend:       "memory",
		TotalReadings: uint64(len(s.readings)),
		// Rough size estimate (each reading ~40 bytes)
		SizeBytes: uint64(len(s.readings)) * 40,
	}
	if len(s.readings) > 0 {
		stats.Oldest = s.readings[0].Timestamp
		stats.Newest = s.readings[len(s.readings)-1].Timestamp
	}
	return stats, nil
}

func (s *Storage) since(cutoff time.Time) []storage.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tail := s.readings[s.lowerBound(cutoff):]
	out := make([]storage.Reading, len(tail))
	copy(out, tail)
	return out
}

func (s *Storage) lowerBound(t time.Time) int {
	return sort.Search(len(s.readings), func(i int) bool {
		return !s.readings[i].Timestamp.Before(t)
	})
}
