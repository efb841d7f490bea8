package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Row caps. Callers must not assume completeness beyond them.
const (
	// RangeLimit bounds QueryRange.
	RangeLimit = 500
	// DayOfWeekLimit bounds QueryByDayOfWeek.
	DayOfWeekLimit = 2000
	// HistoryLimit bounds History.
	HistoryLimit = 500
	// DefaultHistoryLimit is used when History is asked for zero rows.
	DefaultHistoryLimit = 50
)

var (
	// ErrPersistence wraps every failure of the underlying medium.
	ErrPersistence = errors.New("storage: persistence failure")
	// ErrNegativeCount rejects readings below zero.
	ErrNegativeCount = errors.New("storage: people_count must be non-negative")
)

// Store is the append-only occupancy time series.
// Implementations: memory (tests, ephemeral), badger (default), postgres.
type Store interface {
	// Insert appends a reading stamped with the store clock.
	Insert(ctx context.Context, count int) (Reading, error)

	// InsertBatch appends readings keeping their timestamps (backfill).
	// IDs in the input are ignored. Returns the number stored.
	InsertBatch(ctx context.Context, readings []Reading) (int, error)

	// QueryRange returns readings in [start, end), oldest first, at most RangeLimit.
	QueryRange(ctx context.Context, start, end time.Time) ([]Reading, error)

	// QueryByDayOfWeek returns readings of one local weekday from the last
	// lookbackWeeks weeks, newest first, at most DayOfWeekLimit.
	QueryByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]Reading, error)

	// History returns the most recent readings, newest first.
	History(ctx context.Context, limit int) ([]Reading, error)

	// Latest returns the newest reading or nil when the store is empty.
	Latest(ctx context.Context) (*Reading, error)

	// MaxByCount returns the reading with the highest people_count or nil.
	MaxByCount(ctx context.Context) (*Reading, error)

	// DailyAverages returns one entry per local date with data in the last
	// lastDays days, ascending. lastDays <= 0 means all history.
	DailyAverages(ctx context.Context, lastDays int) ([]DailyAverage, error)

	// WeeklyAverages returns one entry per local weekday with data in the
	// last lookbackWeeks weeks. lookbackWeeks <= 0 means all history.
	WeeklyAverages(ctx context.Context, lookbackWeeks int) ([]WeeklyAverage, error)

	// Heatmap returns weekday x hour averages for the last lookbackWeeks weeks.
	Heatmap(ctx context.Context, lookbackWeeks int) ([]HeatmapCell, error)

	// All returns every reading, oldest first.
	All(ctx context.Context) ([]Reading, error)

	// Clear removes every reading.
	Clear(ctx context.Context) error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the storage
	Close() error
}

// Reading is one scraped people count.
type Reading struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	PeopleCount int       `json:"people_count"`
}

// DailyAverage is the mean count of one local civil date.
type DailyAverage struct {
	Date        string  `json:"date"`
	Average     float64 `json:"average"`
	SampleCount int     `json:"sampleCount"`
}

// WeeklyAverage is the mean count of one local weekday (0 = Sunday).
type WeeklyAverage struct {
	DayOfWeek   int     `json:"dayOfWeek"`
	Average     float64 `json:"average"`
	SampleCount int     `json:"sampleCount"`
}

// HeatmapCell is the mean count of one weekday and local hour.
type HeatmapCell struct {
	DayOfWeek   int     `json:"dayOfWeek"`
	Hour        int     `json:"hour"`
	Average     float64 `json:"average"`
	SampleCount int     `json:"sampleCount"`
}

// Stats provides storage health and usage info
type Stats struct {
	TotalReadings uint64    `json:"totalReadings"`
	SizeBytes     uint64    `json:"sizeBytes"`
	Oldest        time.Time `json:"oldest"`
	Newest        time.Time `json:"newest"`
	Backend       string    `json:"backend"`
}

// ValidateCount enforces the non-negative reading invariant.
func ValidateCount(count int) error {
	if count < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeCount, count)
	}
	return nil
}

var epoch = time.Unix(0, 0)

// ValidateBatch checks every reading of a backfill batch.
func ValidateBatch(readings []Reading) error {
	for i, r := range readings {
		if err := ValidateCount(r.PeopleCount); err != nil {
			return fmt.Errorf("reading %d: %w", i, err)
		}
		if r.Timestamp.IsZero() || r.Timestamp.Before(epoch) {
			return fmt.Errorf("reading %d: timestamp %s out of range", i, r.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// HistoryWindow normalizes a History limit.
func HistoryWindow(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > HistoryLimit:
		return HistoryLimit
	}
	return limit
}

// Cutoff returns the lower bound of a trailing window ending at now.
// days <= 0 yields the zero time (no bound).
func Cutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

// Wrap marks err as a persistence failure of op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
