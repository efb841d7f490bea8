// Package postgres stores readings in the occupancy_log table.
//
// Day and weekday buckets are computed by Postgres with AT TIME ZONE using
// the reference zone name, so they agree with timezone.Normalizer.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Config holds connection settings.
type Config struct {
	DSN      string
	MaxConns int32
	// PingTimeout bounds the connectivity check in New.
	PingTimeout time.Duration
}

// Storage implements storage.Store on Postgres.
type Storage struct {
	pool  *pgxpool.Pool
	clock clock.Clock
	norm  *timezone.Normalizer
}

var _ storage.Store = (*Storage)(nil)

// New opens a pool and verifies connectivity.
func New(ctx context.Context, cfg Config, clk clock.Clock, norm *timezone.Normalizer) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, storage.Wrap("open pool", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, storage.Wrap("ping", err)
	}

	return &Storage{pool: pool, clock: clk, norm: norm}, nil
}

// Insert appends a reading stamped with the store clock.
func (s *Storage) Insert(ctx context.Context, count int) (storage.Reading, error) {
	if err := storage.ValidateCount(count); err != nil {
		return storage.Reading{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO occupancy_log (timestamp, people_count)
		VALUES ($1, $2)
		RETURNING id, timestamp, people_count
	`, s.clock.Now().UTC(), count)

	r, err := scanReading(row)
	if err != nil {
		return storage.Reading{}, storage.Wrap("insert", err)
	}
	return r, nil
}

// InsertBatch streams backfilled readings with COPY.
func (s *Storage) InsertBatch(ctx context.Context, readings []storage.Reading) (int, error) {
	if err := storage.ValidateBatch(readings); err != nil {
		return 0, err
	}

	rows := make([][]any, len(readings))
	for i, r := range readings {
		rows[i] = []any{r.Timestamp.UTC(), r.PeopleCount}
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"occupancy_log"},
		[]string{"timestamp", "people_count"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, storage.Wrap("insert batch", err)
	}
	return int(n), nil
}

// QueryRange returns readings in [start, end), oldest first.
func (s *Storage) QueryRange(ctx context.Context, start, end time.Time) ([]storage.Reading, error) {
	return s.queryReadings(ctx, "query range", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC, id ASC
		LIMIT $3
	`, start.UTC(), end.UTC(), storage.RangeLimit)
}

// QueryByDayOfWeek returns one local weekday of the lookback window, newest first.
func (s *Storage) QueryByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]storage.Reading, error) {
	return s.queryReadings(ctx, "query by day of week", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		  AND EXTRACT(DOW FROM timestamp AT TIME ZONE $2::text) = $3
		ORDER BY timestamp DESC, id DESC
		LIMIT $4
	`, s.cutoff(lookbackWeeks*7), s.norm.Name(), int(dow), storage.DayOfWeekLimit)
}

// History returns the newest readings first.
func (s *Storage) History(ctx context.Context, limit int) ([]storage.Reading, error) {
	return s.queryReadings(ctx, "history", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, storage.HistoryWindow(limit))
}

// Latest returns the newest reading.
func (s *Storage) Latest(ctx context.Context) (*storage.Reading, error) {
	return s.queryOne(ctx, "latest", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)
}

// MaxByCount returns the busiest reading.
func (s *Storage) MaxByCount(ctx context.Context) (*storage.Reading, error) {
	return s.queryOne(ctx, "max by count", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		ORDER BY people_count DESC, timestamp ASC
		LIMIT 1
	`)
}

// DailyAverages groups the trailing window by local date.
func (s *Storage) DailyAverages(ctx context.Context, lastDays int) ([]storage.DailyAverage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(timestamp AT TIME ZONE $2::text, 'YYYY-MM-DD') AS day,
		       ROUND(AVG(people_count)::numeric, 2)::float8,
		       COUNT(*)
		FROM occupancy_log
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		GROUP BY day
		ORDER BY day
	`, s.cutoff(lastDays), s.norm.Name())
	if err != nil {
		return nil, storage.Wrap("daily averages", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.DailyAverage, error) {
		var d storage.DailyAverage
		err := row.Scan(&d.Date, &d.Average, &d.SampleCount)
		return d, err
	})
	if err != nil {
		return nil, storage.Wrap("daily averages", err)
	}
	return out, nil
}

// WeeklyAverages groups the trailing window by local weekday.
func (s *Storage) WeeklyAverages(ctx context.Context, lookbackWeeks int) ([]storage.WeeklyAverage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(DOW FROM timestamp AT TIME ZONE $2::text)::int AS dow,
		       ROUND(AVG(people_count)::numeric, 2)::float8,
		       COUNT(*)
		FROM occupancy_log
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		GROUP BY dow
		ORDER BY dow
	`, s.cutoff(lookbackWeeks*7), s.norm.Name())
	if err != nil {
		return nil, storage.Wrap("weekly averages", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.WeeklyAverage, error) {
		var w storage.WeeklyAverage
		err := row.Scan(&w.DayOfWeek, &w.Average, &w.SampleCount)
		return w, err
	})
	if err != nil {
		return nil, storage.Wrap("weekly averages", err)
	}
	return out, nil
}

// Heatmap groups the trailing window by weekday and hour.
func (s *Storage) Heatmap(ctx context.Context, lookbackWeeks int) ([]storage.HeatmapCell, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT EXTRACT(DOW FROM timestamp AT TIME ZONE $2::text)::int AS dow,
		       EXTRACT(HOUR FROM timestamp AT TIME ZONE $2::text)::int AS hour,
		       ROUND(AVG(people_count)::numeric, 2)::float8,
		       COUNT(*)
		FROM occupancy_log
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		GROUP BY dow, hour
		ORDER BY dow, hour
	`, s.cutoff(lookbackWeeks*7), s.norm.Name())
	if err != nil {
		return nil, storage.Wrap("heatmap", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.HeatmapCell, error) {
		var c storage.HeatmapCell
		err := row.Scan(&c.DayOfWeek, &c.Hour, &c.Average, &c.SampleCount)
		return c, err
	})
	if err != nil {
		return nil, storage.Wrap("heatmap", err)
	}
	return out, nil
}

// All returns every reading, oldest first.
func (s *Storage) All(ctx context.Context) ([]storage.Reading, error) {
	return s.queryReadings(ctx, "all", `
		SELECT id, timestamp, people_count
		FROM occupancy_log
		ORDER BY timestamp ASC, id ASC
	`)
}

// Clear truncates the table.
func (s *Storage) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE occupancy_log`)
	return storage.Wrap("clear", err)
}

// Stats returns row counts and on-disk size.
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	var (
		total          int64
		oldest, newest *time.Time
		size           int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp),
		       pg_total_relation_size('occupancy_log')
		FROM occupancy_log
	`).Scan(&total, &oldest, &newest, &size)
	if err != nil {
		return nil, storage.Wrap("stats", err)
	}

	stats := &storage.Stats{Backend: "postgres", TotalReadings: uint64(total), SizeBytes: uint64(size)}
	if oldest != nil {
		stats.Oldest = oldest.UTC()
	}
	if newest != nil {
		stats.Newest = newest.UTC()
	}
	return stats, nil
}

// Close releases the pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) cutoff(days int) *time.Time {
	c := storage.Cutoff(s.clock.Now(), days)
	if c.IsZero() {
		return nil
	}
	c = c.UTC()
	return &c
}

func (s *Storage) queryReadings(ctx context.Context, op, sql string, args ...any) ([]storage.Reading, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Reading, error) {
		return scanReading(row)
	})
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return out, nil
}

func (s *Storage) queryOne(ctx context.Context, op, sql string) (*storage.Reading, error) {
	r, err := scanReading(s.pool.QueryRow(ctx, sql))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (storage.Reading, error) {
	var r storage.Reading
	if err := row.Scan(&r.ID, &r.Timestamp, &r.PeopleCount); err != nil {
		return storage.Reading{}, err
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
