package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Key layout: "r/" + [timestamp unix nanos (8 bytes BE)] + [id (8 bytes BE)].
// Big-endian keeps byte order equal to (timestamp, id) order.
var (
	readingPrefix = []byte("r/")
	sequenceKey   = []byte("seq/readings")
)

const keyLen = 2 + 8 + 8

// slowQuery is the threshold above which scans are logged.
const slowQuery = 2 * time.Second

// Storage implements storage.Store on BadgerDB (LSM tree).
type Storage struct {
	db    *badger.DB
	seq   *badger.Sequence
	clock clock.Clock
	norm  *timezone.Normalizer
	log   zerolog.Logger
}

var _ storage.Store = (*Storage)(nil)

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly defaults)
	MaxMemoryMB int64
}

// New opens a BadgerDB storage backend
func New(cfg Config, clk clock.Clock, norm *timezone.Normalizer) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// One reading is ~40 bytes; defaults sized for years of 5-minute scrapes.
	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.Wrap("open badger", err)
	}

	seq, err := db.GetSequence(sequenceKey, 100)
	if err != nil {
		db.Close()
		return nil, storage.Wrap("open id sequence", err)
	}

	return &Storage{
		db:    db,
		seq:   seq,
		clock: clk,
		norm:  norm,
		log:   logging.Component("store"),
	}, nil
}

type queryResult[T any] struct {
	value T
	err   error
}

// query executes fn off the caller's goroutine so a cancelled context returns
// promptly even while badger is blocked. The value only reaches the caller
// through the channel; a cancelled caller gets the zero value.
func query[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, storage.Wrap(op, err)
	}

	done := make(chan queryResult[T], 1)
	go func() {
		v, err := fn()
		done <- queryResult[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return zero, storage.Wrap(op, res.err)
		}
		return res.value, nil
	case <-ctx.Done():
		return zero, storage.Wrap(op, fmt.Errorf("operation cancelled: %w", ctx.Err()))
	}
}

// Insert appends a reading stamped with the store clock.
func (s *Storage) Insert(ctx context.Context, count int) (storage.Reading, error) {
	if err := storage.ValidateCount(count); err != nil {
		return storage.Reading{}, err
	}

	return query(ctx, "insert", func() (storage.Reading, error) {
		id, err := s.nextID()
		if err != nil {
			return storage.Reading{}, err
		}
		r := storage.Reading{ID: id, Timestamp: s.clock.Now().UTC(), PeopleCount: count}
		err = s.db.Update(func(txn *badger.Txn) error {
			return setReading(txn, r)
		})
		return r, err
	})
}

// InsertBatch appends backfilled readings, splitting large imports across
// write batches.
func (s *Storage) InsertBatch(ctx context.Context, readings []storage.Reading) (int, error) {
	if err := storage.ValidateBatch(readings); err != nil {
		return 0, err
	}

	return query(ctx, "insert batch", func() (int, error) {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()

		written := 0
		for i, r := range readings {
			if i%100 == 0 {
				if err := ctx.Err(); err != nil {
					return 0, err
				}
			}
			id, err := s.nextID()
			if err != nil {
				return 0, err
			}
			r.ID = id
			r.Timestamp = r.Timestamp.UTC()
			value, err := encodeReading(r)
			if err != nil {
				return 0, err
			}
			if err := wb.Set(makeKey(r.Timestamp, r.ID), value); err != nil {
				return 0, fmt.Errorf("failed to write reading: %w", err)
			}
			written++
		}
		return written, wb.Flush()
	})
}

// QueryRange returns readings in [start, end), oldest first.
func (s *Storage) QueryRange(ctx context.Context, start, end time.Time) ([]storage.Reading, error) {
	return query(ctx, "query range", func() ([]storage.Reading, error) {
		var results []storage.Reading
		err := s.scanForward(ctx, start, func(r storage.Reading) bool {
			if !r.Timestamp.Before(end) {
				return false
			}
			results = append(results, r)
			return len(results) < storage.RangeLimit
		})
		return results, err
	})
}

// QueryByDayOfWeek walks backwards from now to the lookback cutoff.
func (s *Storage) QueryByDayOfWeek(ctx context.Context, dow time.Weekday, lookbackWeeks int) ([]storage.Reading, error) {
	cutoff := storage.Cutoff(s.clock.Now(), lookbackWeeks*7)

	return query(ctx, "query by day of week", func() ([]storage.Reading, error) {
		var results []storage.Reading
		err := s.scanReverse(ctx, func(r storage.Reading) bool {
			if r.Timestamp.Before(cutoff) {
				return false
			}
			if s.norm.Weekday(r.Timestamp) == dow {
				results = append(results, r)
			}
			return len(results) < storage.DayOfWeekLimit
		})
		return results, err
	})
}

// History returns the newest readings first.
func (s *Storage) History(ctx context.Context, limit int) ([]storage.Reading, error) {
	limit = storage.HistoryWindow(limit)

	return query(ctx, "history", func() ([]storage.Reading, error) {
		results := make([]storage.Reading, 0, limit)
		err := s.scanReverse(ctx, func(r storage.Reading) bool {
			results = append(results, r)
			return len(results) < limit
		})
		return results, err
	})
}

// Latest reads the last key.
func (s *Storage) Latest(ctx context.Context) (*storage.Reading, error) {
	return query(ctx, "latest", func() (*storage.Reading, error) {
		var latest *storage.Reading
		err := s.scanReverse(ctx, func(r storage.Reading) bool {
			latest = &r
			return false
		})
		return latest, err
	})
}

// MaxByCount scans every reading; there is no secondary index on count.
func (s *Storage) MaxByCount(ctx context.Context) (*storage.Reading, error) {
	return query(ctx, "max by count", func() (*storage.Reading, error) {
		var best *storage.Reading
		err := s.scanForward(ctx, time.Time{}, func(r storage.Reading) bool {
			if best == nil || r.PeopleCount > best.PeopleCount {
				best = &r
			}
			return true
		})
		return best, err
	})
}

// DailyAverages groups the trailing window by local date.
func (s *Storage) DailyAverages(ctx context.Context, lastDays int) ([]storage.DailyAverage, error) {
	readings, err := s.since(ctx, "daily averages", storage.Cutoff(s.clock.Now(), lastDays))
	if err != nil {
		return nil, err
	}
	return storage.GroupDaily(readings, s.norm), nil
}

// WeeklyAverages groups the trailing window by local weekday.
func (s *Storage) WeeklyAverages(ctx context.Context, lookbackWeeks int) ([]storage.WeeklyAverage, error) {
	readings, err := s.since(ctx, "weekly averages", storage.Cutoff(s.clock.Now(), lookbackWeeks*7))
	if err != nil {
		return nil, err
	}
	return storage.GroupWeekly(readings, s.norm), nil
}

// Heatmap groups the trailing window by weekday and hour.
func (s *Storage) Heatmap(ctx context.Context, lookbackWeeks int) ([]storage.HeatmapCell, error) {
	readings, err := s.since(ctx, "heatmap", storage.Cutoff(s.clock.Now(), lookbackWeeks*7))
	if err != nil {
		return nil, err
	}
	return storage.GroupHeatmap(readings, s.norm), nil
}

// All returns every reading, oldest first.
func (s *Storage) All(ctx context.Context) ([]storage.Reading, error) {
	return s.since(ctx, "all", time.Time{})
}

// Clear drops every reading key. The id sequence keeps counting.
func (s *Storage) Clear(ctx context.Context) error {
	_, err := query(ctx, "clear", func() (struct{}, error) {
		return struct{}{}, s.db.DropPrefix(readingPrefix)
	})
	return err
}

// Close releases the id sequence and shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

// RunGC runs BadgerDB's value log garbage collection.
// discardRatio: run GC if this fraction of a file can be discarded (0.5 = 50%).
// badger.ErrNoRewrite means there was nothing worth collecting.
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats counts keys without loading values.
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	stats, err := query(ctx, "stats", func() (*storage.Stats, error) {
		stats := &storage.Stats{Backend: "badger"}
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = readingPrefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				stats.TotalReadings++
				if stats.TotalReadings%1000 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				ts, _ := parseKey(it.Item().Key())
				if stats.Oldest.IsZero() {
					stats.Oldest = ts
				}
				stats.Newest = ts
			}
			return nil
		})
		return stats, err
	})
	if err != nil {
		return nil, err
	}

	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)
	return stats, nil
}

func (s *Storage) since(ctx context.Context, op string, cutoff time.Time) ([]storage.Reading, error) {
	return query(ctx, op, func() ([]storage.Reading, error) {
		var results []storage.Reading
		err := s.scanForward(ctx, cutoff, func(r storage.Reading) bool {
			results = append(results, r)
			return true
		})
		return results, err
	})
}

// scanForward visits readings from `from` (zero = beginning) in ascending
// order until visit returns false.
func (s *Storage) scanForward(ctx context.Context, from time.Time, visit func(storage.Reading) bool) error {
	seek := readingPrefix
	if !from.IsZero() {
		seek = makeKey(from, 0)
	}
	return s.scan(ctx, false, seek, visit)
}

// scanReverse visits readings newest first until visit returns false.
func (s *Storage) scanReverse(ctx context.Context, visit func(storage.Reading) bool) error {
	seek := append(append([]byte{}, readingPrefix...), bytesFF(16)...)
	return s.scan(ctx, true, seek, visit)
}

func (s *Storage) scan(ctx context.Context, reverse bool, seek []byte, visit func(storage.Reading) bool) error {
	start := time.Now()
	var iterCount int

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		opts.Prefix = readingPrefix
		opts.Reverse = reverse

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.Valid(); it.Next() {
			iterCount++
			// Check for cancellation every 1000 iterations
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var r storage.Reading
			if err := it.Item().Value(func(val []byte) error {
				var err error
				r, err = decodeReading(val)
				return err
			}); err != nil {
				return err
			}
			if !visit(r) {
				return nil
			}
		}
		return nil
	})

	if elapsed := time.Since(start); elapsed > slowQuery {
		s.log.Warn().Dur("elapsed", elapsed).Int("iterations", iterCount).Bool("reverse", reverse).Msg("slow scan")
	}
	return err
}

func (s *Storage) nextID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	// Sequences start at zero; ids start at one.
	return int64(n) + 1, nil
}

func setReading(txn *badger.Txn, r storage.Reading) error {
	value, err := encodeReading(r)
	if err != nil {
		return err
	}
	if err := txn.Set(makeKey(r.Timestamp, r.ID), value); err != nil {
		return fmt.Errorf("failed to write reading: %w", err)
	}
	return nil
}

func makeKey(ts time.Time, id int64) []byte {
	key := make([]byte, keyLen)
	copy(key, readingPrefix)
	binary.BigEndian.PutUint64(key[2:10], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[10:18], uint64(id))
	return key
}

func parseKey(key []byte) (time.Time, int64) {
	if len(key) != keyLen {
		return time.Time{}, 0
	}
	ts := time.Unix(0, int64(binary.BigEndian.Uint64(key[2:10]))).UTC()
	id := int64(binary.BigEndian.Uint64(key[10:18]))
	return ts, id
}

func encodeReading(r storage.Reading) ([]byte, error) {
	return json.Marshal(r)
}

func decodeReading(data []byte) (storage.Reading, error) {
	var r storage.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode reading: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func bytesFF(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}
