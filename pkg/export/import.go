package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// maxAge bounds how far back an imported reading may reach.
const maxAge = 10 * 365 * 24 * time.Hour

// Target stores a validated backfill.
type Target interface {
	Import(ctx context.Context, readings []storage.Reading) (int, error)
}

// ImportResult reports an import.
type ImportResult struct {
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	TimeRange  string    `json:"time_range"`
	ImportedAt time.Time `json:"imported_at"`
	Errors     []string  `json:"errors,omitempty"`
}

// Importer restores readings from a JSON export.
type Importer struct {
	target Target
	norm   *timezone.Normalizer
	clock  clock.Clock
}

// NewImporter creates an importer.
func NewImporter(target Target, norm *timezone.Normalizer, clk clock.Clock) *Importer {
	return &Importer{target: target, norm: norm, clock: clk}
}

// ImportJSON reads a Document from r. Invalid rows are skipped and
// reported; the rest are stored.
func (im *Importer) ImportJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	now := im.clock.Now()
	result := &ImportResult{TimeRange: "empty", ImportedAt: now}

	valid := make([]storage.Reading, 0, len(doc.Data))
	for i, row := range doc.Data {
		reading, err := im.parseRow(row, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		valid = append(valid, reading)
	}
	result.Skipped = len(result.Errors)

	if len(valid) == 0 {
		return result, nil
	}

	n, err := im.target.Import(ctx, valid)
	result.Imported = n
	if err != nil {
		return result, fmt.Errorf("store readings: %w", err)
	}

	oldest, newest := valid[0].Timestamp, valid[0].Timestamp
	for _, r := range valid[1:] {
		if r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}
	result.TimeRange = fmt.Sprintf("%s to %s", oldest.Format(time.RFC3339), newest.Format(time.RFC3339))
	return result, nil
}

// parseRow prefers the UTC column and falls back to the local one.
func (im *Importer) parseRow(row Row, now time.Time) (storage.Reading, error) {
	if row.PeopleCount < 0 {
		return storage.Reading{}, storage.ErrNegativeCount
	}

	var ts time.Time
	var err error
	switch {
	case row.TimestampUTC != "":
		ts, err = time.Parse(time.RFC3339, row.TimestampUTC)
	case row.TimestampLocal != "":
		ts, err = im.norm.ParseTimestamp(row.TimestampLocal)
	default:
		return storage.Reading{}, fmt.Errorf("missing timestamp")
	}
	if err != nil {
		return storage.Reading{}, fmt.Errorf("bad timestamp: %w", err)
	}

	if ts.Before(now.Add(-maxAge)) {
		return storage.Reading{}, fmt.Errorf("timestamp too far in past: %s", ts.Format(time.RFC3339))
	}
	if ts.After(now.Add(24 * time.Hour)) {
		return storage.Reading{}, fmt.Errorf("timestamp too far in future: %s", ts.Format(time.RFC3339))
	}
	return storage.Reading{Timestamp: ts.UTC(), PeopleCount: row.PeopleCount}, nil
}
