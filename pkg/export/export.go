package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// localLayout is the wall-clock column format.
const localLayout = "2006-01-02 15:04:05"

// Source lists every stored reading, oldest first.
type Source interface {
	All(ctx context.Context) ([]storage.Reading, error)
}

// Metadata heads a JSON export.
type Metadata struct {
	ExportDate       time.Time `json:"exportDate"`
	TotalRecords     int       `json:"totalRecords"`
	ExportDurationMs int64     `json:"exportDurationMs"`
	Timezone         string    `json:"timezone"`
}

// Row is one exported reading.
type Row struct {
	ID             int64  `json:"id"`
	PeopleCount    int    `json:"people_count"`
	TimestampUTC   string `json:"timestamp_utc"`
	TimestampLocal string `json:"timestamp_local"`
}

// Document is the JSON export shape, also accepted by the importer.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Data     []Row    `json:"data"`
}

// Exporter renders the occupancy log.
type Exporter struct {
	src   Source
	norm  *timezone.Normalizer
	clock clock.Clock
}

// NewExporter creates an exporter.
func NewExporter(src Source, norm *timezone.Normalizer, clk clock.Clock) *Exporter {
	return &Exporter{src: src, norm: norm, clock: clk}
}

// Snapshot reads the whole log. Nothing is written, so callers can still
// report a clean error.
func (e *Exporter) Snapshot(ctx context.Context) (*Document, error) {
	start := time.Now()
	readings, err := e.src.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read occupancy log: %w", err)
	}

	rows := make([]Row, len(readings))
	for i, r := range readings {
		rows[i] = Row{
			ID:             r.ID,
			PeopleCount:    r.PeopleCount,
			TimestampUTC:   r.Timestamp.UTC().Format(time.RFC3339),
			TimestampLocal: e.norm.Local(r.Timestamp).Format(localLayout),
		}
	}

	return &Document{
		Metadata: Metadata{
			ExportDate:       e.clock.Now().UTC(),
			TotalRecords:     len(rows),
			ExportDurationMs: time.Since(start).Milliseconds(),
			Timezone:         e.norm.Name(),
		},
		Data: rows,
	}, nil
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}

// WriteCSV writes doc's rows under a header line.
func WriteCSV(w io.Writer, doc *Document) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"id", "people_count", "timestamp_utc", "timestamp_local"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, row := range doc.Data {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			strconv.Itoa(row.PeopleCount),
			row.TimestampUTC,
			row.TimestampLocal,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportJSON snapshots and writes JSON in one go.
func (e *Exporter) ExportJSON(ctx context.Context, w io.Writer) (*Metadata, error) {
	doc, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &doc.Metadata, WriteJSON(w, doc)
}

// ExportCSV snapshots and writes CSV in one go.
func (e *Exporter) ExportCSV(ctx context.Context, w io.Writer) (*Metadata, error) {
	doc, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &doc.Metadata, WriteCSV(w, doc)
}
