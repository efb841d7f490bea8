package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/storage"
)

// Migrate creates the table and the timestamp index if missing.
func (s *Storage) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS occupancy_log (
			id           BIGSERIAL PRIMARY KEY,
			timestamp    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			people_count INTEGER NOT NULL CHECK (people_count >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_timestamp ON occupancy_log (timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return storage.Wrap("migrate", err)
		}
	}
	return nil
}

// TableInfo summarizes occupancy_log after optimization.
type TableInfo struct {
	TotalRows int64
	Oldest    *time.Time
	Newest    *time.Time
	TableSize string
}

// Optimize rebuilds the read indexes and refreshes planner statistics.
func (s *Storage) Optimize(ctx context.Context) (*TableInfo, error) {
	zone := quoteLiteral(s.norm.Name())
	stmts := []string{
		`DROP INDEX IF EXISTS idx_occupancy_timestamp`,
		`DROP INDEX IF EXISTS idx_occupancy_people_count`,
		`DROP INDEX IF EXISTS idx_occupancy_dow_local`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_timestamp_desc ON occupancy_log (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_people_count_desc ON occupancy_log (people_count DESC)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_occupancy_dow_local
			ON occupancy_log ((EXTRACT(DOW FROM timestamp AT TIME ZONE %s)), timestamp DESC)`, zone),
		`ANALYZE occupancy_log`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return nil, storage.Wrap("optimize", err)
		}
	}

	info := &TableInfo{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp),
		       pg_size_pretty(pg_total_relation_size('occupancy_log'))
		FROM occupancy_log
	`).Scan(&info.TotalRows, &info.Oldest, &info.Newest, &info.TableSize)
	if err != nil {
		return nil, storage.Wrap("table info", err)
	}
	return info, nil
}
