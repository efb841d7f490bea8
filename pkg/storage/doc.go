/*
Package storage provides the pluggable persistence abstraction for occupancy
readings.

# Store Interface

The tracker keeps a single append-only series of (timestamp, people_count)
readings. Three backends implement Store:
  - memory: in-process slice, for tests and throwaway runs
  - badger: embedded BadgerDB, the default for a single-node deployment
  - postgres: the occupancy_log table, for deployments that already run Postgres

# Keys and Ordering

Readings are ordered by timestamp, then by store-assigned id. Identical
timestamps are never merged. QueryRange is ascending; History and
QueryByDayOfWeek are newest first so recency weighting stays possible.

# Local Time

Every day and weekday boundary is computed in the reference timezone via
pkg/timezone. The in-process backends share the grouping helpers in
aggregate.go; Postgres computes the same buckets with AT TIME ZONE.

# Errors

Medium failures are wrapped with ErrPersistence. Negative counts are rejected
with ErrNegativeCount before anything is written.

# Usage Example

	norm := timezone.MustNew("Europe/Prague")
	store, err := badger.New(badger.Config{Path: "./data"}, clock.Real{}, norm)
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	r, err := store.Insert(ctx, 42)
	day, err := store.QueryRange(ctx, start, end)
*/
package storage
