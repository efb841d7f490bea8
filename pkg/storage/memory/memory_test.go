package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/storagetest"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

func TestMemoryStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clk clock.Clock, norm *timezone.Normalizer) storage.Store {
		return New(clk, norm)
	})
}

func TestMemoryStorage_OutOfOrderBatch(t *testing.T) {
	store := New(clock.NewManual(storagetest.Start), timezone.MustNew(timezone.DefaultZone))
	defer store.Close()

	ctx := context.Background()
	base := storagetest.Start.Add(-time.Hour)
	_, err := store.InsertBatch(ctx, []storage.Reading{
		{Timestamp: base.Add(30 * time.Minute), PeopleCount: 3},
		{Timestamp: base, PeopleCount: 1},
		{Timestamp: base.Add(15 * time.Minute), PeopleCount: 2},
	})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	rows, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if rows[i].PeopleCount != want {
			t.Errorf("row %d: expected count %d, got %d", i, want, rows[i].PeopleCount)
		}
	}
}

func TestMemoryStorage_ConcurrentInsert(t *testing.T) {
	store := New(clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := store.Insert(ctx, j); err != nil {
					t.Errorf("Insert failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalReadings != 1000 {
		t.Errorf("Expected 1000 readings, got %d", stats.TotalReadings)
	}

	rows, _ := store.All(ctx)
	seen := make(map[int64]bool, len(rows))
	for _, r := range rows {
		if seen[r.ID] {
			t.Fatalf("duplicate id %d", r.ID)
		}
		seen[r.ID] = true
	}
}
