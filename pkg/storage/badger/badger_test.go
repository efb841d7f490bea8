package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nicktill/ntk-tracker/pkg/clock"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/storage/storagetest"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

func TestBadgerStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, clk clock.Clock, norm *timezone.Normalizer) storage.Store {
		store, err := New(Config{InMemory: true}, clk, norm)
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		return store
	})
}

func TestBadgerStorage_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clk := clock.NewManual(storagetest.Start)
	norm := timezone.MustNew(timezone.DefaultZone)

	// Write to first instance
	{
		store, err := New(Config{Path: dir}, clk, norm)
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		if _, err := store.Insert(ctx, 17); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	// Reopen and read back
	store, err := New(Config{Path: dir}, clk, norm)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer store.Close()

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.PeopleCount != 17 {
		t.Fatalf("Expected persisted reading with count 17, got %+v", latest)
	}

	clk.Advance(time.Minute)
	next, err := store.Insert(ctx, 3)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if next.ID <= latest.ID {
		t.Errorf("Expected id after %d, got %d", latest.ID, next.ID)
	}
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	store, err := New(Config{InMemory: true}, clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Insert(ctx, 1)
	if !errors.Is(err, storage.ErrPersistence) || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancelled persistence error, got %v", err)
	}
}

func TestBadgerStorage_TimedOutScansReturnNothing(t *testing.T) {
	store, err := New(Config{InMemory: true}, clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	const total = 20000
	readings := make([]storage.Reading, total)
	for i := range readings {
		readings[i] = storage.Reading{Timestamp: storagetest.Start.Add(time.Duration(i) * time.Minute), PeopleCount: i % 200}
	}
	if _, err := store.InsertBatch(context.Background(), readings); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	// Scans that outlive their deadline keep running in the background; the
	// caller must never see their partial slices.
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		all, err := store.All(ctx)
		best, maxErr := store.MaxByCount(ctx)
		cancel()

		if err != nil {
			if all != nil {
				t.Fatalf("Expected no readings on error, got %d", len(all))
			}
			if !errors.Is(err, storage.ErrPersistence) {
				t.Errorf("Expected persistence error, got %v", err)
			}
		} else if len(all) != total {
			t.Fatalf("Expected %d readings, got %d", total, len(all))
		}
		if maxErr != nil && best != nil {
			t.Fatalf("Expected nil max on error, got %+v", best)
		}
	}
}

func TestBadgerStorage_RunGC(t *testing.T) {
	store, err := New(Config{Path: t.TempDir()}, clock.Real{}, timezone.MustNew(timezone.DefaultZone))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	// A fresh database has nothing to rewrite.
	if err := store.RunGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		t.Errorf("RunGC failed: %v", err)
	}
}

func TestKeyOrdering(t *testing.T) {
	a := makeKey(storagetest.Start, 9)
	b := makeKey(storagetest.Start.Add(time.Nanosecond), 1)
	if string(a) >= string(b) {
		t.Error("later timestamp must sort after earlier one regardless of id")
	}

	ts, id := parseKey(a)
	if !ts.Equal(storagetest.Start) || id != 9 {
		t.Errorf("parseKey round trip mismatch: %v %d", ts, id)
	}
}
