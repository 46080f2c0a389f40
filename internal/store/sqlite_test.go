package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"txdata/internal/domain"
	"txdata/internal/util"
)

func newTestStore(t *testing.T) *BarStore {
	t.Helper()
	s, err := NewBarStore(filepath.Join(t.TempDir(), "staging.db"), util.MarketLocation())
	if err != nil {
		t.Fatalf("NewBarStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBar(ts time.Time, close float64) domain.Bar {
	return domain.Bar{Timestamp: ts, Open: close - 1, High: close + 1, Low: close - 2, Close: close, Volume: 10}
}

func TestUpsertAndReadRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	loc := util.MarketLocation()

	day1 := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)
	day2 := time.Date(2024, 3, 5, 9, 0, 0, 0, loc)

	bars := []domain.Bar{
		testBar(day1, 20000),
		testBar(day1.Add(time.Minute), 20005),
		testBar(day2, 20100),
	}
	if err := s.UpsertBars(ctx, bars); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	got, err := s.ReadRange(ctx, domain.Date(2024, 3, 4), domain.Date(2024, 3, 5))
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Fatalf("bars not ordered at %d", i)
		}
	}
	if !got[0].Timestamp.Equal(day1) || got[0].Close != 20000 {
		t.Errorf("first bar = %+v", got[0])
	}

	// Range clipping: only day 1.
	got, err = s.ReadRange(ctx, domain.Date(2024, 3, 4), domain.Date(2024, 3, 4))
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("clipped len = %d, want 2", len(got))
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, util.MarketLocation())

	if err := s.UpsertBars(ctx, []domain.Bar{testBar(ts, 20000)}); err != nil {
		t.Fatal(err)
	}
	// Replaying the same unit overwrites in place.
	if err := s.UpsertBars(ctx, []domain.Bar{testBar(ts, 20007)}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	got, err := s.ReadRange(ctx, domain.Date(2024, 3, 4), domain.Date(2024, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Close != 20007 {
		t.Errorf("Close = %v, want replacement value 20007", got[0].Close)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	// An empty path would land in sqlite's private temp database, which
	// vanishes on close instead of surviving a crash.
	if _, err := NewBarStore("", util.MarketLocation()); err == nil {
		t.Fatal("NewBarStore(\"\") accepted, want error")
	}
}

func TestUpsertEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertBars(context.Background(), nil); err != nil {
		t.Errorf("UpsertBars(nil) = %v, want nil", err)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staging.db")
	loc := util.MarketLocation()
	ctx := context.Background()

	s, err := NewBarStore(path, loc)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2024, 3, 4, 9, 0, 0, 0, loc)
	if err := s.UpsertBars(ctx, []domain.Bar{testBar(ts, 20000)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBarStore(path, loc)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.ReadRange(ctx, domain.Date(2024, 3, 4), domain.Date(2024, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Close != 20000 {
		t.Errorf("reopened read = %+v, want the staged bar", got)
	}
}
