package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"txdata/internal/config"
	"txdata/internal/domain"
)

func buildTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.Storage{OutputDir: t.TempDir()},
		Fetch:   config.Fetch{Symbol: "TXF"},
	}
}

func TestBuildBarSinksCSVOnly(t *testing.T) {
	cfg := buildTestConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sinks, cleanup, err := BuildBarSinks(context.Background(), cfg, Options{CSV: true}, log)
	if err != nil {
		t.Fatalf("BuildBarSinks: %v", err)
	}
	defer cleanup(context.Background())

	if len(sinks) != 1 || sinks[0].Name() != "csv" {
		t.Fatalf("sinks = %v, want a single csv sink", sinks)
	}
}

func TestBuildBarSinksNoneSelected(t *testing.T) {
	cfg := buildTestConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, _, err := BuildBarSinks(context.Background(), cfg, Options{}, log); !errors.Is(err, ErrNoSinks) {
		t.Fatalf("err = %v, want ErrNoSinks", err)
	}
}

func TestBuildTickSinksWithArchive(t *testing.T) {
	cfg := buildTestConfig(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := domain.DateRange{Start: domain.Date(2024, 3, 4), End: domain.Date(2024, 3, 8)}

	sinks, cleanup, err := BuildTickSinks(context.Background(), cfg, r, Options{CSV: true, ArchiveTick: true}, log)
	if err != nil {
		t.Fatalf("BuildTickSinks: %v", err)
	}
	defer cleanup(context.Background())

	if len(sinks) != 2 {
		t.Fatalf("sinks = %d, want csv plus parquet archive", len(sinks))
	}
	if sinks[0].Name() != "csv" || sinks[1].Name() != "parquet" {
		t.Fatalf("sink names = %s, %s", sinks[0].Name(), sinks[1].Name())
	}
}
