package sink

import (
	"context"
	"errors"
	"log/slog"

	"txdata/internal/config"
	"txdata/internal/domain"
)

// ErrNoSinks means every selected sink failed to initialize.
var ErrNoSinks = errors.New("no usable sink")

// Options selects which sinks a run writes to.
type Options struct {
	CSV         bool
	Mongo       bool
	ArchiveTick bool // tick runs also write parquet chunks
}

// Cleanup releases sink resources at the end of a run.
type Cleanup func(ctx context.Context)

// BuildBarSinks assembles the bar sinks for a run. A sink that fails to
// initialize is dropped with a warning as long as at least one other sink
// remains; losing all of them is fatal.
func BuildBarSinks(ctx context.Context, cfg *config.Config, o Options, log *slog.Logger) ([]BarSink, Cleanup, error) {
	var sinks []BarSink
	cleanup := func(context.Context) {}

	if o.CSV {
		sinks = append(sinks, NewCSVBarSink(cfg.Storage.OutputDir, cfg.Fetch.Symbol))
	}
	if o.Mongo {
		ms, err := openMongo(ctx, cfg)
		if err != nil {
			if len(sinks) == 0 {
				return nil, nil, err
			}
			log.Warn("document store unavailable, continuing without it", "error", err)
		} else {
			sinks = append(sinks, ms)
			cleanup = mongoCleanup(ms, log)
		}
	}

	if len(sinks) == 0 {
		return nil, nil, ErrNoSinks
	}
	return sinks, cleanup, nil
}

// BuildTickSinks assembles the tick sinks for a run. The parquet archive
// rides along independent of the selected targets when enabled.
func BuildTickSinks(ctx context.Context, cfg *config.Config, runRange domain.DateRange, o Options, log *slog.Logger) ([]TickSink, Cleanup, error) {
	var sinks []TickSink
	cleanup := func(context.Context) {}

	if o.CSV {
		sinks = append(sinks, NewCSVTickSink(cfg.Storage.OutputDir, cfg.Fetch.Symbol, runRange))
	}
	if o.ArchiveTick {
		sinks = append(sinks, NewParquetTickSink(cfg.Storage.OutputDir, cfg.Fetch.Symbol))
	}
	if o.Mongo {
		ms, err := openMongo(ctx, cfg)
		if err != nil {
			if len(sinks) == 0 {
				return nil, nil, err
			}
			log.Warn("document store unavailable, continuing without it", "error", err)
		} else {
			sinks = append(sinks, ms)
			cleanup = mongoCleanup(ms, log)
		}
	}

	if len(sinks) == 0 {
		return nil, nil, ErrNoSinks
	}
	return sinks, cleanup, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*MongoSink, error) {
	return NewMongoSink(ctx,
		cfg.Mongo.URI,
		cfg.Mongo.Database,
		cfg.Mongo.BarCollection,
		cfg.Mongo.TickCollection,
		cfg.Mongo.BatchSize)
}

func mongoCleanup(ms *MongoSink, log *slog.Logger) Cleanup {
	return func(ctx context.Context) {
		if err := ms.Close(ctx); err != nil {
			log.Warn("closing document store", "error", err)
		}
	}
}
