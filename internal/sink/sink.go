// Package sink persists finished records. Sinks are idempotent under
// retry: file sinks overwrite whole files, the document store upserts by
// timestamp key. The orchestrator never writes an empty file; sinks are
// only invoked with at least one record.
package sink

import (
	"context"
	"fmt"

	"txdata/internal/domain"
)

// BarSink persists one finished bar series covering r.
type BarSink interface {
	Name() string
	WriteBars(ctx context.Context, bars []domain.Bar, r domain.DateRange) error
}

// TickSink persists one finished tick chunk covering chunk. Each sink
// derives its own destination from the chunk range.
type TickSink interface {
	Name() string
	WriteTicks(ctx context.Context, ticks []domain.Tick, chunk domain.DateRange) error
}

// BarFileName is the output name for a bar series:
// {SYMBOL}_1m_data_{start}_to_{end}.csv
func BarFileName(symbol string, r domain.DateRange) string {
	return fmt.Sprintf("%s_1m_data_%s_to_%s.csv",
		symbol, r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
}

// TickFileName is the output name for a tick pull of seven days or fewer:
// {SYMBOL}_ticks_{start}_to_{end}.csv
func TickFileName(symbol string, r domain.DateRange) string {
	return fmt.Sprintf("%s_ticks_%s_to_%s.csv",
		symbol, r.Start.Format(domain.DateLayout), r.End.Format(domain.DateLayout))
}

// WeeklyTickFileName is the per-ISO-week output name for longer pulls:
// {SYMBOL}_ticks_weekly_{week_start}_to_{week_end}.csv
func WeeklyTickFileName(symbol string, chunk domain.DateRange) string {
	return fmt.Sprintf("%s_ticks_weekly_%s_to_%s.csv",
		symbol, chunk.Start.Format(domain.DateLayout), chunk.End.Format(domain.DateLayout))
}
