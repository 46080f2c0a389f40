// Package bars converts raw trade ticks into fixed-interval OHLCV bars via
// time-bucket aggregation. It is the fallback path when the upstream
// endpoint cannot supply bars directly; both paths produce the same Bar
// schema, so downstream sinks never know which one ran.
package bars

import (
	"sort"
	"time"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// Synthesize aggregates ticks into bars at the given interval, rendered in
// loc. Within a bucket, open is the first tick's price and close the last's
// (timestamp order, ties broken by arrival order); high/low are the running
// extremes; volume sums sizes. Buckets with no ticks are not emitted.
func Synthesize(ticks []domain.Tick, interval time.Duration, loc *time.Location) []domain.Bar {
	if len(ticks) == 0 {
		return nil
	}

	ordered := make([]domain.Tick, len(ticks))
	copy(ordered, ticks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TimestampNS < ordered[j].TimestampNS
	})

	var out []domain.Bar
	cur := -1 // index into out of the bar being filled

	for _, t := range ordered {
		bucket := t.Time(loc).Truncate(interval)
		if cur < 0 || !out[cur].Timestamp.Equal(bucket) {
			out = append(out, domain.Bar{
				Timestamp: bucket,
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Close:     t.Price,
				Volume:    t.Size,
			})
			cur = len(out) - 1
			continue
		}

		b := &out[cur]
		if t.Price > b.High {
			b.High = t.Price
		}
		if t.Price < b.Low {
			b.Low = t.Price
		}
		b.Close = t.Price
		b.Volume += t.Size
	}

	return out
}

// FilterSession drops ticks falling outside active trading sessions.
func FilterSession(ticks []domain.Tick) []domain.Tick {
	out := make([]domain.Tick, 0, len(ticks))
	loc := util.MarketLocation()
	for _, t := range ticks {
		if util.InTradingSession(t.Time(loc)) {
			out = append(out, t)
		}
	}
	return out
}
