package contract

import (
	"sort"

	"txdata/internal/domain"
)

// MergeTicks concatenates per-contract tick series into one monotonic
// stream: stable-sorted ascending by timestamp (arrival order preserved for
// equal timestamps) with exact duplicates removed. Overlapping fetches
// around a rollover may deliver the same tick twice; after merging the
// result is indistinguishable from a native continuous feed.
func MergeTicks(ticks []domain.Tick) []domain.Tick {
	if len(ticks) == 0 {
		return nil
	}

	sorted := make([]domain.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampNS < sorted[j].TimestampNS
	})

	// Dedup within each equal-timestamp group: ticks at the same nanosecond
	// keep their arrival order, so a duplicate is not necessarily adjacent
	// to its first occurrence.
	out := sorted[:0:len(sorted)]
	groupStart := 0
	for _, t := range sorted {
		if len(out) > 0 && out[len(out)-1].TimestampNS != t.TimestampNS {
			groupStart = len(out)
		}
		if seenInGroup(out[groupStart:], t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func seenInGroup(group []domain.Tick, t domain.Tick) bool {
	for _, g := range group {
		if g == t {
			return true
		}
	}
	return false
}

// MergeBars sorts bars ascending by timestamp and collapses duplicate
// timestamps, keeping the later occurrence (a re-fetched unit supersedes the
// partial write it replays over).
func MergeBars(bars []domain.Bar) []domain.Bar {
	if len(bars) == 0 {
		return nil
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0:len(sorted)]
	for _, b := range sorted {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(b.Timestamp) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
