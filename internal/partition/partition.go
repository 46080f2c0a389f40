// Package partition splits a requested date range into the atomic work units
// the orchestrator fetches: one per calendar day for the single-day tick
// endpoint, one per ISO week for tick storage batching, or a single unit for
// the range-capable bar endpoint.
package partition

import (
	"fmt"
	"time"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// Mode selects how a range is split.
type Mode string

const (
	Daily       Mode = "daily"
	WeeklyChunk Mode = "weekly"
	Single      Mode = "single"
)

// WorkUnit is one atomic fetch target: an inclusive sub-range of calendar
// days. Units are immutable and ordered oldest first. Date() identifies the
// unit for progress tracking.
type WorkUnit struct {
	Start time.Time
	End   time.Time
}

// Date returns the unit's identifying date (its first day).
func (u WorkUnit) Date() time.Time { return u.Start }

// Range returns the unit as a DateRange.
func (u WorkUnit) Range() domain.DateRange {
	return domain.DateRange{Start: u.Start, End: u.End}
}

func (u WorkUnit) String() string {
	if u.Start.Equal(u.End) {
		return u.Start.Format(domain.DateLayout)
	}
	return fmt.Sprintf("%s..%s", u.Start.Format(domain.DateLayout), u.End.Format(domain.DateLayout))
}

// Split partitions r according to mode. It is pure date computation; no I/O
// occurs. An inverted range yields an error, except that callers resuming
// from a progress marker past the requested end should treat that case as an
// already-complete run before calling Split.
func Split(r domain.DateRange, mode Mode) ([]WorkUnit, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch mode {
	case Daily:
		return splitDaily(r), nil
	case WeeklyChunk:
		return splitWeekly(r), nil
	case Single:
		return []WorkUnit{{Start: r.Start, End: r.End}}, nil
	default:
		return nil, fmt.Errorf("unknown partition mode %q", mode)
	}
}

func splitDaily(r domain.DateRange) []WorkUnit {
	units := make([]WorkUnit, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		units = append(units, WorkUnit{Start: d, End: d})
	}
	return units
}

// splitWeekly emits one unit per ISO week (Monday-Sunday) clipped to r.
// Ranges of seven days or fewer stay whole: weekly chunking exists for
// storage batching of long backfills, not short pulls.
func splitWeekly(r domain.DateRange) []WorkUnit {
	if r.Days() <= 7 {
		return []WorkUnit{{Start: r.Start, End: r.End}}
	}

	var units []WorkUnit
	start := r.Start
	for !start.After(r.End) {
		weekEnd := util.WeekStart(start).AddDate(0, 0, 6) // Sunday of start's week
		if weekEnd.After(r.End) {
			weekEnd = r.End
		}
		units = append(units, WorkUnit{Start: start, End: weekEnd})
		start = weekEnd.AddDate(0, 0, 1)
	}
	return units
}
