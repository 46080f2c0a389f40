// Package domain defines the core value types shared across the txdata
// pipeline: raw trade ticks, OHLCV bars, calendar date ranges, and futures
// contract metadata.
package domain

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-date format used throughout the
// pipeline (progress marker, file names, bridge API parameters).
const DateLayout = "2006-01-02"

// TickSide classifies a tick as an outright deal or a bid/ask-side trade.
type TickSide string

const (
	SideDeal TickSide = "Deal"
	SideBuy  TickSide = "Buy"
	SideSell TickSide = "Sell"
)

// Tick is a single raw trade event. TimestampNS is epoch nanoseconds in UTC;
// market-local rendering happens at the sink/synthesizer boundary.
type Tick struct {
	TimestampNS int64
	Price       float64
	Size        int64
	BidPrice    float64
	BidSize     int64
	AskPrice    float64
	AskSize     int64
	Side        TickSide
}

// Time returns the tick timestamp in the given location.
func (t Tick) Time(loc *time.Location) time.Time {
	return time.Unix(0, t.TimestampNS).In(loc)
}

// Bar is one fixed-interval OHLCV bar. Timestamp is the interval start in
// market-local time.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Contract identifies one discrete futures contract. Delivery is a calendar
// date (midnight UTC).
type Contract struct {
	Code     string
	Name     string
	Delivery time.Time
}

// ContractWindow maps a span of calendar days to the contract that is active
// over those days. From and To are inclusive dates.
type ContractWindow struct {
	Code string
	From time.Time
	To   time.Time
}

// Contains reports whether date falls inside the window (inclusive).
func (w ContractWindow) Contains(date time.Time) bool {
	return !date.Before(w.From) && !date.After(w.To)
}

// DateRange is an inclusive calendar-day range. Both endpoints are dates as
// produced by Date or ParseDate.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate returns an error when the range is inverted.
func (r DateRange) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("invalid date range: start %s after end %s",
			r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// Days returns the number of calendar days the range spans, inclusive.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Date constructs a calendar date. Dates are represented as midnight UTC so
// that day arithmetic is independent of the market timezone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
