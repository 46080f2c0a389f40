package util

import (
	"time"
)

// taipei is the TAIFEX market timezone. The zone database entry is part of
// every supported platform's tzdata, so a load failure means a broken
// environment and panicking at init is appropriate.
var taipei = mustLoadLocation("Asia/Taipei")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("loading timezone " + name + ": " + err.Error())
	}
	return loc
}

// MarketLocation returns the TAIFEX market timezone (Asia/Taipei).
func MarketLocation() *time.Location {
	return taipei
}

// IsTradingDay reports whether date is a weekday. TAIFEX holidays are not
// modelled; a holiday fetch simply returns an empty result, which the
// pipeline treats as valid.
func IsTradingDay(date time.Time) bool {
	wd := date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LastTradingDay walks back from the day before today to the most recent
// weekday.
func LastTradingDay(today time.Time) time.Time {
	d := today.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// WeekStart returns the Monday of date's ISO week.
func WeekStart(date time.Time) time.Time {
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

// sessionWindow is one intraday trading session in market-local wall-clock
// minutes since midnight. Sessions crossing midnight are split into two
// windows.
type sessionWindow struct {
	fromMin int
	toMin   int // exclusive
}

// TAIFEX TXF sessions: regular 08:45-13:45, after-hours 15:00-05:00 next
// day (split at midnight).
var txfSessions = []sessionWindow{
	{fromMin: 8*60 + 45, toMin: 13*60 + 45},
	{fromMin: 15 * 60, toMin: 24 * 60},
	{fromMin: 0, toMin: 5 * 60},
}

// InTradingSession reports whether the market-local time t falls inside an
// active TXF trading session.
func InTradingSession(t time.Time) bool {
	local := t.In(taipei)
	minutes := local.Hour()*60 + local.Minute()
	for _, s := range txfSessions {
		if minutes >= s.fromMin && minutes < s.toMin {
			return true
		}
	}
	return false
}
