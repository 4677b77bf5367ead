// Package calendar answers market-session questions for US equities.
package calendar

import (
	"time"
)

// Calendar exposes the session queries the pipeline needs. The concrete
// implementation is clock-free; tests pass fixed timestamps.
type Calendar interface {
	IsOpen(ts time.Time) bool
	LastClose(ts time.Time) time.Time
	PreviousTradingDay(ts time.Time) time.Time
}

// USEquity implements Calendar for NYSE/Nasdaq regular hours
// (09:30-16:00 ET, Monday-Friday). Exchange holidays are not modeled;
// a holiday run degrades to a stale-data run, which the orchestrator
// already handles.
type USEquity struct {
	loc *time.Location
}

// NewUSEquity loads the exchange time zone.
func NewUSEquity() (*USEquity, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	return &USEquity{loc: loc}, nil
}

// Location returns the exchange time zone, used by the intraday volume
// curve and the cron scheduler.
func (c *USEquity) Location() *time.Location {
	return c.loc
}

// IsOpen reports whether the regular session is trading at ts.
func (c *USEquity) IsOpen(ts time.Time) bool {
	local := ts.In(c.loc)
	if isWeekend(local) {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, c.loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, c.loc)
	return !local.Before(open) && local.Before(close)
}

// LastClose returns the most recent 16:00 ET session close at or before ts.
func (c *USEquity) LastClose(ts time.Time) time.Time {
	local := ts.In(c.loc)
	day := local
	for {
		if !isWeekend(day) {
			close := time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, c.loc)
			if !close.After(local) {
				return close
			}
		}
		day = day.AddDate(0, 0, -1)
		// Reset to end of day so the close qualifies on earlier days.
		day = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, c.loc)
		local = day
	}
}

// PreviousTradingDay walks back from ts to the last weekday with a
// session, returned as a date-only timestamp in the exchange zone. A
// weekday before its own close still counts as "previous day is
// yesterday's session": the grouped-bars feed for today is incomplete
// until the close.
func (c *USEquity) PreviousTradingDay(ts time.Time) time.Time {
	local := ts.In(c.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	day = day.AddDate(0, 0, -1)
	for isWeekend(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
