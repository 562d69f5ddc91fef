package market

import (
	"fmt"
	"time"
)

// Hours is a daily trading window. Open and Close are hours of day in Loc;
// when Open > Close the window wraps midnight. Open == Close means all day.
type Hours struct {
	Loc          *time.Location
	Open         int
	Close        int
	SkipWeekends bool
}

// AlwaysOpen never filters.
var AlwaysOpen = Hours{Loc: time.UTC}

// DefaultHours avoids weekends and the thin 22:00-02:00 UTC rollover period.
var DefaultHours = Hours{Loc: time.UTC, Open: 2, Close: 22, SkipWeekends: true}

func (h Hours) Validate() error {
	if h.Open < 0 || h.Open > 23 || h.Close < 0 || h.Close > 23 {
		return fmt.Errorf("trading hours must be within 0-23, got %d-%d", h.Open, h.Close)
	}
	return nil
}

// Contains reports whether t falls inside the trading window.
func (h Hours) Contains(t time.Time) bool {
	loc := h.Loc
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	if h.SkipWeekends {
		if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if h.Open == h.Close {
		return true
	}
	hr := lt.Hour()
	if h.Open < h.Close {
		return hr >= h.Open && hr < h.Close
	}
	return hr >= h.Open || hr < h.Close
}

// IsForexOpen reports whether the spot FX market is open: it closes Friday
// 21:00 UTC and reopens Sunday 21:00 UTC.
func IsForexOpen(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Friday:
		return u.Hour() < 21
	case time.Sunday:
		return u.Hour() >= 21
	}
	return true
}
