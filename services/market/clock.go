// Package market classifies wall-clock time against the exchange session.
//
// The session is Monday-Friday 09:30-16:00 America/New_York. There is no
// holiday calendar: a holiday weekday looks like a normal trading day.
package market

import (
	"time"
	_ "time/tzdata"

	"ticker_backend/models"
)

// TickInterval is the spacing of scheduler ticks, aligned to the wall clock
const TickInterval = 15 * time.Minute

// Location is the exchange time zone
var Location = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Now returns the current time in the exchange time zone
func Now() time.Time {
	return time.Now().In(Location)
}

// IsMarketOpen reports whether t falls inside the trading session, at minute granularity
func IsMarketOpen(t time.Time) bool {
	t = t.In(Location)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}

	hour, minute := t.Hour(), t.Minute()
	closed := hour < 9 || hour >= 17 ||
		(hour == 9 && minute < 30) ||
		(hour == 16 && minute > 0)
	return !closed
}

// Classify derives the tick state for t
func Classify(t time.Time) models.TickState {
	t = t.In(Location)
	weekday := t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
	hour, minute := t.Hour(), t.Minute()

	return models.TickState{
		Now:             t,
		IsMarketOpen:    IsMarketOpen(t),
		IsOpenBoundary:  weekday && hour == 9 && minute == 30,
		IsCloseBoundary: weekday && hour == 16 && minute == 0,
	}
}

// NextBoundary returns the first :00/:15/:30/:45 instant strictly after t
func NextBoundary(t time.Time) time.Time {
	t = t.In(Location)
	start := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, Location)
	slot := t.Sub(start) / TickInterval
	return start.Add((slot + 1) * TickInterval)
}

// GetDelta returns the percentage change from oldValue to newValue
func GetDelta(newValue, oldValue float64) float64 {
	return newValue/oldValue*100 - 100
}

// FormatWhen renders a timestamp the way predictions record their creation time
func FormatWhen(t time.Time) string {
	return t.In(Location).Format("2006-01-02 15:04:05 MST")
}
