package task

import "time"

// StartOfHour returns the first instant of now's hour, in now's location
func StartOfHour(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
}

// EndOfHour returns the last instant of now's hour
func EndOfHour(now time.Time) time.Time {
	return StartOfHour(now).Add(time.Hour - time.Nanosecond)
}

// StartOfDay returns midnight of now's day, in now's location
func StartOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// EndOfDay returns the last instant of now's day.
// Computed from the next midnight so DST days keep their real length.
func EndOfDay(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Add(-time.Nanosecond)
}

// TimePointOfDay returns hour:minute of now's day
func TimePointOfDay(now time.Time, hour, minute int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
}

// WindowFunc computes an instant relative to the evaluation instant
type WindowFunc func(now time.Time) time.Time

func pointOfDay(hour, minute int) WindowFunc {
	return func(now time.Time) time.Time { return TimePointOfDay(now, hour, minute) }
}

func endOfDayPlus(days int) WindowFunc {
	return func(now time.Time) time.Time { return EndOfDay(now).AddDate(0, 0, days) }
}

func nowPlus(d time.Duration) WindowFunc {
	return func(now time.Time) time.Time { return now.Add(d) }
}
