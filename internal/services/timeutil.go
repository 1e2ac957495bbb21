package services

import (
	"fmt"
	"time"
)

const (
	slotMinutes = 30
	endOfDay    = "24:00"
	minutesDay  = 24 * 60
)

// parseClock converts "HH:MM" into minutes from midnight.
func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// parseEndClock is parseClock for the end of a range, where "24:00" means midnight at the
// close of the day.
func parseEndClock(value string) (int, error) {
	if value == endOfDay {
		return minutesDay, nil
	}
	return parseClock(value)
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func parseDate(value string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return d, nil
}

// BookingDuration returns the span between two "HH:MM" times in hours.
func BookingDuration(start, end string) (float64, error) {
	s, err := parseClock(start)
	if err != nil {
		return 0, err
	}
	e, err := parseEndClock(end)
	if err != nil {
		return 0, err
	}
	return float64(e-s) / 60, nil
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
