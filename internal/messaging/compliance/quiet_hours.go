package compliance

import (
	"fmt"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a local wall-clock time of day expressed in minutes after midnight.
type Clock int

// ParseClock parses an HH:MM string.
func ParseClock(v string) (Clock, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("compliance: empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("compliance: parse clock %q: %w", v, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the wall-clock time of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// InWindow reports whether now falls inside the quiet window [start, end).
// A window whose start is not before its end wraps midnight.
func InWindow(now, start, end Clock) bool {
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// MinutesUntilEnd returns the minutes from now until the next occurrence of end.
func MinutesUntilEnd(now, end Clock) int {
	diff := int(end) - int(now)
	if diff < 0 {
		diff += minutesPerDay
	}
	return diff
}

// QuietHours represents a tenant's nightly window in local time.
type QuietHours struct {
	Start Clock
	End   Clock
}

// ParseQuietHours returns a quiet-hours window from HH:MM strings.
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := ParseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: parse quiet hours start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("compliance: parse quiet hours end: %w", err)
	}
	return QuietHours{Start: s, End: e}, nil
}

// Contains reports whether local falls inside the window. local must already be
// in the tenant's time zone.
func (q QuietHours) Contains(local time.Time) bool {
	return InWindow(ClockOf(local), q.Start, q.End)
}

// Remaining returns how long until the window ends, or zero when local is outside it.
func (q QuietHours) Remaining(local time.Time) time.Duration {
	if !q.Contains(local) {
		return 0
	}
	return time.Duration(MinutesUntilEnd(ClockOf(local), q.End)) * time.Minute
}
