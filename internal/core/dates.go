package core

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// DayLayout is the calendar-day format used by habit logs and events.
const DayLayout = "2006-01-02"

// DayKey formats t as a calendar day in its own location.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string as midnight in the local time zone.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return t, nil
}

// ShiftDay moves a YYYY-MM-DD key by n calendar days.
func ShiftDay(day string, n int) (string, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return "", ErrInvalidDay
	}
	return t.AddDate(0, 0, n).Format(DayLayout), nil
}

// CoerceDate normalizes the date representations found in stored documents:
// time values, RFC 3339 strings, calendar-day strings and unix milliseconds.
// Anything else yields the zero time.
func CoerceDate(v any) time.Time {
	switch d := v.(type) {
	case time.Time:
		return d
	case *time.Time:
		if d != nil {
			return *d
		}
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.ParseInLocation(DayLayout, s, time.Local); err == nil {
			return t
		}
	case int64:
		return time.UnixMilli(d)
	case int:
		return time.UnixMilli(int64(d))
	case float64:
		return time.UnixMilli(int64(d))
	case json.Number:
		if ms, err := d.Int64(); err == nil {
			return time.UnixMilli(ms)
		}
		return CoerceDate(d.String())
	}
	return time.Time{}
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Sunday that begins t's week.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// SameMonth reports whether t falls in ref's calendar month, evaluated in
// ref's location. Zero times never match.
func SameMonth(t, ref time.Time) bool {
	if t.IsZero() {
		return false
	}
	t = t.In(ref.Location())
	return t.Year() == ref.Year() && t.Month() == ref.Month()
}

// SameWeek reports whether t falls in ref's Sunday-based week.
func SameWeek(t, ref time.Time) bool {
	if t.IsZero() {
		return false
	}
	return StartOfWeek(t.In(ref.Location())).Equal(StartOfWeek(ref))
}

// SortByDateDesc sorts items newest first. Items with equal dates keep their
// relative order.
func SortByDateDesc[T any](items []T, date func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return date(b).Compare(date(a))
	})
}
