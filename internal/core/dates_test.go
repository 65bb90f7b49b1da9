package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCoerceDate(t *testing.T) {
	ref := time.Date(2025, 5, 17, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   any
		want time.Time
	}{
		{"time", ref, ref},
		{"pointer", &ref, ref},
		{"rfc3339", ref.Format(time.RFC3339Nano), ref},
		{"day", "2025-05-17", time.Date(2025, 5, 17, 0, 0, 0, 0, time.Local)},
		{"millis", ref.UnixMilli(), ref},
		{"json number", json.Number("1747474200000"), time.UnixMilli(1747474200000)},
		{"garbage", "yesterday-ish", time.Time{}},
		{"nil", nil, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CoerceDate(tc.in)
			if !got.Equal(tc.want) {
				t.Errorf("CoerceDate(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestShiftDay(t *testing.T) {
	got, err := ShiftDay("2024-03-01", -1)
	if err != nil || got != "2024-02-29" {
		t.Fatalf("ShiftDay leap = %q, %v", got, err)
	}
	if _, err := ShiftDay("nope", 1); err == nil {
		t.Fatalf("expected error for bad day")
	}
}

func TestSameWeekStartsSunday(t *testing.T) {
	// 2025-06-08 is a Sunday.
	sunday := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)
	saturday := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	nextSat := time.Date(2025, 6, 14, 23, 0, 0, 0, time.UTC)

	if SameWeek(saturday, sunday) {
		t.Errorf("saturday before should be previous week")
	}
	if !SameWeek(nextSat, sunday) {
		t.Errorf("following saturday should be same week")
	}
	if SameWeek(time.Time{}, sunday) || SameMonth(time.Time{}, sunday) {
		t.Errorf("zero time must never match")
	}
}

func TestSortByDateDesc(t *testing.T) {
	d1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	items := []Expense{
		{ID: "a", Date: d1},
		{ID: "b", Date: d2},
		{ID: "c", Date: d1},
		{ID: "z"},
	}
	SortByDateDesc(items, func(e Expense) time.Time { return e.Date })

	want := []string{"b", "a", "c", "z"}
	for i, id := range want {
		if items[i].ID != id {
			t.Fatalf("position %d = %s, want %s (%v)", i, items[i].ID, id, items)
		}
	}
}
