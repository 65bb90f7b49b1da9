package docstore

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestQueryMatches(t *testing.T) {
	cases := []struct {
		name   string
		q      Query
		fields Fields
		want   bool
	}{
		{"whole collection", All(Expenses), Fields{}, true},
		{"string equal", Owned(Expenses, "u1"), Fields{"uid": "u1"}, true},
		{"string differs", Owned(Expenses, "u1"), Fields{"uid": "u2"}, false},
		{"missing field", Owned(Expenses, "u1"), Fields{}, false},
		{"json number vs int", Where(Expenses, "n", 3), Fields{"n": json.Number("3")}, true},
		{"string vs number", Where(Expenses, "n", "3"), Fields{"n": 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.q.Matches(tc.fields); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFieldsDecoders(t *testing.T) {
	f := Fields{
		"amount":  "12.50",
		"num":     json.Number("7.25"),
		"float":   3.5,
		"dec":     decimal.RequireFromString("1.10"),
		"list":    []any{"a", 1, "b"},
		"day":     "2025-02-03",
		"flag":    true,
		"badAmnt": "twelve",
	}

	if got := f.Decimal("amount"); got.String() != "12.5" {
		t.Errorf("string decimal = %s", got)
	}
	if got := f.Decimal("num"); got.String() != "7.25" {
		t.Errorf("json number decimal = %s", got)
	}
	if got := f.Decimal("float"); got.String() != "3.5" {
		t.Errorf("float decimal = %s", got)
	}
	if got := f.Decimal("dec"); !got.Equal(decimal.RequireFromString("1.1")) {
		t.Errorf("decimal passthrough = %s", got)
	}
	if got := f.Decimal("badAmnt"); !got.IsZero() {
		t.Errorf("bad amount should be zero, got %s", got)
	}
	if got := f.Strings("list"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("strings = %v", got)
	}
	if got := f.Time("day"); got.Year() != 2025 || got.Month() != time.February || got.Day() != 3 {
		t.Errorf("time = %v", got)
	}
	if !f.Bool("flag") || f.Bool("missing") {
		t.Errorf("bool decoding wrong")
	}
}

func TestResolveReplacesServerTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := Fields{"createdAt": ServerTimestamp, "title": "x"}
	out := in.Resolve(now)
	if out["createdAt"] != now {
		t.Fatalf("createdAt not resolved: %v", out["createdAt"])
	}
	if in["createdAt"] != ServerTimestamp {
		t.Fatalf("Resolve must not mutate its receiver")
	}
}

func TestFeedCoalescesWakeups(t *testing.T) {
	feed := NewFeed()
	defer feed.Close()

	release := make(chan struct{})
	var runs atomic.Int32
	var once sync.Once
	started := make(chan struct{})

	unsub := feed.Subscribe(Expenses, func(ctx context.Context) {
		n := runs.Add(1)
		if n == 1 {
			once.Do(func() { close(started) })
			<-release
		}
	})
	defer unsub()

	<-started
	for i := 0; i < 10; i++ {
		feed.Publish(Expenses)
	}
	feed.Publish(Incomes)
	close(release)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Fatalf("refresh runs = %d, want 2 (initial + one coalesced)", got)
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	feed := NewFeed()
	defer feed.Close()

	calls := make(chan struct{}, 8)
	unsub := feed.Subscribe(Habits, func(ctx context.Context) { calls <- struct{}{} })
	<-calls
	unsub()

	feed.Publish(Habits)
	select {
	case <-calls:
		t.Fatalf("refresh ran after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
	if feed.Listeners() != 0 {
		t.Fatalf("listener still registered")
	}
}

func TestFeedClosedSubscribeIsNoop(t *testing.T) {
	feed := NewFeed()
	feed.Close()
	unsub := feed.Subscribe(Habits, func(ctx context.Context) {
		t.Errorf("refresh must not run on a closed feed")
	})
	unsub()
	time.Sleep(20 * time.Millisecond)
}
