package reminders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/localstore"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire advances the clock to the last armed timer and runs it.
func (c *fakeClock) fire() {
	c.mu.Lock()
	t := c.timers[len(c.timers)-1]
	c.now = c.now.Add(t.d)
	c.mu.Unlock()
	t.f()
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

func newScheduler(t *testing.T, start time.Time) (*Scheduler, *fakeClock, *LogNotifier) {
	t.Helper()
	clock := &fakeClock{now: start}
	n := NewLogNotifier(nil)
	s := NewScheduler(n, WithClock(clock.Now), WithAfterFunc(clock.AfterFunc))
	return s, clock, n
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name         string
		hour, minute int
		want         time.Time
	}{
		{"later today", 9, 30, time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)},
		{"already passed", 7, 0, time.Date(2025, 6, 11, 7, 0, 0, 0, time.UTC)},
		{"exactly now", 8, 0, time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextOccurrence(now, tc.hour, tc.minute); !got.Equal(tc.want) {
				t.Fatalf("NextOccurrence = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestReminderFiresAndReschedules(t *testing.T) {
	ctx := context.Background()
	s, clock, n := newScheduler(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	if _, err := n.RequestPermission(ctx); err != nil {
		t.Fatalf("permission: %v", err)
	}

	habit := core.Habit{ID: "h1", Title: "Read"}
	if err := s.Set(habit, "09:00"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if d := clock.last().d; d != time.Hour {
		t.Fatalf("first delay = %v, want 1h", d)
	}

	clock.fire()
	shown := n.Shown()
	if len(shown) != 1 || shown[0].Title != "Habit Reminder: Read" || shown[0].Tag != "habit-h1" {
		t.Fatalf("shown = %+v", shown)
	}
	if d := clock.last().d; d != 24*time.Hour {
		t.Fatalf("rescheduled delay = %v, want 24h", d)
	}
	next, _ := s.Next("h1")
	if !next.Equal(time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("next = %v", next)
	}
}

func TestSetReplacesAndClear(t *testing.T) {
	s, clock, _ := newScheduler(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	habit := core.Habit{ID: "h1", Title: "Read"}

	_ = s.Set(habit, "09:00")
	first := clock.last()
	_ = s.Set(habit, "10:00")
	if !first.stopped {
		t.Fatal("replaced reminder still armed")
	}
	first.f()
	if len(clock.timers) != 2 {
		t.Fatal("stale timer rescheduled itself")
	}

	if err := s.Set(habit, "9am"); !errors.Is(err, localstore.ErrInvalidClock) {
		t.Fatalf("invalid clock: %v", err)
	}
	_ = s.Set(core.Habit{ID: "h2"}, "07:00")
	s.Clear("h1")
	if got := s.Active(); len(got) != 1 || got[0] != "h2" {
		t.Fatalf("active = %v", got)
	}
	s.ClearAll()
	if len(s.Active()) != 0 {
		t.Fatal("ClearAll left reminders")
	}
}

func TestDeniedPermissionSkipsDelivery(t *testing.T) {
	s, clock, n := newScheduler(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	n.Deny()
	if p, err := n.RequestPermission(context.Background()); err != nil || p != PermissionDenied {
		t.Fatalf("permission = %s %v", p, err)
	}

	_ = s.Set(core.Habit{ID: "h1", Title: "Read"}, "09:00")
	clock.fire()
	if len(n.Shown()) != 0 {
		t.Fatal("notification shown without permission")
	}
	if _, ok := s.Next("h1"); !ok {
		t.Fatal("reminder dropped after a denied delivery")
	}
}

func TestRestore(t *testing.T) {
	s, _, _ := newScheduler(t, time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	habits := []core.Habit{{ID: "h1"}, {ID: "h2"}}
	s.Restore(habits, map[string]string{"h1": "06:00", "h2": "bad", "gone": "07:00"})
	if got := s.Active(); len(got) != 1 || got[0] != "h1" {
		t.Fatalf("active = %v", got)
	}
}
