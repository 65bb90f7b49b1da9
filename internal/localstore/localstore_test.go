package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lifelog/internal/core"
)

func TestSQLiteKV(t *testing.T) {
	ctx := context.Background()
	kv, err := OpenSQLiteKV(filepath.Join(t.TempDir(), "device.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if _, ok, err := kv.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, KeySessionToken, "t1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, KeySessionToken, "t2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, ok, _ := kv.Get(ctx, KeySessionToken); !ok || v != "t2" {
		t.Fatalf("get = %q %v", v, ok)
	}
	if err := kv.Delete(ctx, KeySessionToken); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, KeySessionToken); ok {
		t.Fatalf("key survived delete")
	}
}

func TestGoalsPersistWholesale(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	goals, err := LoadGoals(ctx, kv, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := goals.Add(ctx, "   ", nil); !errors.Is(err, ErrEmptyGoalName) {
		t.Fatalf("empty name: %v", err)
	}

	target := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	run, _ := goals.Add(ctx, " Run a marathon ", &target)
	read, _ := goals.Add(ctx, "Read 12 books", nil)
	if run.Name != "Run a marathon" {
		t.Fatalf("name not trimmed: %q", run.Name)
	}

	if _, err := goals.Toggle(ctx, read.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if done, total := goals.Completed(); done != 1 || total != 2 {
		t.Fatalf("completed = %d/%d", done, total)
	}

	reloaded, _ := LoadGoals(ctx, kv, "u1")
	list := reloaded.List()
	if len(list) != 2 || !list[1].Completed || list[0].TargetDate == nil || !list[0].TargetDate.Equal(target) {
		t.Fatalf("reloaded goals = %+v", list)
	}

	if err := reloaded.Delete(ctx, run.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := reloaded.Delete(ctx, run.ID); !errors.Is(err, ErrGoalNotFound) {
		t.Fatalf("second delete: %v", err)
	}

	other, _ := LoadGoals(ctx, kv, "u2")
	if len(other.List()) != 0 {
		t.Fatalf("goals leaked across owners")
	}
	if _, ok := kv.Snapshot()[GoalsKey("u1")]; !ok {
		t.Fatalf("goals not stored under %s", GoalsKey("u1"))
	}
}

func TestLoadGoalsToleratesGarbage(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.Set(ctx, GoalsKey("u1"), "{not json")
	goals, err := LoadGoals(ctx, kv, "u1")
	if err != nil || len(goals.List()) != 0 {
		t.Fatalf("garbage should load as empty: %v %v", goals.List(), err)
	}
}

func TestDeadline(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	day := func(d int) *time.Time {
		t := time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
		return &t
	}

	cases := []struct {
		name  string
		goal  core.Goal
		class string
		text  string
		ok    bool
	}{
		{"no target", core.Goal{}, "", "", false},
		{"completed", core.Goal{TargetDate: day(1), Completed: true}, "", "", false},
		{"overdue", core.Goal{TargetDate: day(8)}, DeadlineOverdue, "Overdue", true},
		{"today", core.Goal{TargetDate: day(10)}, DeadlineDueToday, "Due today", true},
		{"soon", core.Goal{TargetDate: day(13)}, DeadlineDueSoon, "3 days left", true},
		{"on track", core.Goal{TargetDate: day(20)}, DeadlineOnTrack, "10 days left", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, ok := Deadline(tc.goal, now)
			if ok != tc.ok || st.Class != tc.class || st.Text != tc.text {
				t.Fatalf("Deadline = %+v %v, want %s %q %v", st, ok, tc.class, tc.text, tc.ok)
			}
		})
	}
}

func TestReminderPrefs(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	prefs, _ := LoadReminderPrefs(ctx, kv)

	if err := prefs.Set(ctx, "h1", "25:00"); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("invalid clock accepted: %v", err)
	}
	if err := prefs.Set(ctx, "h1", "07:30"); err != nil {
		t.Fatalf("set: %v", err)
	}

	reloaded, _ := LoadReminderPrefs(ctx, kv)
	if v, ok := reloaded.Get("h1"); !ok || v != "07:30" {
		t.Fatalf("reloaded = %q %v", v, ok)
	}
	if err := reloaded.Remove(ctx, "h1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(reloaded.All()) != 0 {
		t.Fatalf("remove left %v", reloaded.All())
	}
}
