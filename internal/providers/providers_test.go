package providers

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/docstore/memory"
	"lifelog/internal/stats"
)

var (
	alice = core.Identity{UID: "alice", Email: "alice@example.com"}
	bob   = core.Identity{UID: "bob", Email: "bob@example.com"}
)

func confirmed() Options {
	return Options{Mode: WriteConfirmed, ConfirmTimeout: 2 * time.Second}
}

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeSource struct {
	mu       sync.Mutex
	cur      core.Identity
	watchers []func(prev, next core.Identity)
}

func (f *fakeSource) Current() core.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeSource) OnChange(w func(prev, next core.Identity)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers = append(f.watchers, w)
}

func (f *fakeSource) set(id core.Identity) {
	f.mu.Lock()
	prev := f.cur
	f.cur = id
	ws := slices.Clone(f.watchers)
	f.mu.Unlock()
	for _, w := range ws {
		w(prev, id)
	}
}

func TestWritesRequireIdentity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	habits := NewHabits(store, confirmed())
	notes := NewNotes(store, confirmed())

	if _, err := tx.AddExpense(ctx, ExpenseInput{Title: "x"}); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("add expense: %v", err)
	}
	if _, err := habits.ToggleHabit(ctx, "h1", "2025-06-10"); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("toggle: %v", err)
	}
	if err := notes.Save(ctx, core.TopicFinance, "x"); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("save note: %v", err)
	}
	if err := tx.Start(core.Identity{}); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("start without identity: %v", err)
	}
}

func TestCoffeeExpense(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	if err := tx.Start(alice); err != nil {
		t.Fatal(err)
	}
	defer tx.Stop()

	before := stats.ComputeTotals(tx.Expenses(), time.Now()).Lifetime
	id, err := tx.AddExpense(ctx, ExpenseInput{Title: "Coffee", Amount: decimal.NewFromInt(50), Category: "Food"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	now := time.Now()
	after := stats.ComputeTotals(tx.Expenses(), now)
	if !after.Lifetime.Sub(before).Equal(decimal.NewFromInt(50)) || !after.ThisMonth.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("totals = %+v, missing date must default to now", after)
	}
	split := stats.CategorySplit(tx.Expenses())
	if len(split) != 1 || split[0].Category != "Food" || !split[0].Total.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("split = %+v", split)
	}
	if got := tx.Expenses()[0]; got.ID != id || got.Owner != alice.UID {
		t.Fatalf("expense = %+v", got)
	}

	if err := tx.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !stats.ComputeTotals(tx.Expenses(), now).Lifetime.Equal(before) {
		t.Fatal("delete did not restore the total")
	}
}

func TestUpdateExpenseLeavesOmittedFields(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	_ = tx.Start(alice)
	defer tx.Stop()

	date := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	id, err := tx.AddExpense(ctx, ExpenseInput{Title: "Taxi", Amount: decimal.RequireFromString("12.5"), Category: "Taxi", Date: date})
	if err != nil {
		t.Fatal(err)
	}
	title := "Cab"
	if err := tx.UpdateExpense(ctx, id, ExpensePatch{Title: &title}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := tx.expenses.Get(id)
	if got.Title != "Cab" || !got.Date.Equal(date) || got.Category != "Taxi" || got.Amount.String() != "12.5" {
		t.Fatalf("after patch = %+v", got)
	}
	if err := tx.UpdateExpense(ctx, "missing", ExpensePatch{Title: &title}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}
}

func TestIncomes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	_ = tx.Start(alice)
	defer tx.Stop()

	id, err := tx.AddIncome(ctx, IncomeInput{Title: "Pay", Amount: decimal.NewFromInt(1000), Source: "Salary"})
	if err != nil {
		t.Fatal(err)
	}
	amount := decimal.NewFromInt(1200)
	if err := tx.UpdateIncome(ctx, id, IncomePatch{Amount: &amount}); err != nil {
		t.Fatal(err)
	}
	if got := tx.Incomes(); len(got) != 1 || !got[0].Amount.Equal(amount) || got[0].Source != "Salary" {
		t.Fatalf("incomes = %+v", got)
	}
	if err := tx.DeleteIncome(ctx, id); err != nil || len(tx.Incomes()) != 0 {
		t.Fatalf("delete: %v %+v", err, tx.Incomes())
	}
}

func TestPreferencesSeededAndAppended(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	_ = tx.Start(alice)
	defer tx.Stop()

	eventually(t, "seeded preferences", func() bool {
		_, ok, _ := store.Get(ctx, docstore.UserPreferences, alice.UID)
		return ok
	})
	if got := tx.Preferences(); !slices.Equal(got.Categories, core.DefaultCategories) || !slices.Equal(got.Sources, core.DefaultSources) {
		t.Fatalf("preferences = %+v", got)
	}

	if err := tx.AddCategory(ctx, "  Gym "); err != nil {
		t.Fatalf("add category: %v", err)
	}
	for _, name := range []string{"Gym", "Food", "   "} {
		if err := tx.AddCategory(ctx, name); err != nil {
			t.Fatalf("add %q: %v", name, err)
		}
	}
	cats := tx.Preferences().Categories
	if len(cats) != len(core.DefaultCategories)+1 || cats[len(cats)-1] != "Gym" {
		t.Fatalf("categories = %v", cats)
	}

	if err := tx.AddSource(ctx, "Freelance"); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(tx.Preferences().Sources, "Freelance") {
		t.Fatalf("sources = %v", tx.Preferences().Sources)
	}
}

func TestHabitStreakAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	today := time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	opts := confirmed()
	opts.Now = func() time.Time { return today }
	h := NewHabits(store, opts)
	_ = h.Start(alice)
	defer h.Stop()

	id, err := h.AddHabit(ctx, "Read", "")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := h.Habit(id); got.Category != core.DefaultHabitCategory || got.CreatedAt.IsZero() {
		t.Fatalf("habit = %+v", got)
	}
	if n := h.Streak(id); n != 0 {
		t.Fatalf("initial streak = %d", n)
	}

	if done, err := h.ToggleHabit(ctx, id, "2025-06-09"); err != nil || !done {
		t.Fatalf("toggle yesterday: %v %v", done, err)
	}
	if n := h.Streak(id); n != 1 {
		t.Fatalf("streak after yesterday = %d", n)
	}
	if _, err := h.ToggleHabit(ctx, id, "2025-06-10"); err != nil {
		t.Fatal(err)
	}
	if n := h.Streak(id); n != 2 {
		t.Fatalf("streak after today = %d", n)
	}

	if err := h.DeleteHabit(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(h.LogsFor(id)) != 0 || len(h.Habits()) != 0 {
		t.Fatalf("habit or logs still mirrored")
	}
	if left, _ := store.Find(ctx, docstore.Where(docstore.HabitLogs, fieldHabitID, id)); len(left) != 0 {
		t.Fatalf("logs left in store: %d", len(left))
	}
}

func TestToggleTwiceRestores(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	h := NewHabits(store, confirmed())
	_ = h.Start(alice)
	defer h.Stop()

	id, _ := h.AddHabit(ctx, "Run", "Fitness")
	done, err := h.ToggleHabit(ctx, id, "2025-06-10")
	if err != nil || !done || !h.IsDone(id, "2025-06-10") {
		t.Fatalf("first toggle: %v %v", done, err)
	}
	done, err = h.ToggleHabit(ctx, id, "2025-06-10")
	if err != nil || done || h.IsDone(id, "2025-06-10") {
		t.Fatalf("second toggle: %v %v", done, err)
	}
	if _, ok, _ := store.Get(ctx, docstore.HabitLogs, core.LogID(id, "2025-06-10")); ok {
		t.Fatal("log survived the second toggle")
	}

	if _, err := h.ToggleHabit(ctx, id, "10/06/2025"); !errors.Is(err, core.ErrInvalidDay) {
		t.Fatalf("bad day: %v", err)
	}
}

func TestToggleReportsStoredState(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	h := NewHabits(store, Options{})
	_ = h.Start(alice)
	defer h.Stop()

	id, _ := h.AddHabit(ctx, "Stretch", "")
	logID := core.LogID(id, "2025-06-10")
	for i, want := range []bool{true, false, true} {
		done, err := h.ToggleHabit(ctx, id, "2025-06-10")
		if err != nil || done != want {
			t.Fatalf("toggle %d = %v %v, want %v", i, done, err, want)
		}
		if _, ok, _ := store.Get(ctx, docstore.HabitLogs, logID); ok != want {
			t.Fatalf("toggle %d: stored log = %v, want %v", i, ok, want)
		}
	}
}

func TestStreakWithToggledDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	opts := confirmed()
	opts.Now = func() time.Time { return now }
	h := NewHabits(newStore(t), opts)
	_ = h.Start(alice)
	defer h.Stop()

	id, _ := h.AddHabit(ctx, "Read", "")
	if _, err := h.ToggleHabit(ctx, id, "2025-06-09"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		day  string
		done bool
		want int
	}{
		{"2025-06-10", true, 2},
		{"2025-06-10", false, 1},
		{"2025-06-09", false, 0},
		{"2025-06-09", true, 1},
	}
	for _, tt := range tests {
		if got := h.StreakWith(id, tt.day, tt.done); got != tt.want {
			t.Errorf("StreakWith(%s, %v) = %d, want %d", tt.day, tt.done, got, tt.want)
		}
	}
	if got := h.Streak(id); got != 1 {
		t.Errorf("Streak() = %d, want 1", got)
	}
}

func TestDeleteHabitRejectsForeignOwner(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_ = store.Set(ctx, docstore.Habits, "bobs", docstore.Fields{
		fieldTitle: "Swim", docstore.OwnerField: bob.UID,
	}, false)
	_ = store.Set(ctx, docstore.HabitLogs, core.LogID("bobs", "2025-06-10"), docstore.Fields{
		fieldHabitID: "bobs", fieldDate: "2025-06-10", docstore.OwnerField: bob.UID,
	}, false)

	h := NewHabits(store, confirmed())
	_ = h.Start(alice)
	defer h.Stop()

	if err := h.DeleteHabit(ctx, "bobs"); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, ok, _ := store.Get(ctx, docstore.Habits, "bobs"); !ok {
		t.Fatal("foreign habit was deleted")
	}
	if _, ok, _ := store.Get(ctx, docstore.HabitLogs, core.LogID("bobs", "2025-06-10")); !ok {
		t.Fatal("foreign log was deleted")
	}
}

func TestSweepOrphanLogs(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	h := NewHabits(store, confirmed())
	_ = h.Start(alice)
	defer h.Stop()

	id, _ := h.AddHabit(ctx, "Read", "")
	_, _ = h.ToggleHabit(ctx, id, "2025-06-10")
	for _, owner := range []string{alice.UID, bob.UID} {
		_ = store.Set(ctx, docstore.HabitLogs, core.LogID("gone", owner), docstore.Fields{
			fieldHabitID: "gone", fieldDate: "2025-06-01", docstore.OwnerField: owner,
		}, false)
	}

	n, err := h.SweepOrphanLogs(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep own = %d %v", n, err)
	}
	n, err = SweepOrphanLogs(ctx, store, "")
	if err != nil || n != 1 {
		t.Fatalf("sweep all = %d %v", n, err)
	}
	if !h.IsDone(id, "2025-06-10") {
		t.Fatal("sweep removed a live log")
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	ev := NewEvents(store, confirmed())
	_ = ev.Start(alice)
	defer ev.Stop()

	if _, err := ev.AddEvent(ctx, EventInput{Title: "Party", Type: "meeting", Date: "2025-06-10"}); !errors.Is(err, core.ErrInvalidEventType) {
		t.Fatalf("unknown type: %v", err)
	}
	if _, err := ev.AddEvent(ctx, EventInput{Title: "", Type: core.EventEvent, Date: "2025-06-10"}); !errors.Is(err, core.ErrEmptyTitle) {
		t.Fatalf("empty title: %v", err)
	}

	id, err := ev.AddEvent(ctx, EventInput{Title: "Mum", Type: core.EventBirthday, Date: "2025-06-10", Time: "18:00"})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = ev.AddEvent(ctx, EventInput{Title: "Dentist", Type: core.EventReminder, Date: "2025-06-12"})

	if got := ev.EventsForDate("2025-06-10"); len(got) != 1 || got[0].ID != id {
		t.Fatalf("events for date = %+v", got)
	}
	if all := ev.Events(); len(all) != 2 || all[0].Title != "Dentist" {
		t.Fatalf("events must be newest first: %+v", all)
	}

	moved := "2025-06-11"
	if err := ev.UpdateEvent(ctx, id, EventPatch{Date: &moved}); err != nil {
		t.Fatal(err)
	}
	if got := ev.EventsForDate("2025-06-11"); len(got) != 1 || got[0].Time != "18:00" {
		t.Fatalf("after move = %+v", got)
	}
	bad := core.EventType("other")
	if err := ev.UpdateEvent(ctx, id, EventPatch{Type: &bad}); !errors.Is(err, core.ErrInvalidEventType) {
		t.Fatalf("bad type patch: %v", err)
	}
	if err := ev.DeleteEvent(ctx, id); err != nil || len(ev.Events()) != 1 {
		t.Fatalf("delete: %v", err)
	}
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	notes := NewNotes(store, confirmed())
	_ = notes.Start(alice)
	defer notes.Stop()

	if err := notes.Save(ctx, "diary", "x"); !errors.Is(err, core.ErrInvalidTopic) {
		t.Fatalf("bad topic: %v", err)
	}
	if err := notes.Save(ctx, core.TopicFinance, "budget is tight"); err != nil {
		t.Fatal(err)
	}
	if got := notes.Note(core.TopicFinance); got != "budget is tight" {
		t.Fatalf("note = %q", got)
	}
	if got := notes.Note(core.TopicHabits); got != "" {
		t.Fatalf("habits note = %q", got)
	}
	doc, ok, _ := store.Get(ctx, docstore.Notes, core.NoteID(alice.UID, core.TopicFinance))
	if !ok || doc.Fields.String(fieldType) != "finance" || doc.Fields.String(docstore.OwnerField) != alice.UID {
		t.Fatalf("stored note = %+v", doc)
	}
}

func TestBindSwitchesIdentity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	src := &fakeSource{}
	tx := NewTransactions(store, confirmed())
	notes := NewNotes(store, confirmed())
	Bind(src, nil, tx, notes)

	src.set(alice)
	if _, err := tx.AddExpense(ctx, ExpenseInput{Title: "Coffee", Amount: decimal.NewFromInt(5)}); err != nil {
		t.Fatal(err)
	}
	_ = notes.Save(ctx, core.TopicHabits, "alice's note")

	src.set(core.Identity{})
	if len(tx.Expenses()) != 0 || notes.Note(core.TopicHabits) != "" {
		t.Fatal("mirrors not cleared on logout")
	}
	if !tx.Identity().IsZero() {
		t.Fatal("provider still bound after logout")
	}

	// A write for alice after logout must not resurface.
	_, _ = store.Add(ctx, docstore.Expenses, docstore.Fields{docstore.OwnerField: alice.UID, "title": "late"})
	time.Sleep(30 * time.Millisecond)
	if len(tx.Expenses()) != 0 {
		t.Fatal("stale snapshot applied after logout")
	}

	src.set(bob)
	if _, err := tx.AddExpense(ctx, ExpenseInput{Title: "Tea", Amount: decimal.NewFromInt(3)}); err != nil {
		t.Fatal(err)
	}
	for _, e := range tx.Expenses() {
		if e.Owner != bob.UID {
			t.Fatalf("expense of %s visible to bob", e.Owner)
		}
	}
	if notes.Note(core.TopicHabits) != "" {
		t.Fatal("alice's note visible to bob")
	}
}

func TestStaleGenerationIsDropped(t *testing.T) {
	store := newStore(t)
	tx := NewTransactions(store, confirmed())
	_ = tx.Start(alice)

	tx.mu.Lock()
	old := tx.gen
	tx.mu.Unlock()
	tx.Stop()

	applied := tx.apply(old, docstore.Expenses, func() {
		tx.expenses.Replace([]core.Expense{{ID: "ghost"}})
	})
	if applied || tx.expenses.Len() != 0 {
		t.Fatal("snapshot of a stopped generation was applied")
	}
}

func TestAcceptedModeDoesNotWait(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tx := NewTransactions(store, Options{})
	_ = tx.Start(alice)
	defer tx.Stop()

	id, err := tx.AddExpense(ctx, ExpenseInput{Title: "Coffee", Amount: decimal.NewFromInt(1)})
	if err != nil || id == "" {
		t.Fatalf("add: %q %v", id, err)
	}
	eventually(t, "expense mirrored", func() bool { return tx.expenses.Has(id) })
}

func TestMirrorWaitForTimesOut(t *testing.T) {
	m := NewMirror("things", func(s string) string { return s })
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.WaitFor(ctx, present[string]("a")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}

	go m.Replace([]string{"a"})
	if err := m.WaitFor(context.Background(), present[string]("a")); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if m.Version() != 1 {
		t.Fatalf("version = %d", m.Version())
	}
}

func TestParseWriteMode(t *testing.T) {
	for in, want := range map[string]WriteMode{"": WriteAccepted, "accepted": WriteAccepted, " Confirmed ": WriteConfirmed} {
		if got, err := ParseWriteMode(in); err != nil || got != want {
			t.Errorf("ParseWriteMode(%q) = %v %v", in, got, err)
		}
	}
	if _, err := ParseWriteMode("eventually"); err == nil {
		t.Error("expected error")
	}
}
