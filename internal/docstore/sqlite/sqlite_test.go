package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/docstore"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []docstore.Change
}

func (p *recordingPublisher) PublishChange(_ context.Context, c docstore.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "docs.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTripKeepsTypesReadable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	when := time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC)
	id, err := s.Add(ctx, docstore.Expenses, docstore.Fields{
		"uid":      "u1",
		"title":    "Coffee",
		"amount":   decimal.RequireFromString("50.25"),
		"category": "Food",
		"date":     when,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	doc, ok, err := s.Get(ctx, docstore.Expenses, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got := doc.Fields.Decimal("amount"); got.String() != "50.25" {
		t.Errorf("amount = %s", got)
	}
	if got := doc.Fields.Time("date"); !got.Equal(when) {
		t.Errorf("date = %v, want %v", got, when)
	}
	if doc.Fields.String("title") != "Coffee" {
		t.Errorf("title = %q", doc.Fields.String("title"))
	}
}

func TestSQLiteQueries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_ = s.Set(ctx, docstore.HabitLogs, "h1_2025-01-01", docstore.Fields{"uid": "u1", "habitId": "h1"}, false)
	_ = s.Set(ctx, docstore.HabitLogs, "h2_2025-01-01", docstore.Fields{"uid": "u1", "habitId": "h2"}, false)
	_ = s.Set(ctx, docstore.HabitLogs, "h1_2025-01-02", docstore.Fields{"uid": "u2", "habitId": "h1"}, false)

	owned, err := s.Find(ctx, docstore.Owned(docstore.HabitLogs, "u1"))
	if err != nil || len(owned) != 2 {
		t.Fatalf("owned query: %d docs, err=%v", len(owned), err)
	}
	byHabit, err := s.Find(ctx, docstore.Where(docstore.HabitLogs, "habitId", "h1"))
	if err != nil || len(byHabit) != 2 {
		t.Fatalf("habit query: %d docs, err=%v", len(byHabit), err)
	}
	if ids := docstore.CollectIDs(byHabit); ids[0] != "h1_2025-01-01" || ids[1] != "h1_2025-01-02" {
		t.Fatalf("results should keep insertion order, got %v", ids)
	}
	if _, err := s.Find(ctx, docstore.Where(docstore.HabitLogs, "x') OR 1=1 --", "v")); !errors.Is(err, docstore.ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestSQLiteUpdateAndMerge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Update(ctx, docstore.Events, "nope", docstore.Fields{"title": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = s.Set(ctx, docstore.Notes, "u1_finance", docstore.Fields{"uid": "u1", "content": "a"}, false)
	_ = s.Set(ctx, docstore.Notes, "u1_finance", docstore.Fields{"content": "b", "updatedAt": docstore.ServerTimestamp}, true)

	doc, _, _ := s.Get(ctx, docstore.Notes, "u1_finance")
	if doc.Fields.String("uid") != "u1" || doc.Fields.String("content") != "b" {
		t.Fatalf("merge lost fields: %v", doc.Fields)
	}
	if doc.Fields.Time("updatedAt").IsZero() {
		t.Fatalf("server timestamp not resolved: %v", doc.Fields["updatedAt"])
	}
}

func TestSQLiteBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := openTestStore(t, WithPublisher(pub))

	_ = s.Set(ctx, docstore.Habits, "h1", docstore.Fields{"uid": "u1"}, false)
	_ = s.Set(ctx, docstore.HabitLogs, "h1_2025-01-01", docstore.Fields{"uid": "u1", "habitId": "h1"}, false)

	failure := errors.New("stop")
	err := s.Batch(ctx, func(tx docstore.Tx) error {
		_ = tx.Delete(docstore.Habits, "h1")
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected failure, got %v", err)
	}
	if _, ok, _ := s.Get(ctx, docstore.Habits, "h1"); !ok {
		t.Fatalf("rolled back delete applied")
	}

	err = s.Batch(ctx, func(tx docstore.Tx) error {
		logs, err := tx.Find(ctx, docstore.Where(docstore.HabitLogs, "habitId", "h1"))
		if err != nil {
			return err
		}
		for _, l := range logs {
			if err := tx.Delete(docstore.HabitLogs, l.ID); err != nil {
				return err
			}
		}
		return tx.Delete(docstore.Habits, "h1")
	})
	if err != nil {
		t.Fatalf("cascade batch: %v", err)
	}
	logs, _ := s.Find(ctx, docstore.Where(docstore.HabitLogs, "habitId", "h1"))
	if len(logs) != 0 {
		t.Fatalf("logs survived cascade: %v", logs)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.changes) != 4 {
		t.Fatalf("published %d changes, want 4: %+v", len(pub.changes), pub.changes)
	}
	for _, c := range pub.changes {
		if c.Origin != s.Origin() {
			t.Fatalf("change not stamped with origin: %+v", c)
		}
	}
}

func TestSQLiteListenAndFlip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ch := make(chan int, 16)
	unsub := s.Listen(docstore.Owned(docstore.HabitLogs, "u1"), func(docs []docstore.Document) {
		ch <- len(docs)
	}, func(err error) { t.Errorf("listener error: %v", err) })
	defer unsub()

	wait := func(want int) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case n := <-ch:
				if n == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %d docs", want)
			}
		}
	}
	wait(0)

	fields := docstore.Fields{"uid": "u1", "habitId": "h1", "date": "2025-01-01"}
	if exists, err := docstore.Flip(ctx, s, docstore.HabitLogs, "h1_2025-01-01", fields); err != nil || !exists {
		t.Fatalf("flip on: %v %v", exists, err)
	}
	wait(1)
	if exists, err := docstore.Flip(ctx, s, docstore.HabitLogs, "h1_2025-01-01", fields); err != nil || exists {
		t.Fatalf("flip off: %v %v", exists, err)
	}
	wait(0)
}

func TestApplyRemoteSkipsOwnOrigin(t *testing.T) {
	s := openTestStore(t)
	if docstore.ApplyRemote(s, s.Origin(), docstore.Change{Collection: docstore.Expenses, Origin: s.Origin()}) {
		t.Fatalf("own change should be skipped")
	}
	if !docstore.ApplyRemote(s, s.Origin(), docstore.Change{Collection: docstore.Expenses, Origin: "other"}) {
		t.Fatalf("remote change should notify")
	}
}
