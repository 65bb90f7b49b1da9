package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/log"
	"lifelog/internal/stats"
)

const (
	fieldHabitID   = "habitId"
	fieldCreatedAt = "createdAt"
)

// Habits mirrors the user's habits and their completion logs.
type Habits struct {
	base

	habits *Mirror[core.Habit]
	logs   *Mirror[core.HabitLog]
}

func NewHabits(store docstore.Store, opts Options) *Habits {
	h := &Habits{
		base:   newBase("habits", store, opts),
		habits: NewMirror(docstore.Habits, func(h core.Habit) string { return h.ID }),
		logs:   NewMirror(docstore.HabitLogs, func(l core.HabitLog) string { return l.ID }),
	}
	h.reset = func() {
		h.habits.Clear()
		h.logs.Clear()
		h.metrics.MirrorCleared(docstore.Habits)
		h.metrics.MirrorCleared(docstore.HabitLogs)
	}
	return h
}

func (h *Habits) Start(id core.Identity) error {
	return h.start(id, func(gen uint64, id core.Identity) []docstore.Unsubscribe {
		return []docstore.Unsubscribe{
			listen(&h.base, gen, docstore.Owned(docstore.Habits, id.UID), h.habits, habitFromDoc, sortHabits),
			listen(&h.base, gen, docstore.Owned(docstore.HabitLogs, id.UID), h.logs, logFromDoc, sortLogs),
		}
	})
}

func (h *Habits) Habits() []core.Habit {
	return h.habits.Items()
}

func (h *Habits) Logs() []core.HabitLog {
	return h.logs.Items()
}

func (h *Habits) Habit(id string) (core.Habit, bool) {
	return h.habits.Get(id)
}

// Versions identify the habit and log snapshots currently mirrored.
func (h *Habits) Versions() (habits, logs uint64) {
	return h.habits.Version(), h.logs.Version()
}

// AddHabit creates a habit. An empty category becomes "General".
func (h *Habits) AddHabit(ctx context.Context, title, category string) (string, error) {
	if strings.TrimSpace(category) == "" {
		category = core.DefaultHabitCategory
	}
	return addDoc(ctx, &h.base, h.habits, docstore.Habits, docstore.Fields{
		fieldTitle:     title,
		fieldCategory:  category,
		fieldCreatedAt: docstore.ServerTimestamp,
	})
}

// DeleteHabit removes the habit and every log referencing it in one batch.
func (h *Habits) DeleteHabit(ctx context.Context, habitID string) error {
	uid, err := h.owner()
	if err != nil {
		return err
	}
	if habitID == "" {
		return core.ErrEmptyHabitID
	}

	removed := 0
	err = h.store.Batch(ctx, func(tx docstore.Tx) error {
		habit, found, err := tx.Get(ctx, docstore.Habits, habitID)
		if err != nil {
			return err
		}
		if found && habit.Fields.String(docstore.OwnerField) != uid {
			return fmt.Errorf("delete habit %s: %w", habitID, docstore.ErrNotFound)
		}
		logs, err := tx.Find(ctx, docstore.Where(docstore.HabitLogs, fieldHabitID, habitID))
		if err != nil {
			return err
		}
		for _, l := range logs {
			if l.Fields.String(docstore.OwnerField) != uid {
				continue
			}
			if err := tx.Delete(docstore.HabitLogs, l.ID); err != nil {
				return err
			}
			removed++
		}
		return tx.Delete(docstore.Habits, habitID)
	})
	if err == nil {
		h.logger.DebugContext(ctx, "Habit deleted with logs", log.FieldHabitID, habitID, log.FieldCount, removed)
	}
	return h.wrote(ctx, log.OpDelete, uid, docstore.Habits, habitID, err, func(ctx context.Context) error {
		if err := h.habits.WaitFor(ctx, absent[core.Habit](habitID)); err != nil {
			return err
		}
		return h.logs.WaitItems(ctx, func(items []core.HabitLog) bool {
			for _, l := range items {
				if l.HabitID == habitID {
					return false
				}
			}
			return true
		})
	})
}

// ToggleHabit flips completion of habitID on day and reports whether the
// habit is now done. The flip runs against the stored state, so concurrent
// toggles from other devices never leave a duplicate log.
func (h *Habits) ToggleHabit(ctx context.Context, habitID, day string) (bool, error) {
	uid, err := h.owner()
	if err != nil {
		return false, err
	}
	if habitID == "" {
		return false, core.ErrEmptyHabitID
	}
	if _, err := core.ParseDay(day); err != nil {
		return false, err
	}

	logID := core.LogID(habitID, day)
	done, err := docstore.Flip(ctx, h.store, docstore.HabitLogs, logID, docstore.Fields{
		fieldHabitID:        habitID,
		fieldDate:           day,
		docstore.OwnerField: uid,
		fieldCreatedAt:      docstore.ServerTimestamp,
	})
	if err != nil {
		return false, h.wrote(ctx, log.OpToggle, uid, docstore.HabitLogs, logID, err, nil)
	}
	return done, h.wrote(ctx, log.OpToggle, uid, docstore.HabitLogs, logID, nil, func(ctx context.Context) error {
		if done {
			return h.logs.WaitFor(ctx, present[core.HabitLog](logID))
		}
		return h.logs.WaitFor(ctx, absent[core.HabitLog](logID))
	})
}

// WaitHabits blocks until every habit in ids is mirrored or ctx is done.
func (h *Habits) WaitHabits(ctx context.Context, ids []string) error {
	return h.habits.WaitFor(ctx, func(get func(string) (core.Habit, bool)) bool {
		for _, id := range ids {
			if _, ok := get(id); !ok {
				return false
			}
		}
		return true
	})
}

// IsDone reports whether habitID has a log for day.
func (h *Habits) IsDone(habitID, day string) bool {
	return h.logs.Has(core.LogID(habitID, day))
}

// LogsFor returns the logs of one habit, newest first.
func (h *Habits) LogsFor(habitID string) []core.HabitLog {
	var out []core.HabitLog
	for _, l := range h.logs.Items() {
		if l.HabitID == habitID {
			out = append(out, l)
		}
	}
	return out
}

// Streak returns the current streak of habitID as of today.
func (h *Habits) Streak(habitID string) int {
	return stats.Streak(h.logDays(habitID, ""), h.opts.Now())
}

// StreakWith returns the streak of habitID as if day were marked done or not,
// whether or not the mirror has seen that log yet.
func (h *Habits) StreakWith(habitID, day string, done bool) int {
	days := h.logDays(habitID, day)
	if done {
		days = append(days, day)
	}
	return stats.Streak(days, h.opts.Now())
}

func (h *Habits) logDays(habitID, skip string) []string {
	logs := h.LogsFor(habitID)
	days := make([]string, 0, len(logs)+1)
	for _, l := range logs {
		if l.Date != skip {
			days = append(days, l.Date)
		}
	}
	return days
}

// SweepOrphanLogs deletes the current user's logs whose habit is gone.
func (h *Habits) SweepOrphanLogs(ctx context.Context) (int, error) {
	uid, err := h.owner()
	if err != nil {
		return 0, err
	}
	return SweepOrphanLogs(ctx, h.store, uid)
}

// SweepOrphanLogs deletes habit logs whose parent habit no longer exists.
// An empty owner sweeps every user.
func SweepOrphanLogs(ctx context.Context, store docstore.Store, owner string) (int, error) {
	habitsQ, logsQ := docstore.All(docstore.Habits), docstore.All(docstore.HabitLogs)
	if owner != "" {
		habitsQ, logsQ = docstore.Owned(docstore.Habits, owner), docstore.Owned(docstore.HabitLogs, owner)
	}

	removed := 0
	err := store.Batch(ctx, func(tx docstore.Tx) error {
		habits, err := tx.Find(ctx, habitsQ)
		if err != nil {
			return err
		}
		live := make(map[string]bool, len(habits))
		for _, id := range docstore.CollectIDs(habits) {
			live[id] = true
		}
		logs, err := tx.Find(ctx, logsQ)
		if err != nil {
			return err
		}
		for _, l := range logs {
			if live[l.Fields.String(fieldHabitID)] {
				continue
			}
			if err := tx.Delete(docstore.HabitLogs, l.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep orphan logs: %w", err)
	}
	return removed, nil
}

func habitFromDoc(d docstore.Document) core.Habit {
	return core.Habit{
		ID:        d.ID,
		Owner:     d.Fields.String(docstore.OwnerField),
		Title:     d.Fields.String(fieldTitle),
		Category:  d.Fields.String(fieldCategory),
		CreatedAt: d.Fields.Time(fieldCreatedAt),
	}
}

func logFromDoc(d docstore.Document) core.HabitLog {
	return core.HabitLog{
		ID:        d.ID,
		HabitID:   d.Fields.String(fieldHabitID),
		Owner:     d.Fields.String(docstore.OwnerField),
		Date:      d.Fields.String(fieldDate),
		CreatedAt: d.Fields.Time(fieldCreatedAt),
	}
}

func sortHabits(items []core.Habit) {
	core.SortByDateDesc(items, func(h core.Habit) time.Time { return h.CreatedAt })
}

func sortLogs(items []core.HabitLog) {
	core.SortByDateDesc(items, func(l core.HabitLog) time.Time {
		d, _ := core.ParseDay(l.Date)
		return d
	})
}
