package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifelog/internal/core"
)

var (
	ErrEmptyGoalName = errors.New("empty goal name")
	ErrGoalNotFound  = errors.New("goal not found")
)

// Goals holds one owner's goals. The list is read once and written back
// wholesale after every mutation.
type Goals struct {
	kv    KV
	owner string
	now   func() time.Time

	mu    sync.Mutex
	items []core.Goal
}

// LoadGoals reads the goals of owner. A missing or unreadable key yields an
// empty list.
func LoadGoals(ctx context.Context, kv KV, owner string) (*Goals, error) {
	g := &Goals{kv: kv, owner: owner, now: time.Now}
	raw, ok, err := kv.Get(ctx, GoalsKey(owner))
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &g.items); err != nil {
			g.items = nil
		}
	}
	return g, nil
}

// List returns a copy of the goals in insertion order.
func (g *Goals) List() []core.Goal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.items)
}

// Completed counts completed goals and returns it with the total.
func (g *Goals) Completed() (done, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, goal := range g.items {
		if goal.Completed {
			done++
		}
	}
	return done, len(g.items)
}

func (g *Goals) Add(ctx context.Context, name string, target *time.Time) (core.Goal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Goal{}, ErrEmptyGoalName
	}
	goal := core.Goal{
		ID:         uuid.NewString(),
		Name:       name,
		TargetDate: target,
		CreatedAt:  g.now().UTC(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	next := append(slices.Clone(g.items), goal)
	if err := g.persist(ctx, next); err != nil {
		return core.Goal{}, err
	}
	return goal, nil
}

func (g *Goals) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.index(id)
	if i < 0 {
		return ErrGoalNotFound
	}
	return g.persist(ctx, slices.Delete(slices.Clone(g.items), i, i+1))
}

// Toggle flips the completed flag of id and returns the updated goal.
func (g *Goals) Toggle(ctx context.Context, id string) (core.Goal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.index(id)
	if i < 0 {
		return core.Goal{}, ErrGoalNotFound
	}
	next := slices.Clone(g.items)
	next[i].Completed = !next[i].Completed
	if err := g.persist(ctx, next); err != nil {
		return core.Goal{}, err
	}
	return next[i], nil
}

func (g *Goals) index(id string) int {
	return slices.IndexFunc(g.items, func(goal core.Goal) bool { return goal.ID == id })
}

// persist writes next and adopts it only when the write succeeded.
func (g *Goals) persist(ctx context.Context, next []core.Goal) error {
	if next == nil {
		next = []core.Goal{}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode goals: %w", err)
	}
	if err := g.kv.Set(ctx, GoalsKey(g.owner), string(raw)); err != nil {
		return fmt.Errorf("save goals: %w", err)
	}
	g.items = next
	return nil
}

// Deadline classes.
const (
	DeadlineOverdue  = "overdue"
	DeadlineDueToday = "due-today"
	DeadlineDueSoon  = "due-soon"
	DeadlineOnTrack  = "on-track"
)

// DeadlineStatus describes how close a goal is to its target date.
type DeadlineStatus struct {
	Text  string `json:"text"`
	Class string `json:"class"`
	Days  int    `json:"days"`
}

// Deadline classifies goal against now. Completed goals and goals without a
// target date have no status.
func Deadline(goal core.Goal, now time.Time) (DeadlineStatus, bool) {
	if goal.TargetDate == nil || goal.Completed {
		return DeadlineStatus{}, false
	}
	target := core.StartOfDay(goal.TargetDate.In(now.Location()))
	today := core.StartOfDay(now)
	days := calendarDays(today, target)

	switch {
	case days < 0:
		return DeadlineStatus{Text: "Overdue", Class: DeadlineOverdue, Days: -days}, true
	case days == 0:
		return DeadlineStatus{Text: "Due today", Class: DeadlineDueToday}, true
	case days <= 3:
		return DeadlineStatus{Text: fmt.Sprintf("%d days left", days), Class: DeadlineDueSoon, Days: days}, true
	default:
		return DeadlineStatus{Text: fmt.Sprintf("%d days left", days), Class: DeadlineOnTrack, Days: days}, true
	}
}

// calendarDays counts midnights between two day starts, ignoring DST shifts.
func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
