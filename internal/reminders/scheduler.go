package reminders

import (
	"context"
	"slices"
	"sync"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/localstore"
	"lifelog/internal/log"
)

// Timer is the part of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithAfterFunc(after AfterFunc) Option {
	return func(s *Scheduler) { s.after = after }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type reminder struct {
	habit  core.Habit
	hour   int
	minute int
	next   time.Time
	timer  Timer
	seq    uint64
}

// Scheduler keeps one daily timer per habit. Nothing is persisted: callers
// restore reminders from localstore.ReminderPrefs on start.
type Scheduler struct {
	notifier Notifier
	now      func() time.Time
	after    AfterFunc
	logger   *log.Logger

	mu     sync.Mutex
	seq    uint64
	active map[string]*reminder
}

func NewScheduler(n Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		notifier: n,
		now:      time.Now,
		after:    func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		active:   map[string]*reminder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.OrDefault(log.ComponentReminders)
	return s
}

// NextOccurrence returns the next time after now at hour:minute in now's
// location.
func NextOccurrence(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Set schedules a daily reminder for h at clock (HH:MM), replacing any
// existing one. An empty clock clears the reminder.
func (s *Scheduler) Set(h core.Habit, clock string) error {
	if clock == "" {
		s.Clear(h.ID)
		return nil
	}
	hour, minute, err := localstore.ParseClock(clock)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(h.ID)
	r := &reminder{habit: h, hour: hour, minute: minute}
	s.active[h.ID] = r
	s.armLocked(r)
	return nil
}

// Restore schedules every stored reminder whose habit is known.
func (s *Scheduler) Restore(habits []core.Habit, times map[string]string) {
	for _, h := range habits {
		clock, ok := times[h.ID]
		if !ok {
			continue
		}
		if err := s.Set(h, clock); err != nil {
			s.logger.Warn("Skipping stored reminder", log.FieldHabitID, h.ID, log.FieldError, err)
		}
	}
}

func (s *Scheduler) Clear(habitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(habitID)
}

func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.active {
		s.stopLocked(id)
	}
}

// Active returns the habit ids with a reminder, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Next returns when the reminder for habitID fires next.
func (s *Scheduler) Next(habitID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.active[habitID]
	if !ok {
		return time.Time{}, false
	}
	return r.next, true
}

func (s *Scheduler) stopLocked(habitID string) {
	r, ok := s.active[habitID]
	if !ok {
		return
	}
	r.timer.Stop()
	r.seq = 0
	delete(s.active, habitID)
}

func (s *Scheduler) armLocked(r *reminder) {
	now := s.now()
	r.next = NextOccurrence(now, r.hour, r.minute)
	s.seq++
	seq := s.seq
	r.seq = seq
	r.timer = s.after(r.next.Sub(now), func() { s.fire(r, seq) })
}

func (s *Scheduler) fire(r *reminder, seq uint64) {
	s.mu.Lock()
	if r.seq != seq || s.active[r.habit.ID] != r {
		s.mu.Unlock()
		return
	}
	habit := r.habit
	s.armLocked(r)
	s.mu.Unlock()

	if s.notifier.Permission() != PermissionGranted {
		s.logger.Debug("Notification permission not granted, skipping reminder", log.FieldHabitID, habit.ID)
		return
	}
	err := s.notifier.Show(context.Background(), Notification{
		Title: "Habit Reminder: " + habit.Title,
		Body:  "Don't forget to complete your habit today!",
		Tag:   "habit-" + habit.ID,
	})
	if err != nil {
		s.logger.Error("Failed to show reminder", log.FieldHabitID, habit.ID, log.FieldError, err)
	}
}
