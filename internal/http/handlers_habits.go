package http

import (
	"net/http"
	"sort"
	"time"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/log"
	"lifelog/internal/stats"
)

type habitJSON struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	DoneToday bool      `json:"doneToday"`
	Streak    int       `json:"streak"`
	Reminder  string    `json:"reminder,omitempty"`
}

type habitRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

type toggleRequest struct {
	Day string `json:"day"`
}

type toggleResponse struct {
	HabitID string `json:"habitId"`
	Day     string `json:"day"`
	Done    bool   `json:"done"`
	Streak  int    `json:"streak"`
}

type reminderRequest struct {
	Time string `json:"time"`
}

type reminderJSON struct {
	HabitID string     `json:"habitId"`
	Time    string     `json:"time"`
	Next    *time.Time `json:"next,omitempty"`
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	today := core.DayKey(s.now())
	var times map[string]string
	if s.deps.ReminderPref != nil {
		times = s.deps.ReminderPref.All()
	}
	habits := s.deps.Habits.Habits()
	out := make([]habitJSON, 0, len(habits))
	for _, h := range habits {
		out = append(out, habitJSON{
			ID:        h.ID,
			Title:     h.Title,
			Category:  h.CategoryOrDefault(),
			CreatedAt: h.CreatedAt,
			DoneToday: s.deps.Habits.IsDone(h.ID, today),
			Streak:    s.deps.Habits.Streak(h.ID),
			Reminder:  times[h.ID],
		})
	}
	NewResponse().JSON(out).Send(w)
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	title := sanitizeInput(req.Title)
	if title == "" {
		s.fail(w, r, core.ErrEmptyTitle)
		return
	}
	id, err := s.deps.Habits.AddHabit(r.Context(), title, sanitizeInput(req.Category))
	s.created(w, r, id, err)
}

// handleDeleteHabit removes the habit with its logs and its reminder.
func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	habitID := r.PathValue("id")
	err := s.deps.Habits.DeleteHabit(r.Context(), habitID)
	if err == nil || isUnconfirmed(err) {
		s.dropReminder(r, habitID)
	}
	s.written(w, r, err)
}

func (s *Server) handleToggleHabit(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	habitID := r.PathValue("id")
	if _, ok := s.deps.Habits.Habit(habitID); !ok {
		s.fail(w, r, docstore.ErrNotFound)
		return
	}
	day := req.Day
	if day == "" {
		day = core.DayKey(s.now())
	}
	done, err := s.deps.Habits.ToggleHabit(r.Context(), habitID, day)
	if err != nil && !isUnconfirmed(err) {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(writeStatus(err, http.StatusOK)).JSON(toggleResponse{
		HabitID: habitID,
		Day:     day,
		Done:    done,
		Streak:  s.deps.Habits.StreakWith(habitID, day, done),
	}).Send(w)
}

func (s *Server) handleHabitStats(w http.ResponseWriter, r *http.Request) {
	h := s.deps.Habits
	habitsV, logsV := h.Versions()
	now := s.now()
	key := stats.MemoKey{A: habitsV, B: logsV, Day: core.DayKey(now)}
	NewResponse().JSON(s.habitStats.Get(key, func() stats.HabitStats {
		return stats.HabitAnalytics(h.Habits(), h.Logs(), now)
	})).Send(w)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReminderPref == nil || s.deps.Reminders == nil {
		NewResponse().JSON([]reminderJSON{}).Send(w)
		return
	}
	times := s.deps.ReminderPref.All()
	out := make([]reminderJSON, 0, len(times))
	for habitID, clock := range times {
		rj := reminderJSON{HabitID: habitID, Time: clock}
		if next, ok := s.deps.Reminders.Next(habitID); ok {
			rj.Next = &next
		}
		out = append(out, rj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HabitID < out[j].HabitID })
	NewResponse().JSON(out).Send(w)
}

// handleSetReminder stores the reminder time and schedules it. An empty time
// clears the reminder.
func (s *Server) handleSetReminder(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReminderPref == nil || s.deps.Reminders == nil {
		ErrorResponse(http.StatusServiceUnavailable, "reminders unavailable").Send(w)
		return
	}
	var req reminderRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	habitID := r.PathValue("habitID")
	habit, ok := s.deps.Habits.Habit(habitID)
	if !ok {
		s.fail(w, r, docstore.ErrNotFound)
		return
	}
	if req.Time == "" {
		s.dropReminder(r, habitID)
		NewResponse().Status(http.StatusNoContent).Send(w)
		return
	}
	if err := s.deps.ReminderPref.Set(r.Context(), habitID, req.Time); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Reminders.Set(habit, req.Time); err != nil {
		s.fail(w, r, err)
		return
	}
	rj := reminderJSON{HabitID: habitID, Time: req.Time}
	if next, ok := s.deps.Reminders.Next(habitID); ok {
		rj.Next = &next
	}
	NewResponse().JSON(rj).Send(w)
}

func (s *Server) handleClearReminder(w http.ResponseWriter, r *http.Request) {
	s.dropReminder(r, r.PathValue("habitID"))
	NewResponse().Status(http.StatusNoContent).Send(w)
}

func (s *Server) dropReminder(r *http.Request, habitID string) {
	if s.deps.Reminders != nil {
		s.deps.Reminders.Clear(habitID)
	}
	if s.deps.ReminderPref == nil {
		return
	}
	if err := s.deps.ReminderPref.Remove(r.Context(), habitID); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to remove reminder",
			log.FieldHabitID, habitID, log.FieldError, err)
	}
}
