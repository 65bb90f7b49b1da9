package stats

import (
	"slices"
	"time"

	"lifelog/internal/core"
)

const (
	rateDays   = 7
	trendWeeks = 4
	trendDays  = 14
)

// Streak counts consecutive completed days ending today. If today is not
// completed yet, the run ending yesterday still counts; otherwise the streak
// is zero.
func Streak(days []string, today time.Time) int {
	done := make(map[string]bool, len(days))
	for _, d := range days {
		done[d] = true
	}

	cur := core.DayKey(today)
	if !done[cur] {
		cur = core.DayKey(today.AddDate(0, 0, -1))
		if !done[cur] {
			return 0
		}
	}
	n := 0
	for done[cur] {
		n++
		prev, err := core.ShiftDay(cur, -1)
		if err != nil {
			break
		}
		cur = prev
	}
	return n
}

type (
	// DayCount is the number of completions in one bucket of a trend.
	DayCount struct {
		Label string `json:"label"`
		Start string `json:"start"`
		Count int    `json:"count"`
	}

	HabitSummary struct {
		HabitID     string `json:"habitId"`
		Title       string `json:"title"`
		Completions int    `json:"completions"`
		Streak      int    `json:"streak"`
	}

	HabitStats struct {
		CompletedToday int     `json:"completedToday"`
		TotalHabits    int     `json:"totalHabits"`
		BestStreak     int     `json:"bestStreak"`
		BestHabit      string  `json:"bestHabit"`
		ThisWeek       int     `json:"thisWeek"`
		CompletionRate float64 `json:"completionRate"`

		WeeklyTrend []DayCount     `json:"weeklyTrend"`
		DailyTrend  []DayCount     `json:"dailyTrend"`
		Breakdown   []HabitSummary `json:"breakdown"`
		Leaderboard []HabitSummary `json:"leaderboard"`
	}
)

// HabitAnalytics summarizes completion activity as of now. Logs whose habit
// is missing are ignored.
func HabitAnalytics(habits []core.Habit, logs []core.HabitLog, now time.Time) HabitStats {
	live := make(map[string]bool, len(habits))
	for _, h := range habits {
		live[h.ID] = true
	}
	byHabit := map[string][]string{}
	perDay := map[string]int{}
	for _, l := range logs {
		if !live[l.HabitID] {
			continue
		}
		byHabit[l.HabitID] = append(byHabit[l.HabitID], l.Date)
		perDay[l.Date]++
	}

	st := HabitStats{
		TotalHabits:    len(habits),
		CompletedToday: perDay[core.DayKey(now)],
	}

	for _, h := range habits {
		s := HabitSummary{
			HabitID:     h.ID,
			Title:       h.Title,
			Completions: len(byHabit[h.ID]),
			Streak:      Streak(byHabit[h.ID], now),
		}
		if s.Streak > st.BestStreak {
			st.BestStreak = s.Streak
			st.BestHabit = h.Title
		}
		st.Breakdown = append(st.Breakdown, s)
	}
	st.Leaderboard = slices.Clone(st.Breakdown)
	slices.SortStableFunc(st.Leaderboard, func(a, b HabitSummary) int {
		return b.Streak - a.Streak
	})

	weekStart := core.StartOfWeek(now)
	st.ThisWeek = countBetween(perDay, weekStart, weekStart.AddDate(0, 0, 6))

	recent := 0
	for i := 0; i < rateDays; i++ {
		recent += perDay[core.DayKey(now.AddDate(0, 0, -i))]
	}
	if possible := len(habits) * rateDays; possible > 0 {
		st.CompletionRate = float64(recent) / float64(possible) * 100
	}

	for i := trendWeeks - 1; i >= 0; i-- {
		start := weekStart.AddDate(0, 0, -7*i)
		st.WeeklyTrend = append(st.WeeklyTrend, DayCount{
			Label: "Week " + start.Format("Jan 2"),
			Start: core.DayKey(start),
			Count: countBetween(perDay, start, start.AddDate(0, 0, 6)),
		})
	}
	for i := trendDays - 1; i >= 0; i-- {
		d := now.AddDate(0, 0, -i)
		key := core.DayKey(d)
		st.DailyTrend = append(st.DailyTrend, DayCount{
			Label: d.Format("Jan 2"),
			Start: key,
			Count: perDay[key],
		})
	}
	return st
}

// countBetween sums perDay over the inclusive calendar range [from, to].
func countBetween(perDay map[string]int, from, to time.Time) int {
	lo, hi := core.DayKey(from), core.DayKey(to)
	n := 0
	for day, c := range perDay {
		if day >= lo && day <= hi {
			n += c
		}
	}
	return n
}
