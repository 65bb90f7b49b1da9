// Package export renders the user's data as CSV files and spreadsheet rows.
package export

import (
	"io"
	"strings"
	"time"

	"lifelog/internal/core"
)

// Export kinds; each names the file prefix and the spreadsheet sheet.
const (
	KindExpenses  = "expenses"
	KindIncomes   = "incomes"
	KindHabits    = "habits"
	KindHabitLogs = "habit_logs"
)

// Table is a header plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Lines returns the number of lines the CSV rendering has.
func (t Table) Lines() int {
	return len(t.Rows) + 1
}

// WriteCSV writes t with the header unquoted and every data cell quoted.
// Lines are separated by "\n" with no trailing newline.
func WriteCSV(w io.Writer, t Table) error {
	var b strings.Builder
	b.WriteString(strings.Join(t.Header, ","))
	for _, row := range t.Rows {
		b.WriteByte('\n')
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// CSV renders t as a string.
func CSV(t Table) string {
	var b strings.Builder
	_ = WriteCSV(&b, t)
	return b.String()
}

func ExpensesTable(expenses []core.Expense) Table {
	t := Table{Header: []string{"Date", "Title", "Category", "Amount"}}
	for _, e := range expenses {
		t.Rows = append(t.Rows, []string{formatDate(e.Date), e.Title, e.CategoryOrDefault(), e.Amount.String()})
	}
	return t
}

func IncomesTable(incomes []core.Income) Table {
	t := Table{Header: []string{"Date", "Title", "Source", "Amount"}}
	for _, in := range incomes {
		t.Rows = append(t.Rows, []string{formatDate(in.Date), in.Title, in.SourceOrDefault(), in.Amount.String()})
	}
	return t
}

func HabitsTable(habits []core.Habit) Table {
	t := Table{Header: []string{"ID", "Title", "Category", "Created At"}}
	for _, h := range habits {
		created := ""
		if !h.CreatedAt.IsZero() {
			created = h.CreatedAt.Format(time.RFC3339)
		}
		t.Rows = append(t.Rows, []string{h.ID, h.Title, h.CategoryOrDefault(), created})
	}
	return t
}

func HabitLogsTable(logs []core.HabitLog) Table {
	t := Table{Header: []string{"Habit ID", "Date", "Completed"}}
	for _, l := range logs {
		t.Rows = append(t.Rows, []string{l.HabitID, l.Date, "Yes"})
	}
	return t
}

func formatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return core.DayKey(d)
}
