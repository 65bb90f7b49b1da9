// Package stats derives totals, trends and habit analytics from the mirrored
// collections. Every function is pure and takes the current time explicitly.
package stats

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
)

// OverspendThreshold is the month-over-month growth, in percent, above which
// spending is flagged.
var OverspendThreshold = decimal.NewFromInt(20)

// TrendMonths is the number of months covered by MonthlyTrend.
const TrendMonths = 6

// ForecastMonths is the number of prior months ForecastNextMonth looks at.
const ForecastMonths = 3

var hundred = decimal.NewFromInt(100)

type (
	Totals struct {
		Lifetime  decimal.Decimal `json:"lifetime"`
		ThisMonth decimal.Decimal `json:"thisMonth"`
		ThisWeek  decimal.Decimal `json:"thisWeek"`
		PrevMonth decimal.Decimal `json:"prevMonth"`
		PrevWeek  decimal.Decimal `json:"prevWeek"`
	}

	CategoryTotal struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	}

	CategoryGrowth struct {
		Category string          `json:"category"`
		Current  decimal.Decimal `json:"current"`
		Previous decimal.Decimal `json:"previous"`
		Change   decimal.Decimal `json:"change"`
	}

	MonthTotal struct {
		Month time.Time       `json:"month"`
		Label string          `json:"label"`
		Total decimal.Decimal `json:"total"`
	}

	Overspend struct {
		Alert   bool            `json:"alert"`
		Percent decimal.Decimal `json:"percent"`
	}
)

// ComputeTotals sums expenses over the lifetime, the current and previous
// calendar month, and the current and previous Sunday-based week.
func ComputeTotals(expenses []core.Expense, now time.Time) Totals {
	lastMonth := core.StartOfMonth(now).AddDate(0, -1, 0)
	lastWeek := core.StartOfWeek(now).AddDate(0, 0, -7)
	return Totals{
		Lifetime:  core.SumExpenses(expenses, nil),
		ThisMonth: core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameMonth(e.Date, now) }),
		ThisWeek:  core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameWeek(e.Date, now) }),
		PrevMonth: core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameMonth(e.Date, lastMonth) }),
		PrevWeek:  core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameWeek(e.Date, lastWeek) }),
	}
}

// Purse is lifetime income minus lifetime spending.
func Purse(expenses []core.Expense, incomes []core.Income) decimal.Decimal {
	return core.SumIncomes(incomes, nil).Sub(core.SumExpenses(expenses, nil))
}

// CategorySplit sums expenses per category, in order of first occurrence.
func CategorySplit(expenses []core.Expense) []CategoryTotal {
	var out []CategoryTotal
	index := map[string]int{}
	for _, e := range expenses {
		cat := e.CategoryOrDefault()
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, CategoryTotal{Category: cat, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
	}
	return out
}

// MonthlyCategoryGrowth compares each category spent on this month with the
// previous month. Categories with no spending this month are omitted. The
// result is ordered by change, largest first.
func MonthlyCategoryGrowth(expenses []core.Expense, now time.Time) []CategoryGrowth {
	lastMonth := core.StartOfMonth(now).AddDate(0, -1, 0)
	var out []CategoryGrowth
	index := map[string]int{}
	prev := map[string]decimal.Decimal{}

	for _, e := range expenses {
		cat := e.CategoryOrDefault()
		switch {
		case core.SameMonth(e.Date, now):
			i, ok := index[cat]
			if !ok {
				i = len(out)
				index[cat] = i
				out = append(out, CategoryGrowth{Category: cat, Current: decimal.Zero})
			}
			out[i].Current = out[i].Current.Add(e.Amount)
		case core.SameMonth(e.Date, lastMonth):
			prev[cat] = prev[cat].Add(e.Amount)
		}
	}

	for i := range out {
		out[i].Previous = prev[out[i].Category]
		out[i].Change = out[i].Current.Sub(out[i].Previous)
	}
	slices.SortStableFunc(out, func(a, b CategoryGrowth) int {
		return b.Change.Cmp(a.Change)
	})
	return out
}

// AverageDailySpend divides lifetime spending by the number of distinct days
// with at least one expense.
func AverageDailySpend(expenses []core.Expense, loc *time.Location) decimal.Decimal {
	if len(expenses) == 0 {
		return decimal.Zero
	}
	if loc == nil {
		loc = time.Local
	}
	days := map[string]struct{}{}
	for _, e := range expenses {
		days[core.DayKey(e.Date.In(loc))] = struct{}{}
	}
	return core.SumExpenses(expenses, nil).Div(decimal.NewFromInt(int64(len(days))))
}

// MonthTotals returns the spending of the n months ending with now's month,
// oldest first.
func MonthTotals(expenses []core.Expense, now time.Time, n int) []MonthTotal {
	start := core.StartOfMonth(now)
	out := make([]MonthTotal, 0, n)
	for i := n - 1; i >= 0; i-- {
		m := start.AddDate(0, -i, 0)
		out = append(out, MonthTotal{
			Month: m,
			Label: m.Format("Jan"),
			Total: core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameMonth(e.Date, m) }),
		})
	}
	return out
}

// MonthlyTrend is MonthTotals over the last six months.
func MonthlyTrend(expenses []core.Expense, now time.Time) []MonthTotal {
	return MonthTotals(expenses, now, TrendMonths)
}

// ForecastNextMonth averages the previous three months, skipping months
// without spending. It is zero when all three are empty.
func ForecastNextMonth(expenses []core.Expense, now time.Time) decimal.Decimal {
	return forecast(priorMonths(expenses, now, ForecastMonths))
}

func priorMonths(expenses []core.Expense, now time.Time, n int) []decimal.Decimal {
	start := core.StartOfMonth(now)
	sums := make([]decimal.Decimal, 0, n)
	for i := 1; i <= n; i++ {
		m := start.AddDate(0, -i, 0)
		sums = append(sums, core.SumExpenses(expenses, func(e core.Expense) bool { return core.SameMonth(e.Date, m) }))
	}
	return sums
}

func forecast(sums []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	count := 0
	for _, s := range sums {
		if s.IsPositive() {
			total = total.Add(s)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}

// CheckOverspend flags current spending more than 20% above prior. No alert
// is raised without prior spending.
func CheckOverspend(current, prior decimal.Decimal) Overspend {
	if !prior.IsPositive() {
		return Overspend{Percent: decimal.Zero}
	}
	pct := current.Sub(prior).Div(prior).Mul(hundred)
	return Overspend{Alert: pct.GreaterThan(OverspendThreshold), Percent: pct.Round(1)}
}
