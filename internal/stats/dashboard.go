package stats

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
)

// Dashboard is everything the finance overview shows.
type Dashboard struct {
	Day          string           `json:"day"`
	Totals       Totals           `json:"totals"`
	IncomeTotal  decimal.Decimal  `json:"incomeTotal"`
	IncomeMonth  decimal.Decimal  `json:"incomeThisMonth"`
	Purse        decimal.Decimal  `json:"purse"`
	Split        []CategoryTotal  `json:"categorySplit"`
	Trend        []MonthTotal     `json:"monthlyTrend"`
	Growth       []CategoryGrowth `json:"categoryGrowth"`
	AverageDaily decimal.Decimal  `json:"averageDailySpend"`
	Forecast     decimal.Decimal  `json:"forecastNextMonth"`
	Overspend    Overspend        `json:"overspend"`
	ExpenseCount int              `json:"expenseCount"`
	IncomeCount  int              `json:"incomeCount"`
}

func BuildDashboard(expenses []core.Expense, incomes []core.Income, now time.Time) Dashboard {
	totals := ComputeTotals(expenses, now)
	return Dashboard{
		Day:          core.DayKey(now),
		Totals:       totals,
		IncomeTotal:  core.SumIncomes(incomes, nil),
		IncomeMonth:  core.SumIncomes(incomes, func(i core.Income) bool { return core.SameMonth(i.Date, now) }),
		Purse:        Purse(expenses, incomes),
		Split:        CategorySplit(expenses),
		Trend:        MonthlyTrend(expenses, now),
		Growth:       MonthlyCategoryGrowth(expenses, now),
		AverageDaily: AverageDailySpend(expenses, now.Location()),
		Forecast:     ForecastNextMonth(expenses, now),
		Overspend:    CheckOverspend(totals.ThisMonth, totals.PrevMonth),
		ExpenseCount: len(expenses),
		IncomeCount:  len(incomes),
	}
}

// MemoKey identifies the inputs of a derived value: the mirror versions it
// was computed from and the calendar day.
type MemoKey struct {
	A, B uint64
	Day  string
}

// Memo caches the last value computed for a key.
type Memo[V any] struct {
	mu    sync.Mutex
	key   MemoKey
	value V
	ok    bool
}

// Get returns the cached value for key, computing it with build on a miss.
func (m *Memo[V]) Get(key MemoKey, build func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ok && m.key == key {
		return m.value
	}
	m.value = build()
	m.key = key
	m.ok = true
	return m.value
}

// DashboardMemo rebuilds the dashboard only when the mirrored expenses or
// incomes changed, or the day rolled over.
type DashboardMemo struct {
	memo Memo[Dashboard]
}

func (d *DashboardMemo) Get(expVersion, incVersion uint64, now time.Time, expenses func() []core.Expense, incomes func() []core.Income) Dashboard {
	key := MemoKey{A: expVersion, B: incVersion, Day: core.DayKey(now)}
	return d.memo.Get(key, func() Dashboard {
		return BuildDashboard(expenses(), incomes(), now)
	})
}
