package providers

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
	"lifelog/internal/docstore"
	"lifelog/internal/log"
)

const (
	fieldTitle      = "title"
	fieldAmount     = "amount"
	fieldCategory   = "category"
	fieldSource     = "source"
	fieldDate       = "date"
	fieldCategories = "categories"
	fieldSources    = "sources"
)

// prefsKey is the single mirror slot holding the preferences document.
const prefsKey = "preferences"

type ExpenseInput struct {
	Title    string
	Amount   decimal.Decimal
	Category string
	// Date is optional; the zero time lets the store stamp the commit time.
	Date time.Time
}

// ExpensePatch lists the fields to change. Nil fields are left untouched.
type ExpensePatch struct {
	Title    *string
	Amount   *decimal.Decimal
	Category *string
	Date     *time.Time
}

type IncomeInput struct {
	Title  string
	Amount decimal.Decimal
	Source string
	Date   time.Time
}

type IncomePatch struct {
	Title  *string
	Amount *decimal.Decimal
	Source *string
	Date   *time.Time
}

// Transactions mirrors the user's expenses, incomes and preferences.
type Transactions struct {
	base

	expenses *Mirror[core.Expense]
	incomes  *Mirror[core.Income]
	prefs    *Mirror[core.Preferences]
}

func NewTransactions(store docstore.Store, opts Options) *Transactions {
	t := &Transactions{
		base:     newBase("transactions", store, opts),
		expenses: NewMirror(docstore.Expenses, func(e core.Expense) string { return e.ID }),
		incomes:  NewMirror(docstore.Incomes, func(i core.Income) string { return i.ID }),
		prefs:    NewMirror(docstore.UserPreferences, func(core.Preferences) string { return prefsKey }),
	}
	t.reset = func() {
		t.expenses.Clear()
		t.incomes.Clear()
		t.prefs.Clear()
		t.metrics.MirrorCleared(docstore.Expenses)
		t.metrics.MirrorCleared(docstore.Incomes)
	}
	return t
}

func (t *Transactions) Start(id core.Identity) error {
	return t.start(id, func(gen uint64, id core.Identity) []docstore.Unsubscribe {
		return []docstore.Unsubscribe{
			listen(&t.base, gen, docstore.Owned(docstore.Expenses, id.UID), t.expenses, expenseFromDoc, sortExpenses),
			listen(&t.base, gen, docstore.Owned(docstore.Incomes, id.UID), t.incomes, incomeFromDoc, sortIncomes),
			t.store.ListenDoc(docstore.UserPreferences, id.UID, func(doc docstore.Document, exists bool) {
				t.onPrefs(gen, id.UID, doc, exists)
			}, t.onError(docstore.UserPreferences)),
		}
	})
}

func (t *Transactions) onPrefs(gen uint64, uid string, doc docstore.Document, exists bool) {
	if !exists {
		if err := t.seedPrefs(context.Background(), uid); err != nil {
			t.logger.Error("Failed to seed preferences", log.FieldUID, uid, log.FieldError, err)
		}
	}
	p := prefsFromDoc(doc, exists)
	t.apply(gen, docstore.UserPreferences, func() {
		t.prefs.Replace([]core.Preferences{p})
	})
}

// seedPrefs writes the default lists unless a preferences document appeared
// in the meantime.
func (t *Transactions) seedPrefs(ctx context.Context, uid string) error {
	return t.store.Batch(ctx, func(tx docstore.Tx) error {
		_, ok, err := tx.Get(ctx, docstore.UserPreferences, uid)
		if err != nil || ok {
			return err
		}
		return tx.Set(docstore.UserPreferences, uid, docstore.Fields{
			fieldCategories: slices.Clone(core.DefaultCategories),
			fieldSources:    slices.Clone(core.DefaultSources),
		}, false)
	})
}

// Expenses returns the mirrored expenses, newest first.
func (t *Transactions) Expenses() []core.Expense {
	return t.expenses.Items()
}

// Incomes returns the mirrored incomes, newest first.
func (t *Transactions) Incomes() []core.Income {
	return t.incomes.Items()
}

// Preferences returns the user's lists, or the defaults before the first
// snapshot and after Stop.
func (t *Transactions) Preferences() core.Preferences {
	if p, ok := t.prefs.Get(prefsKey); ok {
		return p
	}
	return defaultPrefs()
}

// Versions identify the expense and income snapshots currently mirrored.
func (t *Transactions) Versions() (expenses, incomes uint64) {
	return t.expenses.Version(), t.incomes.Version()
}

func (t *Transactions) AddExpense(ctx context.Context, in ExpenseInput) (string, error) {
	fields := docstore.Fields{
		fieldTitle:    in.Title,
		fieldAmount:   in.Amount.String(),
		fieldCategory: in.Category,
		fieldDate:     dateOrServer(in.Date),
	}
	return addDoc(ctx, &t.base, t.expenses, docstore.Expenses, fields)
}

func (t *Transactions) UpdateExpense(ctx context.Context, id string, p ExpensePatch) error {
	fields := docstore.Fields{}
	if p.Title != nil {
		fields[fieldTitle] = *p.Title
	}
	if p.Amount != nil {
		fields[fieldAmount] = p.Amount.String()
	}
	if p.Category != nil {
		fields[fieldCategory] = *p.Category
	}
	if p.Date != nil {
		fields[fieldDate] = dateOrServer(*p.Date)
	}
	return updateDoc(ctx, &t.base, t.expenses, docstore.Expenses, id, fields, func(e core.Expense) bool {
		return (p.Title == nil || e.Title == *p.Title) &&
			(p.Amount == nil || e.Amount.Equal(*p.Amount)) &&
			(p.Category == nil || e.Category == *p.Category) &&
			(p.Date == nil || p.Date.IsZero() || e.Date.Equal(*p.Date))
	})
}

func (t *Transactions) DeleteExpense(ctx context.Context, id string) error {
	return deleteDoc(ctx, &t.base, t.expenses, docstore.Expenses, id)
}

func (t *Transactions) AddIncome(ctx context.Context, in IncomeInput) (string, error) {
	fields := docstore.Fields{
		fieldTitle:  in.Title,
		fieldAmount: in.Amount.String(),
		fieldSource: in.Source,
		fieldDate:   dateOrServer(in.Date),
	}
	return addDoc(ctx, &t.base, t.incomes, docstore.Incomes, fields)
}

func (t *Transactions) UpdateIncome(ctx context.Context, id string, p IncomePatch) error {
	fields := docstore.Fields{}
	if p.Title != nil {
		fields[fieldTitle] = *p.Title
	}
	if p.Amount != nil {
		fields[fieldAmount] = p.Amount.String()
	}
	if p.Source != nil {
		fields[fieldSource] = *p.Source
	}
	if p.Date != nil {
		fields[fieldDate] = dateOrServer(*p.Date)
	}
	return updateDoc(ctx, &t.base, t.incomes, docstore.Incomes, id, fields, func(i core.Income) bool {
		return (p.Title == nil || i.Title == *p.Title) &&
			(p.Amount == nil || i.Amount.Equal(*p.Amount)) &&
			(p.Source == nil || i.Source == *p.Source) &&
			(p.Date == nil || p.Date.IsZero() || i.Date.Equal(*p.Date))
	})
}

func (t *Transactions) DeleteIncome(ctx context.Context, id string) error {
	return deleteDoc(ctx, &t.base, t.incomes, docstore.Incomes, id)
}

// AddCategory appends name to the user's expense categories. Blank and
// already present names are ignored.
func (t *Transactions) AddCategory(ctx context.Context, name string) error {
	return t.appendPref(ctx, fieldCategories, name, func(p core.Preferences) []string { return p.Categories })
}

// AddSource appends name to the user's income sources.
func (t *Transactions) AddSource(ctx context.Context, name string) error {
	return t.appendPref(ctx, fieldSources, name, func(p core.Preferences) []string { return p.Sources })
}

func (t *Transactions) appendPref(ctx context.Context, field, name string, list func(core.Preferences) []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	uid, err := t.owner()
	if err != nil {
		return err
	}

	added := false
	err = t.store.Batch(ctx, func(tx docstore.Tx) error {
		doc, ok, err := tx.Get(ctx, docstore.UserPreferences, uid)
		if err != nil {
			return err
		}
		current := list(prefsFromDoc(doc, ok))
		if slices.Contains(current, name) {
			return nil
		}
		added = true
		patch := docstore.Fields{}
		if !ok {
			patch[fieldCategories] = slices.Clone(core.DefaultCategories)
			patch[fieldSources] = slices.Clone(core.DefaultSources)
		}
		patch[field] = append(slices.Clone(current), name)
		return tx.Set(docstore.UserPreferences, uid, patch, true)
	})
	if err != nil {
		err = fmt.Errorf("append %s: %w", field, err)
	}
	if !added && err == nil {
		return nil
	}
	return t.wrote(ctx, log.OpUpdate, uid, docstore.UserPreferences, uid, err, func(ctx context.Context) error {
		return t.prefs.WaitFor(ctx, matching(prefsKey, func(p core.Preferences) bool {
			return slices.Contains(list(p), name)
		}))
	})
}

func dateOrServer(d time.Time) any {
	if d.IsZero() {
		return docstore.ServerTimestamp
	}
	return d
}

func defaultPrefs() core.Preferences {
	return core.Preferences{
		Categories: slices.Clone(core.DefaultCategories),
		Sources:    slices.Clone(core.DefaultSources),
	}
}

func prefsFromDoc(doc docstore.Document, exists bool) core.Preferences {
	p := defaultPrefs()
	if !exists {
		return p
	}
	if _, ok := doc.Fields[fieldCategories]; ok {
		p.Categories = doc.Fields.Strings(fieldCategories)
	}
	if _, ok := doc.Fields[fieldSources]; ok {
		p.Sources = doc.Fields.Strings(fieldSources)
	}
	return p
}

func expenseFromDoc(d docstore.Document) core.Expense {
	return core.Expense{
		ID:       d.ID,
		Owner:    d.Fields.String(docstore.OwnerField),
		Title:    d.Fields.String(fieldTitle),
		Amount:   d.Fields.Decimal(fieldAmount),
		Category: d.Fields.String(fieldCategory),
		Date:     d.Fields.Time(fieldDate),
	}
}

func incomeFromDoc(d docstore.Document) core.Income {
	return core.Income{
		ID:     d.ID,
		Owner:  d.Fields.String(docstore.OwnerField),
		Title:  d.Fields.String(fieldTitle),
		Amount: d.Fields.Decimal(fieldAmount),
		Source: d.Fields.String(fieldSource),
		Date:   d.Fields.Time(fieldDate),
	}
}

func sortExpenses(items []core.Expense) {
	core.SortByDateDesc(items, func(e core.Expense) time.Time { return e.Date })
}

func sortIncomes(items []core.Income) {
	core.SortByDateDesc(items, func(i core.Income) time.Time { return i.Date })
}
