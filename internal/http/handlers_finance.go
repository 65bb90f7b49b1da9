package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lifelog/internal/core"
	"lifelog/internal/providers"
)

type expenseJSON struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

type incomeJSON struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source"`
	Date   string          `json:"date"`
}

// transactionRequest serves both create and update of expenses and incomes;
// Category applies to expenses and Source to incomes.
type transactionRequest struct {
	Title    *string      `json:"title"`
	Amount   *amountValue `json:"amount"`
	Category *string      `json:"category"`
	Source   *string      `json:"source"`
	Date     *string      `json:"date"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type createdResponse struct {
	ID        string `json:"id"`
	Confirmed bool   `json:"confirmed"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	items := s.deps.Transactions.Expenses()
	out := make([]expenseJSON, 0, len(items))
	for _, e := range items {
		if month != "" && !strings.HasPrefix(dayString(e.Date), month) {
			continue
		}
		out = append(out, expenseJSON{ID: e.ID, Title: e.Title, Amount: e.Amount, Category: e.Category, Date: dayString(e.Date)})
	}
	NewResponse().JSON(out).Send(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeNewTransaction(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.deps.Transactions.AddExpense(r.Context(), providers.ExpenseInput{
		Title:    in.title,
		Amount:   in.amount,
		Category: optionalString(in.req.Category),
		Date:     in.date,
	})
	s.created(w, r, id, err)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	amount, date, err := patchValues(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.deps.Transactions.UpdateExpense(r.Context(), r.PathValue("id"), providers.ExpensePatch{
		Title:    sanitizePtr(req.Title),
		Amount:   amount,
		Category: sanitizePtr(req.Category),
		Date:     date,
	})
	s.written(w, r, err)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	s.written(w, r, s.deps.Transactions.DeleteExpense(r.Context(), r.PathValue("id")))
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	items := s.deps.Transactions.Incomes()
	out := make([]incomeJSON, 0, len(items))
	for _, i := range items {
		if month != "" && !strings.HasPrefix(dayString(i.Date), month) {
			continue
		}
		out = append(out, incomeJSON{ID: i.ID, Title: i.Title, Amount: i.Amount, Source: i.Source, Date: dayString(i.Date)})
	}
	NewResponse().JSON(out).Send(w)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeNewTransaction(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.deps.Transactions.AddIncome(r.Context(), providers.IncomeInput{
		Title:  in.title,
		Amount: in.amount,
		Source: optionalString(in.req.Source),
		Date:   in.date,
	})
	s.created(w, r, id, err)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	amount, date, err := patchValues(req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.deps.Transactions.UpdateIncome(r.Context(), r.PathValue("id"), providers.IncomePatch{
		Title:  sanitizePtr(req.Title),
		Amount: amount,
		Source: sanitizePtr(req.Source),
		Date:   date,
	})
	s.written(w, r, err)
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	s.written(w, r, s.deps.Transactions.DeleteIncome(r.Context(), r.PathValue("id")))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.deps.Transactions.Preferences().Categories).Send(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	s.written(w, r, s.deps.Transactions.AddCategory(r.Context(), sanitizeInput(req.Name)))
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(s.deps.Transactions.Preferences().Sources).Send(w)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	s.written(w, r, s.deps.Transactions.AddSource(r.Context(), sanitizeInput(req.Name)))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	t := s.deps.Transactions
	expV, incV := t.Versions()
	NewResponse().JSON(s.dashboard.Get(expV, incV, s.now(), t.Expenses, t.Incomes)).Send(w)
}

type newTransaction struct {
	req    transactionRequest
	title  string
	amount decimal.Decimal
	date   time.Time
}

// decodeNewTransaction validates the fields a new expense or income needs.
func (s *Server) decodeNewTransaction(r *http.Request) (newTransaction, error) {
	var in newTransaction
	if err := DecodeJSON(r, &in.req); err != nil {
		return in, errBadBody
	}
	if in.req.Title == nil || sanitizeInput(*in.req.Title) == "" {
		return in, core.ErrEmptyTitle
	}
	in.title = sanitizeInput(*in.req.Title)
	if in.req.Amount == nil {
		return in, core.ErrInvalidAmount
	}
	amount, err := in.req.Amount.decimal()
	if err != nil {
		return in, err
	}
	in.amount = *amount
	if in.req.Date != nil {
		d, err := parseDayInput(*in.req.Date)
		if err != nil {
			return in, err
		}
		in.date = d
	}
	return in, nil
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return sanitizeInput(*v)
}

func patchValues(req transactionRequest) (*decimal.Decimal, *time.Time, error) {
	amount, err := req.Amount.decimal()
	if err != nil {
		return nil, nil, err
	}
	date, err := parseDatePatch(req.Date)
	if err != nil {
		return nil, nil, err
	}
	return amount, date, nil
}

// created answers a create call with the new document id.
func (s *Server) created(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil && !isUnconfirmed(err) {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(writeStatus(err, http.StatusCreated)).JSON(createdResponse{ID: id, Confirmed: err == nil}).Send(w)
}

// written answers an update or delete call.
func (s *Server) written(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil && !isUnconfirmed(err) {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(writeStatus(err, http.StatusNoContent)).Send(w)
}
