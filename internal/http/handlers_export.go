package http

import (
	"net/http"
	"strings"

	"lifelog/internal/export"
	"lifelog/internal/log"
)

type exportRequest struct {
	// Set is "finance" (expenses and incomes) or "habits" (habits and logs).
	Set string `json:"set"`
}

type exportResponse struct {
	Files []string `json:"files,omitempty"`
	Rows  int      `json:"rows,omitempty"`
}

// tables renders the current mirrors keyed by export kind.
func (s *Server) tables() map[string]export.Table {
	return map[string]export.Table{
		export.KindExpenses:  export.ExpensesTable(s.deps.Transactions.Expenses()),
		export.KindIncomes:   export.IncomesTable(s.deps.Transactions.Incomes()),
		export.KindHabits:    export.HabitsTable(s.deps.Habits.Habits()),
		export.KindHabitLogs: export.HabitLogsTable(s.deps.Habits.Logs()),
	}
}

// handleExportCSV streams one table as a CSV download, e.g.
// /export/expenses.csv.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	kind, ok := strings.CutSuffix(r.PathValue("file"), ".csv")
	if !ok {
		NotFoundError("not found").Send(w)
		return
	}
	table, ok := s.tables()[kind]
	if !ok {
		NotFoundError("unknown export").Send(w)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(kind, s.now())+`"`)
	if err := export.WriteCSV(w, table); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to write CSV",
			log.FieldKind, kind, log.FieldError, err)
	}
}

// handleExportFiles writes a pair of CSV files to the export directory.
func (s *Server) handleExportFiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		ErrorResponse(http.StatusServiceUnavailable, "file export unavailable").Send(w)
		return
	}
	var req exportRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	tables := s.tables()
	var first, second export.File
	switch req.Set {
	case "", "finance":
		first = export.File{Kind: export.KindExpenses, Table: tables[export.KindExpenses]}
		second = export.File{Kind: export.KindIncomes, Table: tables[export.KindIncomes]}
	case "habits":
		first = export.File{Kind: export.KindHabits, Table: tables[export.KindHabits]}
		second = export.File{Kind: export.KindHabitLogs, Table: tables[export.KindHabitLogs]}
	default:
		ValidationError("unknown export set").Send(w)
		return
	}
	paths, err := s.deps.Exporter.WritePair(r.Context(), first, second)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(exportResponse{Files: paths}).Send(w)
}

// handleExportSheets appends every table to the configured spreadsheet.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		ErrorResponse(http.StatusServiceUnavailable, "spreadsheet export not configured").Send(w)
		return
	}
	tables := s.tables()
	files := make([]export.File, 0, len(tables))
	rows := 0
	for _, kind := range []string{export.KindExpenses, export.KindIncomes, export.KindHabits, export.KindHabitLogs} {
		files = append(files, export.File{Kind: kind, Table: tables[kind]})
		rows += tables[kind].Lines()
	}
	if err := export.ToSheets(r.Context(), s.deps.Sheets, files...); err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(exportResponse{Rows: rows}).Send(w)
}
