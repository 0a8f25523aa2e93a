package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/storage"
)

const maxListLimit = 1000

// parseExpenseFilter reads from, to, category and limit from the query.
func parseExpenseFilter(r *http.Request) (storage.ExpenseFilter, error) {
	q := r.URL.Query()
	var f storage.ExpenseFilter
	var err error

	if f.From, err = parseDate(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		return f, err
	}
	if c := strings.TrimSpace(q.Get("category")); c != "" {
		f.Category = core.NormalizeCategory(c)
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: invalid limit %q", errBadRequest, v)
		}
		f.Limit = min(n, maxListLimit)
	}
	return f, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	filter, err := parseExpenseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	expenses, err := s.store.ListExpenses(r.Context(), userID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateExpense saves an expense. A blank category is filled in by
// the categorizer when one is configured.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.toExpense(userID(r), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e.Category == "" && s.categorizer != nil && strings.TrimSpace(e.Description) != "" {
		e.Category = s.categorizer.Categorize(r.Context(), e.Description).Category
	}

	saved, err := s.expenses.CreateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		applog.NewFields().
			WithComponent(applog.ComponentExpense).
			WithOperation(applog.OpCreate).
			WithExpense(saved.ID, saved.TemplateID, saved.Amount.Cents, saved.Category).
			Args()...)
	writeJSON(w, http.StatusCreated, newExpenseResponse(saved))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.store.GetExpense(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cur, err := s.store.GetExpense(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := req.toExpense(cur.UserID, cur.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e.ID = cur.ID
	e.TemplateID = cur.TemplateID

	updated, err := s.expenses.UpdateExpense(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), userID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldExpenseID, id)
	w.WriteHeader(http.StatusNoContent)
}
