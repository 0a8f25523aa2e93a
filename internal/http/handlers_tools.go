package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"financeflow/internal/ai"
	"financeflow/internal/core"
	"financeflow/internal/export"
	applog "financeflow/internal/log"
)

// handleCategorize suggests a category for a description. It answers 200
// with the Other category when the model is unavailable.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, r, core.ErrEmptyDescription)
		return
	}

	p := ai.Prediction{Label: core.CategoryOther, Category: core.CategoryOther}
	if s.categorizer != nil {
		p = s.categorizer.Categorize(r.Context(), req.Description)
	}
	writeJSON(w, http.StatusOK, p)
}

// handleExportCSV streams the user's expenses, honoring the list filters.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
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

	name := export.Filename(s.now().Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, expenses); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "CSV export interrupted",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expenses exported",
		applog.FieldOperation, applog.OpExport,
		"rows", len(expenses))
}
