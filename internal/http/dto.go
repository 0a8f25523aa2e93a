package http

import (
	"fmt"
	"time"

	"financeflow/internal/core"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type expenseRequest struct {
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
}

// toExpense builds the domain value. A missing date means today.
func (req expenseRequest) toExpense(userID int64, now time.Time) (core.Expense, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	if date.IsZero() {
		date = now.UTC()
	}
	return core.Expense{
		UserID:      userID,
		Amount:      req.Amount,
		Category:    core.NormalizeCategory(req.Category),
		Description: req.Description,
		Date:        date,
	}, nil
}

type expenseResponse struct {
	ID          int64      `json:"id"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	Recurring   bool       `json:"recurring"`
	TemplateID  int64      `json:"template_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
		Recurring:   e.TemplateID != 0,
		TemplateID:  e.TemplateID,
		CreatedAt:   e.CreatedAt,
	}
}

type templateRequest struct {
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Interval    string     `json:"interval"`
	StartDate   string     `json:"start_date"`
	Active      *bool      `json:"active"`
}

// toTemplate builds the domain value. Active defaults to true.
func (req templateRequest) toTemplate(userID int64) (core.RecurringTemplate, error) {
	interval, err := core.ParseInterval(req.Interval)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	if start.IsZero() {
		return core.RecurringTemplate{}, fmt.Errorf("start_date is required: %w", core.ErrInvalidDate)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return core.RecurringTemplate{
		UserID:      userID,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		Interval:    interval,
		StartDate:   start,
		Active:      active,
	}, nil
}

type templateResponse struct {
	ID          int64         `json:"id"`
	Amount      core.Money    `json:"amount"`
	Category    string        `json:"category"`
	Description string        `json:"description"`
	Interval    core.Interval `json:"interval"`
	StartDate   time.Time     `json:"start_date"`
	NextDue     time.Time     `json:"next_due"`
	Active      bool          `json:"active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func newTemplateResponse(t core.RecurringTemplate) templateResponse {
	return templateResponse{
		ID:          t.ID,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Interval:    t.Interval,
		StartDate:   t.StartDate,
		NextDue:     t.NextDue,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type categorizeRequest struct {
	Description string `json:"description"`
}
