// Package storage defines the persistence ports used by the services and the
// HTTP layer. Concrete stores live in the sqlite, postgres and memory
// subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"financeflow/internal/core"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness rule or a guarded update fails.
	ErrConflict = errors.New("conflict")
)

// ExpenseFilter narrows ListExpenses. Zero values mean "no bound".
type ExpenseFilter struct {
	From     time.Time
	To       time.Time
	Category string
	Limit    int
}

// Ports for the persistent store.
type (
	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
		ListExpenses(ctx context.Context, userID int64, f ExpenseFilter) ([]core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, userID, id int64) error
	}

	TemplateStore interface {
		CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error)
		GetTemplate(ctx context.Context, userID, id int64) (core.RecurringTemplate, error)
		ListTemplates(ctx context.Context, userID int64) ([]core.RecurringTemplate, error)
		UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error)
		DeleteTemplate(ctx context.Context, userID, id int64) error

		// ListDueTemplates returns every active template, of any user,
		// whose next-due timestamp is at or before now.
		ListDueTemplates(ctx context.Context, now time.Time) ([]core.RecurringTemplate, error)
		// AdvanceTemplate moves next-due from prev to next. It returns
		// ErrConflict when next-due no longer equals prev.
		AdvanceTemplate(ctx context.Context, id int64, prev, next time.Time) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, email, passwordHash string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
	}

	Store interface {
		ExpenseStore
		TemplateStore
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}
)
