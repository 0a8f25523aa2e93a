// Package sheets defines the spreadsheet mirror used by the sync worker.
package sheets

import (
	"context"

	"financeflow/internal/core"
)

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExpenseDeleter removes the mirrored row of an expense. A missing row is not an error.
	ExpenseDeleter interface {
		Delete(ctx context.Context, expenseID int64) error
	}

	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
	}
)
