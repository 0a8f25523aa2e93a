// Package worker mirrors expense events to an external spreadsheet.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/notify"
	"financeflow/internal/sheets"
	"financeflow/internal/storage"
)

// SyncWorker appends created expenses to the mirror and clears deleted ones.
type SyncWorker struct {
	store  storage.ExpenseStore
	mirror sheets.Mirror
	logger *slog.Logger
}

// NewSyncWorker returns a worker. store is optional; when set, created
// expenses are re-read so that the mirror gets the stored values and
// expenses deleted in the meantime are skipped.
func NewSyncWorker(store storage.ExpenseStore, mirror sheets.Mirror) *SyncWorker {
	return &SyncWorker{
		store:  store,
		mirror: mirror,
		logger: applog.Component(applog.ComponentWorker),
	}
}

// HandleEvent implements amqp.EventHandler. Session lifecycle events are ignored.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	switch msg.Event.Type {
	case notify.EventExpenseCreated, notify.EventRecurringExpenseCreated:
		var data notify.ExpenseData
		if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
			return fmt.Errorf("decode %s event %s: %w", msg.Event.Type, msg.Event.ID, err)
		}
		return w.syncExpense(ctx, data.Expense(msg.UserID))
	case notify.EventExpenseDeleted:
		var data notify.ExpenseDeletedData
		if err := json.Unmarshal(msg.Event.Data, &data); err != nil {
			return fmt.Errorf("decode %s event %s: %w", msg.Event.Type, msg.Event.ID, err)
		}
		return w.deleteExpense(ctx, msg.UserID, data.ID)
	default:
		w.logger.DebugContext(ctx, "Ignoring event",
			applog.FieldEventType, msg.Event.Type,
			applog.FieldUserID, msg.UserID)
		return nil
	}
}

func (w *SyncWorker) syncExpense(ctx context.Context, e core.Expense) error {
	if w.store != nil {
		stored, err := w.store.GetExpense(ctx, e.UserID, e.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			w.logger.InfoContext(ctx, "Expense deleted before sync, skipping",
				applog.FieldExpenseID, e.ID,
				applog.FieldUserID, e.UserID)
			return nil
		case err != nil:
			return fmt.Errorf("get expense from storage: %w", err)
		default:
			e = stored
		}
	}

	ref, err := w.mirror.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	fields := applog.NewFields().
		WithOperation(applog.OpAppend).
		WithUser(e.UserID).
		WithExpense(e.ID, e.TemplateID, e.Amount.Cents, e.Category)
	w.logger.InfoContext(ctx, "Successfully synced expense", append(fields.Args(), "sheets_ref", ref)...)
	return nil
}

func (w *SyncWorker) deleteExpense(ctx context.Context, userID, id int64) error {
	if err := w.mirror.Delete(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to delete expense from Google Sheets",
			applog.FieldExpenseID, id,
			applog.FieldError, err)
		return fmt.Errorf("delete expense from sheets: %w", err)
	}
	w.logger.InfoContext(ctx, "Successfully deleted expense",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldUserID, userID,
		applog.FieldExpenseID, id)
	return nil
}
