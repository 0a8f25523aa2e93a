package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/notify"
	"financeflow/internal/storage"
)

// ExpenseService orchestrates expense writes and their notifications.
type ExpenseService struct {
	store     storage.ExpenseStore
	publisher notify.Publisher
}

func NewExpenseService(store storage.ExpenseStore, publisher notify.Publisher) *ExpenseService {
	if publisher == nil {
		publisher = notify.Discard
	}
	return &ExpenseService{
		store:     store,
		publisher: publisher,
	}
}

// CreateExpense validates and saves a user-entered expense, then notifies the
// owner's sessions. A failed notification does not fail the request.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.publish(ctx, saved.UserID, notify.EventExpenseCreated, notify.NewExpenseData(saved))
	return saved, nil
}

// CreateFromTemplate materializes one expense from tpl dated at.
func (s *ExpenseService) CreateFromTemplate(ctx context.Context, tpl core.RecurringTemplate, at time.Time) (core.Expense, error) {
	e := core.Expense{
		UserID:      tpl.UserID,
		Amount:      tpl.Amount,
		Category:    tpl.Category,
		Description: tpl.Description,
		Date:        at,
		TemplateID:  tpl.ID,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("template %d: %w", tpl.ID, err)
	}
	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	return saved, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	updated, err := s.store.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	return updated, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete expense: %w", err)
	}
	s.publish(ctx, userID, notify.EventExpenseDeleted, notify.ExpenseDeletedData{ID: id})
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, userID int64, eventType string, data any) {
	ev, err := notify.NewEvent(eventType, data)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build event", "type", eventType, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, notify.UserScope(userID), ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", eventType,
			"user_id", userID,
			"error", err)
	}
}
