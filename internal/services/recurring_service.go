package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/storage"
)

// RecurringService manages the templates owned by a user. Materialization
// is the processor's job; this service only keeps the schedule consistent.
type RecurringService struct {
	store storage.TemplateStore
}

func NewRecurringService(store storage.TemplateStore) *RecurringService {
	return &RecurringService{store: store}
}

// CreateTemplate saves t with its first firing at StartDate.
func (s *RecurringService) CreateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	t.Category = core.NormalizeCategory(t.Category)
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}
	t.NextDue = t.StartDate

	saved, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("save template: %w", err)
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentRecurring).
		WithOperation(applog.OpCreate).
		WithUser(saved.UserID)
	fields[applog.FieldTemplateID] = saved.ID
	slog.InfoContext(ctx, "Recurring template created", append(fields.Args(),
		"interval", saved.Interval,
		"next_due", saved.NextDue)...)
	return saved, nil
}

// UpdateTemplate replaces the owner-editable fields of a template. NextDue is
// kept unless the start date moved, in which case the schedule restarts there.
func (s *RecurringService) UpdateTemplate(ctx context.Context, t core.RecurringTemplate) (core.RecurringTemplate, error) {
	t.Category = core.NormalizeCategory(t.Category)
	if err := t.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}

	cur, err := s.store.GetTemplate(ctx, t.UserID, t.ID)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	t.NextDue = cur.NextDue
	if !t.StartDate.Equal(cur.StartDate) {
		t.NextDue = t.StartDate
	}

	updated, err := s.store.UpdateTemplate(ctx, t)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.RecurringTemplate{}, err
		}
		return core.RecurringTemplate{}, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

func (s *RecurringService) GetTemplate(ctx context.Context, userID, id int64) (core.RecurringTemplate, error) {
	return s.store.GetTemplate(ctx, userID, id)
}

func (s *RecurringService) ListTemplates(ctx context.Context, userID int64) ([]core.RecurringTemplate, error) {
	return s.store.ListTemplates(ctx, userID)
}

func (s *RecurringService) DeleteTemplate(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteTemplate(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete template: %w", err)
	}
	fields := applog.NewFields().
		WithComponent(applog.ComponentRecurring).
		WithOperation(applog.OpDelete).
		WithUser(userID)
	fields[applog.FieldTemplateID] = id
	slog.InfoContext(ctx, "Recurring template deleted", fields.Args()...)
	return nil
}
