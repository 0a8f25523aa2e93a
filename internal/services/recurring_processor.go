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

// RecurringProcessor materializes expenses from due recurring templates.
type RecurringProcessor struct {
	templates storage.TemplateStore
	expenses  *ExpenseService
	publisher notify.Publisher
}

// ProcessResult summarizes one pass.
type ProcessResult struct {
	Checked int
	Created int
	Failed  int
}

func NewRecurringProcessor(templates storage.TemplateStore, expenses *ExpenseService, publisher notify.Publisher) *RecurringProcessor {
	if publisher == nil {
		publisher = notify.Discard
	}
	return &RecurringProcessor{
		templates: templates,
		expenses:  expenses,
		publisher: publisher,
	}
}

// ProcessDue creates one expense for every active template due at now and
// advances each template by one interval. Failures are logged per template
// and never stop the pass; only a failure to list due templates is returned.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (ProcessResult, error) {
	if p.templates == nil || p.expenses == nil {
		return ProcessResult{}, fmt.Errorf("processor not properly initialized")
	}

	due, err := p.templates.ListDueTemplates(ctx, now)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to list due recurring templates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"due", len(due),
		"processing_time", now.Format(time.RFC3339))

	result := ProcessResult{Checked: len(due)}
	for _, tpl := range due {
		if !tpl.IsDue(now) {
			continue
		}
		if err := p.processTemplate(ctx, tpl, now); err != nil {
			result.Failed++
			slog.ErrorContext(ctx, "Failed to create expense from recurring template",
				"template_id", tpl.ID,
				"user_id", tpl.UserID,
				"description", tpl.Description,
				"error", err)
			continue
		}
		result.Created++
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"created", result.Created,
		"failed", result.Failed,
		"total_checked", result.Checked)

	return result, nil
}

func (p *RecurringProcessor) processTemplate(ctx context.Context, tpl core.RecurringTemplate, now time.Time) error {
	next, err := NextDue(tpl)
	if err != nil {
		return err
	}

	expense, err := p.expenses.CreateFromTemplate(ctx, tpl, now)
	if err != nil {
		return err
	}

	if err := p.templates.AdvanceTemplate(ctx, tpl.ID, tpl.NextDue, next); err != nil {
		// The expense exists; report it and leave the schedule as the store has it.
		if errors.Is(err, storage.ErrConflict) {
			slog.WarnContext(ctx, "Template changed during processing, next due not advanced",
				"template_id", tpl.ID)
		} else {
			slog.ErrorContext(ctx, "Failed to advance next due",
				"template_id", tpl.ID,
				"next_due", next,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Created expense from recurring template",
		"template_id", tpl.ID,
		"expense_id", expense.ID,
		"amount_cents", tpl.Amount.Cents,
		"interval", tpl.Interval,
		"next_due", next.Format(time.RFC3339))

	data := notify.NewExpenseData(expense)
	data.NextDue = &next
	ev, err := notify.NewEvent(notify.EventRecurringExpenseCreated, data)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to build event", "template_id", tpl.ID, "error", err)
		return nil
	}
	if err := p.publisher.Publish(ctx, notify.UserScope(tpl.UserID), ev); err != nil {
		slog.WarnContext(ctx, "Failed to publish recurring expense event",
			"template_id", tpl.ID,
			"user_id", tpl.UserID,
			"error", err)
	}
	return nil
}
