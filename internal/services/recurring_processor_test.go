package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/notify"
	"financeflow/internal/storage"
	"financeflow/internal/storage/memory"
)

func newProcessor(store *flakyStore, pub notify.Publisher) *RecurringProcessor {
	return NewRecurringProcessor(store, NewExpenseService(store, pub), pub)
}

func mustTemplate(t *testing.T, s storage.TemplateStore, tpl core.RecurringTemplate) core.RecurringTemplate {
	t.Helper()
	if tpl.StartDate.IsZero() {
		tpl.StartDate = tpl.NextDue
	}
	if tpl.Category == "" {
		tpl.Category = core.CategoryHousing
	}
	created, err := s.CreateTemplate(context.Background(), tpl)
	if err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}
	return created
}

func TestRecurringProcessor_MonthlyTemplate(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	pub := &recordingPublisher{}
	p := newProcessor(store, pub)

	tpl := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 42, Amount: core.Money{Cents: 5000}, Description: "Rent",
		Interval: core.Monthly, NextDue: date(2024, 1, 1), Active: true,
	})

	firing := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := p.ProcessDue(ctx, firing)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if res.Created != 1 || res.Failed != 0 || res.Checked != 1 {
		t.Fatalf("ProcessDue() = %+v, want 1 created", res)
	}

	expenses, _ := store.ListExpenses(ctx, 42, storage.ExpenseFilter{})
	if len(expenses) != 1 {
		t.Fatalf("got %d expenses, want 1", len(expenses))
	}
	e := expenses[0]
	if e.Amount.Cents != 5000 || e.Description != "Rent" || e.TemplateID != tpl.ID || !e.Date.Equal(firing) {
		t.Errorf("unexpected expense %+v", e)
	}

	got, _ := store.GetTemplate(ctx, 42, tpl.ID)
	if !got.NextDue.Equal(date(2024, 2, 1)) {
		t.Errorf("NextDue = %v, want 2024-02-01", got.NextDue)
	}

	events := pub.all()
	var recurring []published
	for _, ev := range events {
		if ev.event.Type == notify.EventRecurringExpenseCreated {
			recurring = append(recurring, ev)
		}
	}
	if len(recurring) != 1 {
		t.Fatalf("got %d recurring events, want 1", len(recurring))
	}
	if recurring[0].scope.UserID != 42 {
		t.Errorf("event scope = %+v, want user 42", recurring[0].scope)
	}
	var data notify.ExpenseData
	if err := json.Unmarshal(recurring[0].event.Data, &data); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	if data.ID != e.ID || data.NextDue == nil || !data.NextDue.Equal(date(2024, 2, 1)) {
		t.Errorf("event data = %+v", data)
	}
}

func TestRecurringProcessor_SecondFiringSameDayCreatesNothing(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	p := newProcessor(store, nil)

	mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Coffee",
		Interval: core.Daily, NextDue: date(2024, 1, 1), Active: true,
	})

	now := date(2024, 1, 1).Add(time.Hour)
	if res, _ := p.ProcessDue(ctx, now); res.Created != 1 {
		t.Fatalf("first pass created %d, want 1", res.Created)
	}
	if res, _ := p.ProcessDue(ctx, now); res.Created != 0 {
		t.Fatalf("second pass created %d, want 0", res.Created)
	}
}

func TestRecurringProcessor_SkipsFutureAndInactive(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	p := newProcessor(store, nil)
	now := date(2024, 6, 1)

	future := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Future",
		Interval: core.Weekly, NextDue: now.Add(time.Minute), Active: true,
	})
	inactive := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Paused",
		Interval: core.Weekly, NextDue: now.AddDate(0, 0, -1), Active: false,
	})

	res, err := p.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if res.Created != 0 {
		t.Fatalf("created %d, want 0", res.Created)
	}
	for _, tpl := range []core.RecurringTemplate{future, inactive} {
		got, _ := store.GetTemplate(ctx, 1, tpl.ID)
		if !got.NextDue.Equal(tpl.NextDue) {
			t.Errorf("%s: NextDue changed to %v", tpl.Description, got.NextDue)
		}
	}
}

func TestRecurringProcessor_FailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New(), failExpenseFor: "Broken"}
	pub := &recordingPublisher{}
	p := newProcessor(store, pub)
	now := date(2024, 3, 1)

	broken := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Broken",
		Interval: core.Monthly, NextDue: now, Active: true,
	})
	healthy := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 2, Amount: core.Money{Cents: 200}, Description: "Healthy",
		Interval: core.Monthly, NextDue: now, Active: true,
	})

	res, err := p.ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if res.Created != 1 || res.Failed != 1 {
		t.Fatalf("ProcessDue() = %+v, want 1 created and 1 failed", res)
	}

	got, _ := store.GetTemplate(ctx, 1, broken.ID)
	if !got.NextDue.Equal(now) {
		t.Errorf("failed template advanced to %v", got.NextDue)
	}
	got, _ = store.GetTemplate(ctx, 2, healthy.ID)
	if !got.NextDue.Equal(date(2024, 4, 1)) {
		t.Errorf("healthy template NextDue = %v, want 2024-04-01", got.NextDue)
	}
	if n := len(pub.all()); n != 1 {
		t.Errorf("published %d events, want 1", n)
	}
}

func TestRecurringProcessor_AdvanceFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	now := date(2024, 3, 1)
	tpl := mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Gym",
		Interval: core.Monthly, NextDue: now, Active: true,
	})
	store.failAdvanceFor = tpl.ID

	res, err := newProcessor(store, nil).ProcessDue(ctx, now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("created %d, want 1", res.Created)
	}
	got, _ := store.GetTemplate(ctx, 1, tpl.ID)
	if !got.NextDue.Equal(now) {
		t.Errorf("NextDue = %v, want unchanged", got.NextDue)
	}
}

func TestRecurringProcessor_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	pub := &recordingPublisher{err: errors.New("broker down")}
	now := date(2024, 3, 1)
	mustTemplate(t, store, core.RecurringTemplate{
		UserID: 1, Amount: core.Money{Cents: 100}, Description: "Gym",
		Interval: core.Monthly, NextDue: now, Active: true,
	})

	res, err := newProcessor(store, pub).ProcessDue(ctx, now)
	if err != nil || res.Created != 1 {
		t.Fatalf("ProcessDue() = %+v, %v", res, err)
	}
}

type failingLister struct {
	*memory.Store
}

func (failingLister) ListDueTemplates(context.Context, time.Time) ([]core.RecurringTemplate, error) {
	return nil, errBroken
}

func TestRecurringProcessor_ListFailure(t *testing.T) {
	store := failingLister{Store: memory.New()}
	p := NewRecurringProcessor(store, NewExpenseService(store, nil), nil)
	if _, err := p.ProcessDue(context.Background(), time.Now()); !errors.Is(err, errBroken) {
		t.Fatalf("ProcessDue() error = %v, want errBroken", err)
	}
}

func TestRecurringProcessor_NotInitialized(t *testing.T) {
	p := NewRecurringProcessor(nil, nil, nil)
	if _, err := p.ProcessDue(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for uninitialized processor")
	}
}
