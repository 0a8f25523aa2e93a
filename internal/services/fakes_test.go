package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/notify"
	"financeflow/internal/storage/memory"
)

type published struct {
	scope notify.Scope
	event notify.Event
}

// recordingPublisher captures every event it is given.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, scope notify.Scope, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{scope: scope, event: ev})
	return p.err
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

var errBroken = errors.New("disk on fire")

// flakyStore fails writes for selected descriptions or templates.
type flakyStore struct {
	*memory.Store
	failExpenseFor string
	failAdvanceFor int64
}

func (s *flakyStore) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.Description == s.failExpenseFor {
		return core.Expense{}, errBroken
	}
	return s.Store.CreateExpense(ctx, e)
}

func (s *flakyStore) AdvanceTemplate(ctx context.Context, id int64, prev, next time.Time) error {
	if id == s.failAdvanceFor {
		return errBroken
	}
	return s.Store.AdvanceTemplate(ctx, id, prev, next)
}
