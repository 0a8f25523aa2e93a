package amqp

import (
	"context"
	"errors"
	"testing"

	"financeflow/internal/notify"
)

type stubPublisher struct {
	err   error
	calls int
}

func (p *stubPublisher) Publish(context.Context, notify.Scope, notify.Event) error {
	p.calls++
	return p.err
}

type recordingDeliverer struct {
	scopes []notify.Scope
}

func (d *recordingDeliverer) Deliver(scope notify.Scope, _ notify.Event) int {
	d.scopes = append(d.scopes, scope)
	return 1
}

func TestBridge_PublishGoesThroughBroker(t *testing.T) {
	remote := &stubPublisher{}
	local := &recordingDeliverer{}
	b := &Bridge{remote: remote, local: local}

	ev, _ := notify.NewEvent(notify.EventExpenseCreated, nil)
	if err := b.Publish(context.Background(), notify.UserScope(3), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if remote.calls != 1 {
		t.Errorf("remote calls = %d, want 1", remote.calls)
	}
	if len(local.scopes) != 0 {
		t.Error("event must reach local sessions through the consumer, not directly")
	}
}

func TestBridge_PublishFallsBackToLocal(t *testing.T) {
	remote := &stubPublisher{err: ErrCircuitOpen}
	local := &recordingDeliverer{}
	b := &Bridge{remote: remote, local: local}

	ev, _ := notify.NewEvent(notify.EventExpenseCreated, nil)
	if err := b.Publish(context.Background(), notify.UserScope(3), ev); err != nil {
		t.Fatalf("Publish() error = %v, want nil", err)
	}
	if len(local.scopes) != 1 || local.scopes[0].UserID != 3 {
		t.Errorf("local deliveries = %+v, want one for user 3", local.scopes)
	}
}

func TestBridge_RunDeliversConsumedEvents(t *testing.T) {
	local := &recordingDeliverer{}
	ev, _ := notify.NewEvent(notify.EventRecurringExpenseCreated, nil)
	msg := NewEventMessage(notify.Scope{UserID: 8, SessionID: "s1"}, ev)

	b := &Bridge{
		remote: &stubPublisher{},
		local:  local,
		consume: func(ctx context.Context, handler EventHandler) error {
			if err := handler(ctx, msg); err != nil {
				return err
			}
			return errors.New("stopped")
		},
	}

	if err := b.Run(context.Background()); err == nil || err.Error() != "stopped" {
		t.Fatalf("Run() error = %v, want stopped", err)
	}
	if len(local.scopes) != 1 || local.scopes[0] != (notify.Scope{UserID: 8, SessionID: "s1"}) {
		t.Errorf("local deliveries = %+v", local.scopes)
	}
}
