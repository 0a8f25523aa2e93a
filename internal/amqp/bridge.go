package amqp

import (
	"context"
	"log/slog"

	"financeflow/internal/notify"
)

// Deliverer hands an event to the sessions connected to this process.
type Deliverer interface {
	Deliver(scope notify.Scope, ev notify.Event) int
}

// Bridge connects a local hub to the exchange so that events published by
// any process reach sessions connected to any other. Publish goes through
// the broker; events come back through the consumer and are delivered
// locally. When the broker is unreachable, events are delivered locally only.
type Bridge struct {
	remote  notify.Publisher
	local   Deliverer
	consume func(ctx context.Context, handler EventHandler) error
}

var _ notify.Publisher = (*Bridge)(nil)

func NewBridge(client *Client, local Deliverer) *Bridge {
	return &Bridge{remote: client, local: local, consume: client.ConsumeEvents}
}

// Publish never fails: a broker error falls back to local delivery.
func (b *Bridge) Publish(ctx context.Context, scope notify.Scope, ev notify.Event) error {
	if err := b.remote.Publish(ctx, scope, ev); err != nil {
		slog.WarnContext(ctx, "Broker publish failed, delivering locally",
			"event_type", ev.Type,
			"user_id", scope.UserID,
			"error", err)
		b.local.Deliver(scope, ev)
	}
	return nil
}

// Run consumes the exchange until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	return b.consume(ctx, b.HandleEvent)
}

// HandleEvent delivers a consumed message to local sessions. Absent sessions
// are not an error; the event is simply dropped.
func (b *Bridge) HandleEvent(_ context.Context, msg *EventMessage) error {
	b.local.Deliver(msg.Scope(), msg.Event)
	return nil
}
