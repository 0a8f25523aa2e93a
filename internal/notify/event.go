// Package notify is the real-time notification channel: the event contract,
// the per-user session hub and the WebSocket / long-polling endpoint.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"financeflow/internal/core"
)

// Event types pushed to clients.
const (
	EventConnect                 = "connect"
	EventDisconnect              = "disconnect"
	EventRecurringExpenseCreated = "recurring_expense_created"
	EventExpenseCreated          = "expense_created"
	EventExpenseDeleted          = "expense_deleted"
)

// Event is the message delivered on the channel. Data is opaque to the hub.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Scope addresses a publish. An empty SessionID targets every session of the user.
type Scope struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

func UserScope(userID int64) Scope {
	return Scope{UserID: userID}
}

// Publisher delivers events without waiting for the receiver. Implementations
// must treat an absent receiver as a no-op and never replay.
type Publisher interface {
	Publish(ctx context.Context, scope Scope, ev Event) error
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Scope, Event) error { return nil }

// NewEvent builds an event with a fresh id and the current UTC time.
func NewEvent(eventType string, data any) (Event, error) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s event: %w", eventType, err)
		}
		ev.Data = raw
	}
	return ev, nil
}

// ExpenseData is the payload of expense events.
type ExpenseData struct {
	ID          int64      `json:"id"`
	TemplateID  int64      `json:"template_id,omitempty"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	NextDue     *time.Time `json:"next_due,omitempty"`
}

func NewExpenseData(e core.Expense) ExpenseData {
	return ExpenseData{
		ID:          e.ID,
		TemplateID:  e.TemplateID,
		Amount:      e.Amount,
		Category:    e.Category,
		Description: e.Description,
		Date:        e.Date,
	}
}

// Expense converts the payload back to a domain expense owned by userID.
func (d ExpenseData) Expense(userID int64) core.Expense {
	return core.Expense{
		ID:          d.ID,
		UserID:      userID,
		Amount:      d.Amount,
		Category:    d.Category,
		Description: d.Description,
		Date:        d.Date,
		TemplateID:  d.TemplateID,
	}
}

// ExpenseDeletedData is the payload of expense_deleted.
type ExpenseDeletedData struct {
	ID int64 `json:"id"`
}

// ConnectData is sent to a session right after it is established.
type ConnectData struct {
	SessionID string `json:"sid"`
	Transport string `json:"transport"`
}
