package amqp

import (
	"encoding/json"
	"fmt"

	"financeflow/internal/notify"
)

// EventMessage is the wire form of a scoped notification event. The event
// keeps its own ID and timestamp so consumers can de-duplicate.
type EventMessage struct {
	UserID    int64        `json:"user_id"`
	SessionID string       `json:"session_id,omitempty"`
	Event     notify.Event `json:"event"`
}

func NewEventMessage(scope notify.Scope, ev notify.Event) *EventMessage {
	return &EventMessage{
		UserID:    scope.UserID,
		SessionID: scope.SessionID,
		Event:     ev,
	}
}

func (m *EventMessage) Scope() notify.Scope {
	return notify.Scope{UserID: m.UserID, SessionID: m.SessionID}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("event message without user id")
	}
	if msg.Event.Type == "" {
		return nil, fmt.Errorf("event message without event type")
	}
	return &msg, nil
}
