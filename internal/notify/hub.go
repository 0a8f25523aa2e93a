package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport names reported in logs and in the connect event.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

const defaultSendBuffer = 16

// Session is one live connection of an authenticated user. It exists only
// while the connection lives; nothing is kept after Unregister.
type Session struct {
	ID          string
	UserID      int64
	Transport   string
	ConnectedAt time.Time

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// Events yields the events addressed to the session.
func (s *Session) Events() <-chan Event { return s.send }

// Done is closed when the session is unregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

// Dropped reports how many events were discarded because the queue was full.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// offer enqueues ev without blocking.
func (s *Session) offer(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Hub is the in-process registry of sessions, keyed by user. It is the
// Publisher used by the API and the trigger when they share the process.
type Hub struct {
	mu         sync.RWMutex
	sessions   map[int64]map[string]*Session
	sendBuffer int
	delivered  atomic.Int64
}

var _ Publisher = (*Hub)(nil)

func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Hub{
		sessions:   make(map[int64]map[string]*Session),
		sendBuffer: sendBuffer,
	}
}

// Register creates a session for userID and logs the connection.
func (h *Hub) Register(userID int64, transport string) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Transport:   transport,
		ConnectedAt: time.Now(),
		send:        make(chan Event, h.sendBuffer),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	byID, ok := h.sessions[userID]
	if !ok {
		byID = make(map[string]*Session)
		h.sessions[userID] = byID
	}
	byID[s.ID] = s
	h.mu.Unlock()

	slog.Info("Notification client connected",
		"session_id", s.ID,
		"user_id", userID,
		"transport", transport)
	return s
}

// Unregister removes s and releases its resources. It is safe to call more than once.
func (h *Hub) Unregister(s *Session, reason string) {
	if s == nil {
		return
	}
	removed := false
	h.mu.Lock()
	if byID, ok := h.sessions[s.UserID]; ok {
		if _, ok := byID[s.ID]; ok {
			delete(byID, s.ID)
			removed = true
		}
		if len(byID) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })

	if removed {
		slog.Info("Notification client disconnected",
			"session_id", s.ID,
			"user_id", s.UserID,
			"transport", s.Transport,
			"reason", reason,
			"dropped_events", s.Dropped(),
			"connected_for", time.Since(s.ConnectedAt).Round(time.Second).String())
	}
}

// Lookup returns the live session with id, if any.
func (h *Hub) Lookup(userID int64, id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[userID][id]
	return s, ok
}

// Deliver hands ev to every session in scope and returns how many accepted
// it. Absent sessions are a no-op; full queues drop the event.
func (h *Hub) Deliver(scope Scope, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byID := h.sessions[scope.UserID]
	if len(byID) == 0 {
		return 0
	}

	n := 0
	for id, s := range byID {
		if scope.SessionID != "" && scope.SessionID != id {
			continue
		}
		if s.offer(ev) {
			n++
		} else {
			slog.Warn("Dropped notification for slow client",
				"session_id", id,
				"user_id", scope.UserID,
				"event_type", ev.Type)
		}
	}
	h.delivered.Add(int64(n))
	return n
}

// Publish implements Publisher. It never blocks and never fails.
func (h *Hub) Publish(_ context.Context, scope Scope, ev Event) error {
	h.Deliver(scope, ev)
	return nil
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Users     int   `json:"users"`
	Sessions  int   `json:"sessions"`
	Delivered int64 `json:"delivered"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := Stats{Users: len(h.sessions), Delivered: h.delivered.Load()}
	for _, byID := range h.sessions {
		st.Sessions += len(byID)
	}
	return st
}

// Close unregisters every session.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Session
	for _, byID := range h.sessions {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.Unregister(s, "server shutdown")
	}
}
