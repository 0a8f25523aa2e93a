package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Authenticator resolves the user behind a handshake request.
type Authenticator interface {
	Authenticate(r *http.Request) (userID int64, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (int64, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (int64, error) { return f(r) }

// HandlerConfig tunes the endpoint. Zero values take the defaults below.
type HandlerConfig struct {
	AllowedOrigin string
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration
	PollTimeout   time.Duration
	SessionTTL    time.Duration
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 25 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 60 * time.Second
	}
	return c
}

const maxClientMessage = 4096

// AliveMessage is returned by a plain GET on the endpoint.
const AliveMessage = "Finance Flow Server is alive and well!"

// Handler serves the notification endpoint: a WebSocket upgrade when
// requested, HTTP long-polling with ?transport=polling, and a liveness
// message otherwise.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	cfg      HandlerConfig
	upgrader websocket.Upgrader

	mu    sync.Mutex
	polls map[string]*pollSession
}

type pollSession struct {
	session  *Session
	lastSeen time.Time
}

func NewHandler(hub *Hub, auth Authenticator, cfg HandlerConfig) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{
		hub:   hub,
		auth:  auth,
		cfg:   cfg,
		polls: make(map[string]*pollSession),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// originAllowed accepts requests without an Origin header (non-browser
// clients) and requests from the configured origin.
func (h *Handler) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.cfg.AllowedOrigin == "" || origin == h.cfg.AllowedOrigin
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		h.serveWebSocket(w, r)
	case r.URL.Query().Get("transport") == TransportPolling:
		h.servePolling(w, r)
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"message": AliveMessage})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if !h.originAllowed(r) {
		slog.WarnContext(r.Context(), "Rejected notification handshake from foreign origin",
			"origin", r.Header.Get("Origin"))
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
		return 0, false
	}
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		slog.WarnContext(r.Context(), "Rejected unauthenticated notification handshake", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) greet(s *Session) {
	ev, err := NewEvent(EventConnect, ConnectData{SessionID: s.ID, Transport: s.Transport})
	if err != nil {
		return
	}
	h.hub.Deliver(Scope{UserID: s.UserID, SessionID: s.ID}, ev)
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		slog.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	s := h.hub.Register(userID, TransportWebSocket)
	h.greet(s)

	go h.writePump(conn, s)
	h.readPump(conn, s)
}

// readPump consumes control frames and detects the client going away.
func (h *Handler) readPump(conn *websocket.Conn, s *Session) {
	reason := "client closed"
	defer func() {
		h.hub.Unregister(s, reason)
		conn.Close()
	}()

	deadline := h.cfg.PingInterval + h.cfg.PongTimeout
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				reason = err.Error()
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev := <-s.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.hub.Unregister(s, "write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(s, "ping failed")
				return
			}
		case <-s.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// HandshakeResponse is returned when a polling session opens.
type HandshakeResponse struct {
	SessionID     string `json:"sid"`
	PollTimeoutMS int64  `json:"poll_timeout_ms"`
}

func (h *Handler) servePolling(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	sid := r.URL.Query().Get("sid")
	switch {
	case sid == "" && r.Method == http.MethodGet:
		s := h.hub.Register(userID, TransportPolling)
		h.mu.Lock()
		h.polls[s.ID] = &pollSession{session: s, lastSeen: time.Now()}
		h.mu.Unlock()
		h.greet(s)
		writeJSON(w, http.StatusOK, HandshakeResponse{
			SessionID:     s.ID,
			PollTimeoutMS: h.cfg.PollTimeout.Milliseconds(),
		})
	case sid != "" && r.Method == http.MethodGet:
		h.poll(w, r, userID, sid)
	case sid != "" && r.Method == http.MethodDelete:
		if ps, ok := h.takePoll(userID, sid); ok {
			h.hub.Unregister(ps.session, "client closed")
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *Handler) touch(userID int64, sid string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ps, ok := h.polls[sid]
	if !ok || ps.session.UserID != userID {
		return nil, false
	}
	ps.lastSeen = time.Now()
	return ps.session, true
}

func (h *Handler) takePoll(userID int64, sid string) (*pollSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ps, ok := h.polls[sid]
	if !ok || ps.session.UserID != userID {
		return nil, false
	}
	delete(h.polls, sid)
	return ps, true
}

// poll waits for at least one event, up to PollTimeout, then drains whatever
// else is queued. An empty array means "poll again".
func (h *Handler) poll(w http.ResponseWriter, r *http.Request, userID int64, sid string) {
	s, ok := h.touch(userID, sid)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown session"})
		return
	}
	defer h.touch(userID, sid)

	events := make([]Event, 0, 1)
	timer := time.NewTimer(h.cfg.PollTimeout)
	defer timer.Stop()

	select {
	case ev := <-s.Events():
		events = append(events, ev)
	case <-timer.C:
	case <-s.Done():
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session closed"})
		return
	case <-r.Context().Done():
		return
	}

drain:
	for {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
		default:
			break drain
		}
	}

	writeJSON(w, http.StatusOK, events)
}

// Sweep expires polling sessions idle since before now-SessionTTL and
// returns how many were removed.
func (h *Handler) Sweep(now time.Time) int {
	cutoff := now.Add(-h.cfg.SessionTTL)

	h.mu.Lock()
	var expired []*pollSession
	for id, ps := range h.polls {
		if ps.lastSeen.Before(cutoff) {
			expired = append(expired, ps)
			delete(h.polls, id)
		}
	}
	h.mu.Unlock()

	for _, ps := range expired {
		h.hub.Unregister(ps.session, "poll timeout")
	}
	return len(expired)
}

// RunJanitor sweeps idle polling sessions until ctx is cancelled.
func (h *Handler) RunJanitor(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.SessionTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := h.Sweep(now); n > 0 {
				slog.Debug("Expired idle polling sessions", "count", n)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Debug("Failed to write notification response", "error", err)
	}
}
