// Package client connects to the notification endpoint and keeps the
// connection alive with a bounded reconnection policy: a fixed number of
// attempts at a fixed delay, after which the client stays disconnected.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"financeflow/internal/notify"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	DefaultReconnectionAttempts = 5
	DefaultReconnectionDelay    = 2 * time.Second
)

var ErrReconnectFailed = errors.New("notify client: reconnection attempts exhausted")

// Conn is an open transport.
type Conn interface {
	ReadEvent(ctx context.Context) (notify.Event, error)
	Close() error
}

// Dialer opens a transport by name ("websocket" or "polling").
type Dialer interface {
	Dial(ctx context.Context, transport string) (Conn, error)
}

type Options struct {
	// URL is the server base URL, e.g. https://api.example.com.
	URL    string
	Token  string
	Origin string

	// Transports are tried in order on every connection attempt.
	Transports           []string
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration

	HTTPClient *http.Client
	Dialer     Dialer

	OnEvent       func(notify.Event)
	OnStateChange func(State)
}

// Status is the client's view of its session.
type Status struct {
	SessionID         string
	Transport         string
	State             State
	ReconnectAttempts int
}

type Client struct {
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	closed bool
}

func New(opts Options) (*Client, error) {
	if len(opts.Transports) == 0 {
		opts.Transports = []string{notify.TransportWebSocket, notify.TransportPolling}
	}
	if opts.ReconnectionAttempts < 0 {
		return nil, fmt.Errorf("reconnection attempts must not be negative")
	}
	if opts.ReconnectionAttempts == 0 {
		opts.ReconnectionAttempts = DefaultReconnectionAttempts
	}
	if opts.ReconnectionDelay <= 0 {
		opts.ReconnectionDelay = DefaultReconnectionDelay
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Dialer == nil {
		if opts.URL == "" {
			return nil, fmt.Errorf("server URL is required")
		}
		opts.Dialer = &defaultDialer{
			baseURL: opts.URL,
			token:   opts.Token,
			origin:  opts.Origin,
			http:    opts.HTTPClient,
		}
	}
	return &Client{opts: opts, sleep: sleepContext}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) update(fn func(s *Status)) {
	c.mu.Lock()
	prev := c.status.State
	fn(&c.status)
	state := c.status.State
	c.mu.Unlock()

	if state != prev && c.opts.OnStateChange != nil {
		c.opts.OnStateChange(state)
	}
}

func (c *Client) setState(state State, attempts int) {
	c.update(func(s *Status) {
		s.State = state
		s.ReconnectAttempts = attempts
		if state != StateConnected {
			s.SessionID = ""
			s.Transport = ""
		}
	})
}

// Run connects and keeps the connection alive until Close is called, ctx is
// cancelled, or the reconnection budget is exhausted (ErrReconnectFailed).
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	attempts := 0
	for {
		c.setState(StateConnecting, attempts)

		conn, transport, err := c.connect(ctx)
		if err == nil {
			attempts = 0
			c.update(func(s *Status) {
				s.State = StateConnected
				s.Transport = transport
				s.ReconnectAttempts = 0
			})
			err = c.consume(ctx, conn)
			conn.Close()
			c.emit(notify.EventDisconnect, map[string]string{"reason": errString(err)})
		}

		if ctx.Err() != nil {
			c.setState(StateDisconnected, attempts)
			return c.teardownErr(ctx)
		}

		if attempts >= c.opts.ReconnectionAttempts {
			slog.Warn("Notification reconnection attempts exhausted",
				"attempts", attempts,
				"error", err)
			c.setState(StateDisconnected, attempts)
			return ErrReconnectFailed
		}

		attempts++
		c.setState(StateConnecting, attempts)
		slog.Info("Notification connection lost, retrying",
			"attempt", attempts,
			"max_attempts", c.opts.ReconnectionAttempts,
			"delay", c.opts.ReconnectionDelay,
			"error", err)

		if err := c.sleep(ctx, c.opts.ReconnectionDelay); err != nil {
			c.setState(StateDisconnected, attempts)
			return c.teardownErr(ctx)
		}
	}
}

func (c *Client) teardownErr(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil
	}
	return ctx.Err()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *Client) connect(ctx context.Context) (Conn, string, error) {
	var errs []error
	for _, transport := range c.opts.Transports {
		conn, err := c.opts.Dialer.Dial(ctx, transport)
		if err == nil {
			return conn, transport, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", transport, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", errors.Join(errs...)
}

func (c *Client) consume(ctx context.Context, conn Conn) error {
	for {
		ev, err := conn.ReadEvent(ctx)
		if err != nil {
			return err
		}
		if ev.Type == notify.EventConnect {
			var data notify.ConnectData
			if json.Unmarshal(ev.Data, &data) == nil {
				c.update(func(s *Status) { s.SessionID = data.SessionID })
			}
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

func (c *Client) emit(eventType string, data any) {
	if c.opts.OnEvent == nil {
		return
	}
	if ev, err := notify.NewEvent(eventType, data); err == nil {
		c.opts.OnEvent(ev)
	}
}

// Close tears the connection down without reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
