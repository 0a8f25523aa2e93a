package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financeflow/internal/notify"
)

var errRefused = errors.New("connection refused")

// fakeConn yields events until its channel is closed, then reports a drop.
type fakeConn struct {
	events chan notify.Event
}

func (c *fakeConn) ReadEvent(ctx context.Context) (notify.Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return notify.Event{}, errors.New("connection reset")
		}
		return ev, nil
	case <-ctx.Done():
		return notify.Event{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

// scriptedDialer answers each Dial with the next scripted result. Once the
// script runs out it refuses every dial.
type scriptedDialer struct {
	mu     sync.Mutex
	script []func() (Conn, error)
	dials  []string
}

func (d *scriptedDialer) Dial(_ context.Context, transport string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, transport)
	if len(d.script) == 0 {
		return nil, errRefused
	}
	next := d.script[0]
	d.script = d.script[1:]
	return next()
}

func (d *scriptedDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func dropped() (Conn, error) {
	ch := make(chan notify.Event)
	close(ch)
	return &fakeConn{events: ch}, nil
}

func refused() (Conn, error) { return nil, errRefused }

func newTestClient(t *testing.T, d Dialer, transports ...string) (*Client, *[]time.Duration, *[]State) {
	t.Helper()
	var (
		mu     sync.Mutex
		sleeps []time.Duration
		states []State
	)
	c, err := New(Options{
		Dialer:     d,
		Transports: transports,
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &sleeps, &states
}

func TestDefaults(t *testing.T) {
	c, err := New(Options{URL: "http://localhost:3000"})
	require.NoError(t, err)
	assert.Equal(t, 5, c.opts.ReconnectionAttempts)
	assert.Equal(t, 2*time.Second, c.opts.ReconnectionDelay)
	assert.Equal(t, []string{"websocket", "polling"}, c.opts.Transports)
	assert.Equal(t, StateDisconnected, c.Status().State)
}

func TestReconnectBudgetExhausted(t *testing.T) {
	d := &scriptedDialer{script: []func() (Conn, error){dropped}}
	c, sleeps, states := newTestClient(t, d, "websocket")

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrReconnectFailed)

	// One successful dial, then exactly five reconnection attempts.
	assert.Equal(t, 6, d.count())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, *sleeps)

	st := c.Status()
	assert.Equal(t, StateDisconnected, st.State)
	assert.Equal(t, 5, st.ReconnectAttempts)
	assert.Equal(t, StateDisconnected, (*states)[len(*states)-1])
	assert.Contains(t, *states, StateConnected)
}

func TestReconnectWithinBudget(t *testing.T) {
	events := make(chan notify.Event)
	d := &scriptedDialer{script: []func() (Conn, error){
		dropped,
		refused,
		refused,
		func() (Conn, error) { return &fakeConn{events: events}, nil },
	}}
	c, sleeps, _ := newTestClient(t, d, "websocket")

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return c.Status().State == StateConnected && d.count() == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Status().ReconnectAttempts, "attempt counter resets on success")
	assert.Len(t, *sleeps, 3)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
	assert.Equal(t, StateDisconnected, c.Status().State)
	assert.Equal(t, 4, d.count(), "no reconnect after Close")
}

func TestInitialConnectFailureUsesSameBudget(t *testing.T) {
	d := &scriptedDialer{}
	c, sleeps, _ := newTestClient(t, d, "websocket")

	require.ErrorIs(t, c.Run(context.Background()), ErrReconnectFailed)
	assert.Equal(t, 6, d.count())
	assert.Len(t, *sleeps, 5)
}

func TestFallsBackToPolling(t *testing.T) {
	events := make(chan notify.Event, 1)
	d := &scriptedDialer{script: []func() (Conn, error){
		refused,
		func() (Conn, error) { return &fakeConn{events: events}, nil },
	}}
	c, _, _ := newTestClient(t, d, "websocket", "polling")

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return c.Status().State == StateConnected },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "polling", c.Status().Transport)
	assert.Equal(t, []string{"websocket", "polling"}, d.dials)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestEventsAndSessionID(t *testing.T) {
	events := make(chan notify.Event, 2)
	hello, err := notify.NewEvent(notify.EventConnect, notify.ConnectData{SessionID: "abc", Transport: "websocket"})
	require.NoError(t, err)
	created, err := notify.NewEvent(notify.EventRecurringExpenseCreated, nil)
	require.NoError(t, err)
	events <- hello
	events <- created

	d := &scriptedDialer{script: []func() (Conn, error){
		func() (Conn, error) { return &fakeConn{events: events}, nil },
	}}

	var (
		mu   sync.Mutex
		seen []string
	)
	c, err := New(Options{
		Dialer: d,
		OnEvent: func(ev notify.Event) {
			mu.Lock()
			seen = append(seen, ev.Type)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc", c.Status().SessionID)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{notify.EventConnect, notify.EventRecurringExpenseCreated, notify.EventDisconnect}, seen)
}

func TestCloseBeforeRun(t *testing.T) {
	c, _, _ := newTestClient(t, &scriptedDialer{}, "websocket")
	require.NoError(t, c.Close())
	require.NoError(t, c.Run(context.Background()))
}
