package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"financeflow/internal/notify"
)

const (
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
)

type defaultDialer struct {
	baseURL string
	token   string
	origin  string
	http    *http.Client
}

func (d *defaultDialer) header() http.Header {
	h := http.Header{}
	if d.token != "" {
		h.Set("Authorization", "Bearer "+d.token)
	}
	if d.origin != "" {
		h.Set("Origin", d.origin)
	}
	return h
}

func (d *defaultDialer) Dial(ctx context.Context, transport string) (Conn, error) {
	switch transport {
	case notify.TransportWebSocket:
		return d.dialWebSocket(ctx)
	case notify.TransportPolling:
		return d.dialPolling(ctx)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

func (d *defaultDialer) dialWebSocket(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	if u.Path == "" {
		u.Path = "/"
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, u.String(), d.header())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
	once sync.Once
}

func (c *wsConn) ReadEvent(ctx context.Context) (notify.Event, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	var ev notify.Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		return notify.Event{}, err
	}
	return ev, nil
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

func (d *defaultDialer) pollURL(sid string) string {
	u := strings.TrimRight(d.baseURL, "/") + "/?transport=" + notify.TransportPolling
	if sid != "" {
		u += "&sid=" + url.QueryEscape(sid)
	}
	return u
}

func (d *defaultDialer) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = d.header()
	return d.http.Do(req)
}

func (d *defaultDialer) dialPolling(ctx context.Context) (Conn, error) {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	resp, err := d.do(hsCtx, http.MethodGet, d.pollURL(""))
	if err != nil {
		return nil, fmt.Errorf("polling handshake: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polling handshake: status %d", resp.StatusCode)
	}

	var hs notify.HandshakeResponse
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, fmt.Errorf("decode polling handshake: %w", err)
	}
	return &pollConn{dialer: d, sid: hs.SessionID}, nil
}

type pollConn struct {
	dialer  *defaultDialer
	sid     string
	pending []notify.Event
}

func (c *pollConn) ReadEvent(ctx context.Context) (notify.Event, error) {
	for len(c.pending) == 0 {
		if err := c.fetch(ctx); err != nil {
			return notify.Event{}, err
		}
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

func (c *pollConn) fetch(ctx context.Context) error {
	resp, err := c.dialer.do(ctx, http.MethodGet, c.dialer.pollURL(c.sid))
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll: status %d", resp.StatusCode)
	}
	var events []notify.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return fmt.Errorf("decode poll: %w", err)
	}
	c.pending = append(c.pending, events...)
	return nil
}

func (c *pollConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.dialer.do(ctx, http.MethodDelete, c.dialer.pollURL(c.sid))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
