// Package stomp speaks STOMP to a SockJS-enabled broker endpoint over its raw
// websocket transport.
package stomp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	gostomp "github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/stompdebug/internal/broker"
)

const (
	contentTypeJSON   = "application/json"
	readLimit         = 1 << 20
	disconnectTimeout = 5 * time.Second
	receiptTimeout    = 3 * time.Second
)

var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Dialer connects to a STOMP broker exposed through a SockJS endpoint such as
// http://localhost:8080/tim-websocket.
type Dialer struct {
	Endpoint  string
	HeartBeat time.Duration // zero disables heart-beating
	Log       *zerolog.Logger
}

// NewDialer builds a dialer for endpoint.
func NewDialer(endpoint string, heartBeat time.Duration, logger *zerolog.Logger) *Dialer {
	return &Dialer{Endpoint: endpoint, HeartBeat: heartBeat, Log: logger}
}

// WebSocketURL maps a SockJS endpoint to its raw websocket URL.
func WebSocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", endpoint)
	}

	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/websocket") {
		path += "/websocket"
	}
	u.Path = path
	return u.String(), nil
}

// Dial implements broker.Dialer.
func (d *Dialer) Dial(ctx context.Context, creds broker.Credentials) (broker.Conn, error) {
	wsURL, err := WebSocketURL(d.Endpoint)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(wsURL)

	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: subprotocols,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	ws.SetReadLimit(readLimit)

	// The net.Conn adapter lives as long as the connection, not the dial.
	connCtx, cancel := context.WithCancel(context.Background())
	nc := websocket.NetConn(connCtx, ws, websocket.MessageText)

	opts := []func(*gostomp.Conn) error{
		gostomp.ConnOpt.Host(u.Hostname()),
		gostomp.ConnOpt.HeartBeat(d.HeartBeat, d.HeartBeat),
		gostomp.ConnOpt.DisconnectReceiptTimeout(receiptTimeout),
		gostomp.ConnOpt.UnsubscribeReceiptTimeout(receiptTimeout),
		gostomp.ConnOpt.Logger(newLogAdapter(d.Log)),
	}
	if creds.Login != "" {
		opts = append(opts, gostomp.ConnOpt.Login(creds.Login, ""))
	}
	if creds.Token != "" {
		opts = append(opts, gostomp.ConnOpt.Header("Authorization", "Bearer "+creds.Token))
	}
	if creds.ConnID != "" {
		opts = append(opts, gostomp.ConnOpt.Header("client-id", creds.ConnID))
	}

	type result struct {
		sc  *gostomp.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		sc, err := gostomp.Connect(nc, opts...)
		done <- result{sc: sc, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			_ = ws.Close(websocket.StatusProtocolError, "stomp handshake failed")
			return nil, fmt.Errorf("stomp connect: %w", r.err)
		}
		if d.Log != nil {
			d.Log.Debug().
				Str("url", wsURL).
				Str("version", string(r.sc.Version())).
				Str("conn_id", creds.ConnID).
				Msg("stomp connected")
		}
		return &conn{sc: r.sc, ws: ws, cancel: cancel, subs: make(map[*subscription]struct{})}, nil
	case <-ctx.Done():
		cancel()
		_ = ws.Close(websocket.StatusGoingAway, "dial cancelled")
		return nil, ctx.Err()
	}
}

type conn struct {
	sc     *gostomp.Conn
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[*subscription]struct{}
}

func (c *conn) Send(ctx context.Context, destination string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isClosed() {
		return broker.ErrClosed
	}
	if err := c.sc.Send(destination, contentTypeJSON, body); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

func (c *conn) Subscribe(ctx context.Context, destination string) (broker.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, broker.ErrClosed
	}

	inner, err := c.sc.Subscribe(destination, gostomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}

	sub := &subscription{
		conn:  c,
		inner: inner,
		out:   make(chan broker.Frame),
		done:  make(chan struct{}),
	}
	c.subs[sub] = struct{}{}
	go sub.pump()
	return sub, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscription, 0, len(c.subs))
	for sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	disconnected := make(chan error, 1)
	go func() { disconnected <- c.sc.Disconnect() }()

	var err error
	select {
	case err = <-disconnected:
	case <-time.After(disconnectTimeout):
		err = errors.New("stomp disconnect timed out")
	}

	c.cancel()
	_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	// The library closes the socket itself after the DISCONNECT receipt; a
	// peer that hangs up first leaves it already closed.
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("stomp disconnect: %w", err)
	}
	return nil
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) forget(sub *subscription) {
	c.mu.Lock()
	delete(c.subs, sub)
	c.mu.Unlock()
}

type subscription struct {
	conn  *conn
	inner *gostomp.Subscription
	out   chan broker.Frame

	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *subscription) C() <-chan broker.Frame { return s.out }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Unsubscribe() error {
	s.stop()
	s.conn.forget(s)
	if s.conn.isClosed() {
		return nil
	}
	if err := s.inner.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// pump copies library messages onto the subscription stream until the
// subscription is stopped or the library ends it.
func (s *subscription) pump() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			s.drain()
			return
		case msg, ok := <-s.inner.C:
			if !ok {
				select {
				case <-s.done:
				default:
					s.fail(broker.ErrClosed)
				}
				return
			}
			if msg.Err != nil {
				select {
				case <-s.done:
				default:
					s.fail(msg.Err)
				}
				return
			}

			select {
			case s.out <- broker.Frame{Destination: msg.Destination, Body: msg.Body}:
			case <-s.done:
				s.drain()
				return
			}
		}
	}
}

// drain keeps the library's delivery channel moving after a local stop so a
// pending MESSAGE never stalls the connection's reader. The library closes the
// channel once the unsubscribe or disconnect completes.
func (s *subscription) drain() {
	go func() {
		for range s.inner.C {
		}
	}()
}
