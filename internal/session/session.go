// Package session drives one user's connection to the messaging broker:
// presence updates, direct messages and delivery of inbound frames to the
// message log.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/stompdebug/internal/broker"
	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/utils"
)

// State is the connection state of a session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Renderer displays messages to the user.
type Renderer interface {
	Display(msg proto.Message)
}

// TokenIssuer mints a bearer token for the handshake.
type TokenIssuer interface {
	Issue(userID, fullName string) (string, error)
}

// Identity is who the session speaks as.
type Identity struct {
	UserID   string
	FullName string
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State    State
	Identity Identity
	ConnID   string
}

// Session is the connection controller. It is safe for concurrent use.
type Session struct {
	dialer broker.Dialer
	render Renderer
	tokens TokenIssuer
	log    *zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	identity Identity
	active   *connection
}

// connection is valid from a successful Connect until Disconnect or loss.
type connection struct {
	id   string
	conn broker.Conn
	subs []broker.Subscription
	done chan struct{} // closed once the session stops owning the connection
	wg   sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithTokenIssuer attaches a bearer token to every dial.
func WithTokenIssuer(t TokenIssuer) Option {
	return func(s *Session) { s.tokens = t }
}

// WithClock overrides the time source used to stamp messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a disconnected session.
func New(dialer broker.Dialer, render Renderer, logger *zerolog.Logger, opts ...Option) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Session{
		dialer: dialer,
		render: render,
		log:    logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot reports the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state}
	if s.active != nil {
		snap.Identity = s.identity
		snap.ConnID = s.active.id
	}
	return snap
}

// Connect opens a connection as id, announces the user as available and
// subscribes to presence broadcasts and the user's private topic.
func (s *Session) Connect(ctx context.Context, id Identity) error {
	id.UserID = strings.TrimSpace(id.UserID)
	id.FullName = strings.TrimSpace(id.FullName)
	if id.UserID == "" {
		return ErrInvalidIdentity
	}

	// Held across the dial so two connects cannot race each other.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateConnected {
		return &StateError{Op: "connect", State: s.state, Err: ErrAlreadyConnected}
	}

	creds := broker.Credentials{Login: id.UserID, ConnID: utils.NewID()}
	if s.tokens != nil {
		token, err := s.tokens.Issue(id.UserID, id.FullName)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		creds.Token = token
	}

	conn, err := s.dialer.Dial(ctx, creds)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c := &connection{id: creds.ConnID, conn: conn, done: make(chan struct{})}
	logger := s.log.With().Str("user_id", id.UserID).Str("conn_id", c.id).Logger()

	s.render.Display(proto.SystemMessage("Connected to websocket", s.now()))
	logger.Info().Msg("connected")

	if err := s.publishStatus(ctx, conn, id, proto.StatusAvailable); err != nil {
		s.abort(ctx, c, id, false)
		return fmt.Errorf("publish status: %w", err)
	}

	routes := []struct {
		topic  string
		handle func(broker.Frame) error
	}{
		{topic: proto.StatusTopic, handle: s.receiveStatus},
		{topic: proto.PrivateMessageTopic(id.UserID), handle: s.receiveMessage},
	}
	for _, r := range routes {
		sub, err := conn.Subscribe(ctx, r.topic)
		if err != nil {
			s.abort(ctx, c, id, true)
			return fmt.Errorf("subscribe %s: %w", r.topic, err)
		}
		c.subs = append(c.subs, sub)
		c.wg.Add(1)
		go s.deliver(c, sub, r.topic, r.handle)
		logger.Debug().Str("destination", r.topic).Msg("subscribed")
	}

	s.identity = id
	s.active = c
	s.state = StateConnected
	return nil
}

// abort tears down a connection that never became active. Once AVAILABLE
// went out, peers are told OFFLINE before the close. Caller holds s.mu.
func (s *Session) abort(ctx context.Context, c *connection, id Identity, announced bool) {
	close(c.done)
	if announced {
		if err := s.publishStatus(ctx, c.conn, id, proto.StatusOffline); err != nil {
			s.log.Debug().Err(err).Str("conn_id", c.id).Msg("publish offline on abort")
		}
	}
	if err := c.conn.Close(); err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.id).Msg("close aborted connection")
	}
	c.wg.Wait()
	s.render.Display(proto.SystemMessage("Disconnected from websocket", s.now()))
}

// Disconnect announces the user as offline and closes the connection.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	c := s.active
	if s.state != StateConnected || c == nil {
		s.mu.Unlock()
		return notConnected("disconnect")
	}
	id := s.identity
	s.active = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	close(c.done)

	var errs []error
	if err := s.publishStatus(ctx, c.conn, id, proto.StatusOffline); err != nil {
		errs = append(errs, fmt.Errorf("publish offline status: %w", err))
	}
	// Close ends every subscription along with the transport.
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	c.wg.Wait()

	s.render.Display(proto.SystemMessage("Disconnected from websocket", s.now()))
	s.log.Info().Str("user_id", id.UserID).Str("conn_id", c.id).Msg("disconnected")
	return errors.Join(errs...)
}

// SetAvailable publishes an AVAILABLE presence update.
func (s *Session) SetAvailable(ctx context.Context) error {
	return s.SetStatus(ctx, proto.StatusAvailable)
}

// SetAway publishes an AWAY presence update.
func (s *Session) SetAway(ctx context.Context) error {
	return s.SetStatus(ctx, proto.StatusAway)
}

// SetStatus publishes a presence update with status.
func (s *Session) SetStatus(ctx context.Context, status proto.Status) error {
	c, id, err := s.current("set status")
	if err != nil {
		return err
	}
	return s.publishStatus(ctx, c.conn, id, status)
}

// SendMessage publishes a direct message to recipient and echoes it locally.
// There is no delivery confirmation.
func (s *Session) SendMessage(ctx context.Context, recipient, content string) error {
	c, id, err := s.current("send message")
	if err != nil {
		return err
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrNoRecipient
	}

	msg := proto.NewMessage(id.UserID, recipient, content, s.now())
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	destination := proto.PrivateMessageDestination(recipient)
	if err := c.conn.Send(ctx, destination, body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	s.log.Debug().Str("destination", destination).Msg("message sent")

	s.render.Display(msg)
	return nil
}

func (s *Session) current(op string) (*connection, Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.active == nil {
		return nil, Identity{}, notConnected(op)
	}
	return s.active, s.identity, nil
}

func (s *Session) publishStatus(ctx context.Context, conn broker.Conn, id Identity, status proto.Status) error {
	body, err := json.Marshal(proto.NewUserStatus(id.UserID, id.FullName, status, s.now()))
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := conn.Send(ctx, proto.StatusDestination, body); err != nil {
		return err
	}
	s.log.Debug().Str("user_id", id.UserID).Str("status", string(status)).Msg("status published")
	return nil
}

// deliver feeds one subscription's frames to handle until the stream ends.
func (s *Session) deliver(c *connection, sub broker.Subscription, topic string, handle func(broker.Frame) error) {
	for f := range sub.C() {
		if err := handle(f); err != nil {
			s.log.Warn().Err(err).Str("destination", topic).Msg("skipping undecodable frame")
		}
	}

	lost := true
	select {
	case <-c.done:
		lost = false
	default:
	}
	// Done before handling the loss: connectionLost takes s.mu, which a
	// concurrent abort may hold while waiting on this group.
	c.wg.Done()

	if lost {
		s.connectionLost(c, topic, sub.Err())
	}
}

func (s *Session) connectionLost(c *connection, topic string, cause error) {
	s.mu.Lock()
	if s.active != c {
		s.mu.Unlock()
		return
	}
	s.active = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	close(c.done)
	if err := c.conn.Close(); err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.id).Msg("close lost connection")
	}
	if cause == nil {
		cause = broker.ErrClosed
	}

	s.log.Error().Err(cause).Str("conn_id", c.id).Str("destination", topic).Msg("connection lost")
	s.render.Display(proto.SystemMessage("Connection lost", s.now()))
}

func (s *Session) receiveStatus(f broker.Frame) error {
	var us proto.UserStatus
	if err := json.Unmarshal(f.Body, &us); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	s.render.Display(proto.StatusMessage(us))
	return nil
}

func (s *Session) receiveMessage(f broker.Frame) error {
	var msg proto.Message
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	s.render.Display(msg)
	return nil
}
