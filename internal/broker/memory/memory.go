package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vovakirdan/stompdebug/internal/broker"
)

const subscriptionBuffer = 64

// Publish is a frame sent by a client, as seen by the broker.
type Publish struct {
	Login       string
	Destination string
	Body        []byte
}

// Broker is an in-process message relay. Frames sent to "/app/<name>" are
// delivered to subscribers of "/topic/<name>"; any other destination is
// delivered as-is.
type Broker struct {
	mu        sync.Mutex
	subs      map[string]map[*subscription]struct{}
	published []Publish
	dials     []broker.Credentials
	dialErr   error
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

// FailDials makes subsequent Dial calls return err. A nil err restores dialing.
func (b *Broker) FailDials(err error) {
	b.mu.Lock()
	b.dialErr = err
	b.mu.Unlock()
}

// Dial implements broker.Dialer.
func (b *Broker) Dial(ctx context.Context, creds broker.Credentials) (broker.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	b.dials = append(b.dials, creds)
	return &conn{broker: b, login: creds.Login, subs: make(map[*subscription]struct{})}, nil
}

// Published returns every frame sent so far, in order.
func (b *Broker) Published() []Publish {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Publish, len(b.published))
	copy(out, b.published)
	return out
}

// Dials returns the credentials of every successful dial, in order.
func (b *Broker) Dials() []broker.Credentials {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.Credentials, len(b.dials))
	copy(out, b.dials)
	return out
}

// Subscribers returns the number of live subscriptions on destination.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[destination])
}

// Deliver pushes body to every subscriber of topic, as if a server had published it.
func (b *Broker) Deliver(topic string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliverLocked(topic, body)
}

// Drop ends every subscription of login's connections with err, simulating a
// transport failure.
func (b *Broker) Drop(login string, err error) {
	b.mu.Lock()
	var victims []*subscription
	for _, set := range b.subs {
		for sub := range set {
			if sub.conn.login == login {
				victims = append(victims, sub)
			}
		}
	}
	b.mu.Unlock()

	for _, sub := range victims {
		sub.end(err)
	}
}

func (b *Broker) publish(login, destination string, body []byte) {
	payload := append([]byte(nil), body...)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, Publish{Login: login, Destination: destination, Body: payload})
	b.deliverLocked(route(destination), payload)
}

func (b *Broker) deliverLocked(topic string, body []byte) {
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- broker.Frame{Destination: topic, Body: body}:
		default:
			// slow consumer; the frame is dropped like an overflowing relay would
		}
	}
}

func (b *Broker) add(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.destination]
	if !ok {
		set = make(map[*subscription]struct{})
		b.subs[sub.destination] = set
	}
	set[sub] = struct{}{}
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.destination]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.destination)
		}
	}
}

func route(destination string) string {
	if name, ok := strings.CutPrefix(destination, "/app/"); ok {
		return "/topic/" + name
	}
	return destination
}

type conn struct {
	broker *Broker
	login  string

	mu     sync.Mutex
	closed bool
	subs   map[*subscription]struct{}
}

func (c *conn) Send(ctx context.Context, destination string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return broker.ErrClosed
	}
	c.broker.publish(c.login, destination, body)
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
	sub := &subscription{
		conn:        c,
		destination: destination,
		ch:          make(chan broker.Frame, subscriptionBuffer),
	}
	c.subs[sub] = struct{}{}
	c.broker.add(sub)
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
		sub.end(nil)
	}
	return nil
}

type subscription struct {
	conn        *conn
	destination string
	ch          chan broker.Frame

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *subscription) C() <-chan broker.Frame { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Unsubscribe() error {
	s.end(nil)
	return nil
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		// Detach from the broker first so no delivery races the close below.
		s.conn.broker.remove(s)
		s.conn.mu.Lock()
		delete(s.conn.subs, s)
		s.conn.mu.Unlock()

		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}
