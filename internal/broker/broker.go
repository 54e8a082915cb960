package broker

import (
	"context"
	"errors"
)

// ErrClosed is returned when using a connection or subscription that has been closed.
var ErrClosed = errors.New("broker connection closed")

// Credentials identify the user opening a connection.
type Credentials struct {
	Login  string
	Token  string // bearer token, optional
	ConnID string // correlation id sent with the handshake, optional
}

// Frame is a message delivered to a subscription.
type Frame struct {
	Destination string
	Body        []byte
}

// Dialer opens broker connections.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}

// Conn is an open broker connection.
type Conn interface {
	// Send publishes body to destination.
	Send(ctx context.Context, destination string, body []byte) error
	// Subscribe starts delivery of frames published to destination.
	Subscribe(ctx context.Context, destination string) (Subscription, error)
	// Close ends the connection and every subscription on it.
	Close() error
}

// Subscription is a stream of inbound frames.
type Subscription interface {
	// C yields frames in arrival order. It is closed when the subscription ends.
	C() <-chan Frame
	// Err reports why the stream ended. It is nil when the subscription was
	// cancelled locally or is still active.
	Err() error
	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}
