package ports

import "context"

// ConnectionState is the lifecycle state of the shared broker connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionEvent is a transport-level notification raised by a Dialer's client.
type ConnectionEvent string

const (
	EventConnecting   ConnectionEvent = "connecting"
	EventConnected    ConnectionEvent = "connected"
	EventReconnecting ConnectionEvent = "reconnecting"
	EventOffline      ConnectionEvent = "offline"
	EventDisconnected ConnectionEvent = "disconnected"
	EventClosing      ConnectionEvent = "closing"
	EventClosed       ConnectionEvent = "closed"
	EventError        ConnectionEvent = "error"
)

// ConnectionObserver receives transport events. err is set for offline,
// disconnected and error events when the client reports a cause.
type ConnectionObserver func(ev ConnectionEvent, err error)

// Connection is an established broker session.
type Connection interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Dialer opens broker sessions. Credentials and endpoint are bound when the
// dialer is built. Dial blocks until the session is usable, ctx is done, or the
// client gives up.
type Dialer interface {
	Dial(ctx context.Context, observe ConnectionObserver) (Connection, error)
}
