package chanstate

import (
	"errors"
	"fmt"
)

// State names a channel-lifecycle failure discriminant (spec §7).
type State string

const (
	HandshakeTimeout     State = "handshake_timeout"
	ConnectionRejected   State = "connection_rejected"
	ReconnectTimeout     State = "reconnect_timeout"
	DisconnectAckTimeout State = "disconnect_ack_timeout"
	DisconnectionFailed  State = "disconnection_failed"
)

// Error is a structured channel-lifecycle error, comparable by State
// via errors.Is without depending on pointer identity, mirroring the
// teacher's device.ConnectionError shape.
type Error struct {
	State State
	Msg   string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare *Error values by State alone.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.State == t.State
}

// ErrNotConnected is returned by operations attempted on a channel
// that has not completed its handshake or has already torn down.
var ErrNotConnected = errors.New("chanstate: not connected")

// ErrDestroyed marks operations attempted after the channel has been
// removed from its owning Connection.
var ErrDestroyed = errors.New("chanstate: destroyed")
