package chanstate

import (
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
)

// Role is the local side's BLE role on this link.
type Role int

const (
	Central Role = iota
	Peripheral
)

func (r Role) String() string {
	if r == Central {
		return "central"
	}
	return "peripheral"
}

// Callbacks is the flattened capability record the owning Connection
// installs at construction time (spec §9 "flatten into a single
// capability record"). Any field may be nil; Channel guards every
// call site.
type Callbacks struct {
	OnConnectionRequest func(p peer.Peer)
	OnConnectionSuccess func(p peer.Peer, role Role)
	// OnConnectionFailed reports a connection-establishment failure
	// (spec §7): err is always a *Error, with State HandshakeTimeout or
	// ConnectionRejected depending on which of §4.4's two failure
	// modes fired.
	OnConnectionFailed  func(p peer.Peer, err error)
	OnConnectionLost    func(p peer.Peer)
	OnConnectionResumed func(p peer.Peer)
	OnMessageReceived   func(m message.Message, role Role)
	OnDataReceived      func(m message.Message, role Role)
	OnDisconnected      func(p peer.Peer)
	// OnDisconnectionFailed reports a failed teardown (spec §7): err is
	// always a *Error, with State DisconnectAckTimeout (remote never
	// acked the disconnection notice) or DisconnectionFailed (the
	// OS-level link teardown itself returned an error).
	OnDisconnectionFailed func(p peer.Peer, err error)
	// Remove is invoked once the channel has fully torn down so the
	// owning Connection can drop it from its channel set.
	Remove func(ch *Channel)
	// ResolveReconnect is consulted by a PERIPHERAL-role channel as
	// soon as it learns the remote's unique_name from a fresh
	// CONNECTION_REQUEST. If it returns an existing channel, that
	// channel is already RECONNECTING under the same unique_name and
	// this inbound link is really its resume, not a new peer (spec
	// §4.8's tie-breaking rule applied symmetrically on this side).
	ResolveReconnect func(uniqueName string) (*Channel, bool)
}
