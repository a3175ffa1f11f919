// Package chanstate implements the per-link state machine described
// in spec §4.4–§4.8: handshake, reliable send/receive, disconnection
// and reconnection for exactly one BLE link. A Channel is owned by
// exactly one Connection (package connection), which multiplexes many
// Channels across simultaneous peers.
package chanstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/internal/timerx"
	"github.com/srg/btcomm/internal/wire"
)

type lifecycleState int

const (
	stateHandshaking lifecycleState = iota
	stateConnected
	stateReconnecting
	stateDisconnecting
	stateDestroyed
)

func (s lifecycleState) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateConnected:
		return "connected"
	case stateReconnecting:
		return "reconnecting"
	case stateDisconnecting:
		return "disconnecting"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Channel is one live (or reconnecting) BLE link to exactly one peer.
type Channel struct {
	role   Role
	log    *logrus.Entry
	cb     Callbacks
	tuning Tuning

	central    gatt.CentralLink
	peripheral gatt.PeripheralLink

	mu    sync.RWMutex
	peer  peer.Peer
	state lifecycleState

	msg  *stream
	data *stream

	handshakeTimer  *timerx.Timer
	reconnectTimer  *timerx.Timer
	disconnectTimer *timerx.Timer

	ctx    context.Context
	cancel context.CancelFunc

	destroyOnce sync.Once
}

func newChannel(role Role, logger *logrus.Logger, cb Callbacks, p peer.Peer, tuning Tuning) *Channel {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		role:   role,
		log:    logger.WithFields(logrus.Fields{"component": "chanstate", "role": role.String()}),
		cb:     cb,
		tuning: tuning,
		peer:   p,
		state:  stateHandshaking,
		ctx:    ctx,
		cancel: cancel,
	}
	c.msg = newStream(c, TextKind)
	c.data = newStream(c, BinaryKind)
	c.handshakeTimer = timerx.New(tuning.HandshakeTimeout, c.onHandshakeTimeout)
	c.reconnectTimer = timerx.New(tuning.ReconnectionTimeout, c.onReconnectTimeout)
	c.disconnectTimer = timerx.New(tuning.DisconnectAckTimeout, c.onDisconnectAckTimeout)
	return c
}

// NewCentralChannel begins a CENTRAL-role handshake over an
// already-established link (spec §4.4 steps 1–4).
func NewCentralChannel(logger *logrus.Logger, cb Callbacks, link gatt.CentralLink, p peer.Peer, tuning Tuning) *Channel {
	c := newChannel(Central, logger, cb, p, tuning)
	c.central = link
	c.msg.start(c.ctx)
	c.data.start(c.ctx)
	c.beginCentralHandshake()
	return c
}

// NewPeripheralChannel begins a PERIPHERAL-role handshake: the
// peripheral passively waits for the central's connection request
// (spec §4.4 steps 1–4, mirrored).
func NewPeripheralChannel(logger *logrus.Logger, cb Callbacks, link gatt.PeripheralLink, tuning Tuning) *Channel {
	c := newChannel(Peripheral, logger, cb, peer.Peer{Handle: link.RemoteHandle()}, tuning)
	c.peripheral = link
	c.msg.start(c.ctx)
	c.data.start(c.ctx)
	c.beginPeripheralHandshake()
	return c
}

// Peer returns a snapshot of the remote peer's current identity and
// status (spec §9 "clone of peer on every call").
func (c *Channel) Peer() peer.Peer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer.Clone()
}

func (c *Channel) setPeer(p peer.Peer) {
	c.mu.Lock()
	c.peer = p
	c.mu.Unlock()
}

func (c *Channel) setState(s lifecycleState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.log.WithFields(logrus.Fields{"from": prev, "to": s}).Debug("channel state transition")
	}
}

func (c *Channel) currentState() lifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transmit dispatches a raw frame write through whichever primitive
// this channel's role exposes: CENTRAL writes characteristics,
// PERIPHERAL notifies them. Both directions of application traffic
// (and their acks) are expressed through this single entry point.
func (c *Channel) transmit(ctx context.Context, ch gatt.CharID, data []byte) error {
	if c.role == Central {
		return c.central.WriteCharacteristic(ctx, ch, data)
	}
	return c.peripheral.NotifyCharacteristic(ctx, ch, data)
}

// remoteHandle returns the host-level handle for the link underlying
// this channel, regardless of role.
func (c *Channel) remoteHandle() peer.Handle {
	if c.role == Central {
		return c.central.RemoteHandle()
	}
	return c.peripheral.RemoteHandle()
}

func (c *Channel) disconnectLink(ctx context.Context) error {
	if c.role == Central {
		return c.central.Disconnect(ctx)
	}
	return c.peripheral.Disconnect(ctx)
}

// SendMessage enqueues a text Message for reliable delivery (spec
// §4.5). It returns ErrNotConnected immediately if the channel is not
// in a state that accepts outbound traffic.
func (c *Channel) SendMessage(m message.Message) error {
	return c.enqueue(c.msg, m)
}

// SendData enqueues a binary Message for reliable delivery.
func (c *Channel) SendData(m message.Message) error {
	return c.enqueue(c.data, m)
}

func (c *Channel) enqueue(s *stream, m message.Message) error {
	switch c.currentState() {
	case stateDestroyed, stateDisconnecting:
		return ErrNotConnected
	}
	s.enqueue(m)
	return nil
}

// wireDataPlane subscribes both streams' receive and ack primitives.
// Called once per role immediately after the handshake reaches
// CONNECTED (spec §4.4 step 4 / §4.5).
func (c *Channel) wireDataPlane() error {
	if c.role == Central {
		c.central.OnDisconnected(c.onUnsolicitedDisconnect)
	} else {
		c.peripheral.OnDisconnected(c.onUnsolicitedDisconnect)
	}
	for _, s := range []*stream{c.msg, c.data} {
		s := s
		if c.role == Central {
			if err := c.central.SubscribeNotify(s.kind.sendChar(), func(data []byte) {
				c.onFrameReceived(s, data)
			}); err != nil {
				return fmt.Errorf("chanstate: subscribe %s: %w", s.kind.sendChar(), err)
			}
			if err := c.central.SubscribeNotify(s.kind.ackChar(), func(data []byte) {
				c.onAckReceived(s, data)
			}); err != nil {
				return fmt.Errorf("chanstate: subscribe %s: %w", s.kind.ackChar(), err)
			}
		} else {
			if err := c.peripheral.OnCharacteristicWrite(s.kind.receiveChar(), func(data []byte) {
				c.onFrameReceived(s, data)
			}); err != nil {
				return fmt.Errorf("chanstate: subscribe %s: %w", s.kind.receiveChar(), err)
			}
			if err := c.peripheral.OnCharacteristicWrite(s.kind.ackChar(), func(data []byte) {
				c.onAckReceived(s, data)
			}); err != nil {
				return fmt.Errorf("chanstate: subscribe %s: %w", s.kind.ackChar(), err)
			}
		}
	}
	return nil
}

// onUnsolicitedDisconnect is the host's report that this link went
// down without a local Disconnect call causing it (spec §4.8). Any
// other current state already has its own teardown in flight, so only
// a live CONNECTED channel reacts by entering RECONNECTING.
func (c *Channel) onUnsolicitedDisconnect() {
	if c.currentState() == stateConnected {
		c.MarkLost()
	}
}

func (c *Channel) onAckReceived(s *stream, raw []byte) {
	ack, err := wire.DecodeAck(raw)
	if err != nil {
		c.log.WithError(err).Warn("malformed ack frame, ignoring")
		return
	}
	s.deliverAck(ack)
}

// destroy tears down both stream workers and cancels this channel's
// context. Safe to call more than once.
func (c *Channel) destroy() {
	c.destroyOnce.Do(func() {
		c.setState(stateDestroyed)
		c.handshakeTimer.Cancel()
		c.reconnectTimer.Cancel()
		c.disconnectTimer.Cancel()
		c.msg.close()
		c.data.close()
		c.cancel()
		if c.cb.Remove != nil {
			c.cb.Remove(c)
		}
	})
}
