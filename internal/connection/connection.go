// Package connection multiplexes every simultaneous Channel for one
// BLE role (CENTRAL or PERIPHERAL) on this device (spec §4.1, §4.10).
// It is the layer a Communicator drives; it never talks to the host
// BLE stack directly, only through the gatt and chanstate packages.
package connection

import (
	"context"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/btcomm/internal/chanstate"
	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
)

// Connection owns the ordered channel set for one role, grounded on
// the teacher's scanner.Scanner (cornelk/hashmap-keyed device
// registry), generalized from a read-only discovery cache into a live,
// mutable set of reliable links.
type Connection struct {
	role   chanstate.Role
	log    *logrus.Logger
	cb     chanstate.Callbacks
	tuning chanstate.Tuning

	channels *hashmap.Map[string, *chanstate.Channel]

	pendingMu    sync.Mutex
	pendingQueue []pendingConnect
	pendingBusy  bool
}

// pendingConnect is one queued outbound CENTRAL-role connect attempt
// (spec §4.9's pending_connections FIFO): "maintain pending_connections
// FIFO of outbound connect requests; only one connect attempt in
// progress at a time... Reconnection requests use the same FIFO."
// resume is nil for a fresh handshake and set to the existing
// RECONNECTING channel being resumed otherwise (spec §4.8).
type pendingConnect struct {
	ctx    context.Context
	peer   peer.Peer
	dial   func(ctx context.Context) (gatt.CentralLink, error)
	resume *chanstate.Channel
}

// New creates an empty Connection for role. cb is the template
// callback record installed on every Channel this Connection creates;
// its Remove field is always overwritten to keep the channel set in
// sync with each channel's lifecycle. tuning overrides the wire
// protocol's timers/sizes for every Channel this Connection creates.
func New(role chanstate.Role, logger *logrus.Logger, cb chanstate.Callbacks, tuning chanstate.Tuning) *Connection {
	return &Connection{
		role:     role,
		log:      logger,
		cb:       cb,
		tuning:   tuning,
		channels: hashmap.New[string, *chanstate.Channel](),
	}
}

func keyOf(p peer.Peer) string {
	if p.Handle.Address != "" {
		return p.Handle.Address
	}
	return p.UniqueName
}

func (conn *Connection) callbacksFor() chanstate.Callbacks {
	cb := conn.cb
	cb.Remove = conn.remove
	cb.ResolveReconnect = conn.reconnectingChannelByName
	return cb
}

func (conn *Connection) reconnectingChannelByName(name string) (*chanstate.Channel, bool) {
	return conn.ReconnectingChannelByName(name)
}

// ReconnectingChannelByName returns the channel whose peer is
// currently RECONNECTING and whose unique_name matches name, if any
// (spec §4.8's re-discovery match on both the CENTRAL- and
// PERIPHERAL-initiated resume paths).
func (conn *Connection) ReconnectingChannelByName(name string) (*chanstate.Channel, bool) {
	var found *chanstate.Channel
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		p := ch.Peer()
		if p.Reconnecting && p.UniqueName == name {
			found = ch
			return false
		}
		return true
	})
	return found, found != nil
}

func (conn *Connection) remove(ch *chanstate.Channel) {
	conn.channels.Del(keyOf(ch.Peer()))
}

// AcceptCentralLink begins a CENTRAL-role handshake over a freshly
// dialed link (spec §4.4) and registers the resulting Channel.
func (conn *Connection) AcceptCentralLink(link gatt.CentralLink, p peer.Peer) *chanstate.Channel {
	ch := chanstate.NewCentralChannel(conn.log, conn.callbacksFor(), link, p, conn.tuning)
	conn.channels.Set(keyOf(p), ch)
	return ch
}

// AcceptPeripheralLink begins a PERIPHERAL-role handshake over a
// freshly accepted inbound link.
func (conn *Connection) AcceptPeripheralLink(link gatt.PeripheralLink) *chanstate.Channel {
	ch := chanstate.NewPeripheralChannel(conn.log, conn.callbacksFor(), link, conn.tuning)
	conn.channels.Set(keyOf(ch.Peer()), ch)
	return ch
}

// EnqueueConnect queues a fresh outbound CENTRAL-role connect attempt
// for p (spec §4.9's pending_connections FIFO) and returns immediately;
// dial is invoked once this request reaches the head of the queue, and
// its result (link or error) is reported back to onResult on a
// dedicated goroutine so the FIFO drain is never blocked waiting on a
// caller. Only one dial is ever in flight at a time across every
// peer, matching the hardware invariant of §5 ("the OS BLE stack
// permits ONE outstanding GATT operation per connection at a time").
func (conn *Connection) EnqueueConnect(ctx context.Context, p peer.Peer, dial func(ctx context.Context) (gatt.CentralLink, error), onResult func(gatt.CentralLink, error)) {
	conn.enqueue(pendingConnect{ctx: ctx, peer: p, dial: conn.wrapDial(dial, onResult)})
}

// EnqueueResume queues a reconnection resume attempt for an existing
// RECONNECTING channel on the same FIFO as fresh connects (spec §4.9:
// "Reconnection requests use the same FIFO").
func (conn *Connection) EnqueueResume(ctx context.Context, ch *chanstate.Channel, p peer.Peer, dial func(ctx context.Context) (gatt.CentralLink, error), onResult func(gatt.CentralLink, error)) {
	conn.enqueue(pendingConnect{ctx: ctx, peer: p, resume: ch, dial: conn.wrapDial(dial, onResult)})
}

// wrapDial adapts a (ctx) (CentralLink, error) dialer plus its result
// callback into the single no-arg func the drain loop invokes, so the
// loop itself doesn't need to know about onResult's signature.
func (conn *Connection) wrapDial(dial func(ctx context.Context) (gatt.CentralLink, error), onResult func(gatt.CentralLink, error)) func(ctx context.Context) (gatt.CentralLink, error) {
	return func(ctx context.Context) (gatt.CentralLink, error) {
		link, err := dial(ctx)
		if onResult != nil {
			onResult(link, err)
		}
		return link, err
	}
}

func (conn *Connection) enqueue(req pendingConnect) {
	conn.pendingMu.Lock()
	conn.pendingQueue = append(conn.pendingQueue, req)
	busy := conn.pendingBusy
	if !busy {
		conn.pendingBusy = true
	}
	conn.pendingMu.Unlock()

	if !busy {
		go conn.drainPending()
	}
}

// drainPending runs queued connect attempts one at a time, in FIFO
// order, until the queue empties (spec §4.9). It is the only place
// conn.pendingQueue is ever popped from, so at most one dial() call is
// ever outstanding for this Connection.
func (conn *Connection) drainPending() {
	for {
		conn.pendingMu.Lock()
		if len(conn.pendingQueue) == 0 {
			conn.pendingBusy = false
			conn.pendingMu.Unlock()
			return
		}
		req := conn.pendingQueue[0]
		conn.pendingQueue = conn.pendingQueue[1:]
		conn.pendingMu.Unlock()

		if _, err := req.dial(req.ctx); err != nil {
			conn.log.WithError(err).WithFields(logrus.Fields{
				"peer":   req.peer.UniqueName,
				"resume": req.resume != nil,
			}).Warn("queued connect attempt failed")
		}
	}
}

// SendMessage fans a text Message out to every matching channel,
// sequentially rather than in parallel (spec §4.1). A nil Receiver
// means broadcast to every connected peer.
func (conn *Connection) SendMessage(m message.Message) error {
	return conn.fanOut(m, (*chanstate.Channel).SendMessage)
}

// SendData fans a binary Message out the same way as SendMessage.
func (conn *Connection) SendData(m message.Message) error {
	return conn.fanOut(m, (*chanstate.Channel).SendData)
}

func (conn *Connection) fanOut(m message.Message, send func(*chanstate.Channel, message.Message) error) error {
	var firstErr error
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		if m.Receiver != nil && !peer.Equal(*m.Receiver, ch.Peer()) {
			return true
		}
		if err := send(ch, m.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// ChannelFor looks up the live channel for a peer, if any.
func (conn *Connection) ChannelFor(p peer.Peer) (*chanstate.Channel, bool) {
	return conn.channels.Get(keyOf(p))
}

// ConnectedPeers returns a snapshot of every fully-connected peer.
func (conn *Connection) ConnectedPeers() []peer.Peer {
	var out []peer.Peer
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		if p := ch.Peer(); p.Connected {
			out = append(out, p)
		}
		return true
	})
	return out
}

// ReconnectingPeers returns a snapshot of every peer currently in the
// RECONNECTING state (spec §4.8).
func (conn *Connection) ReconnectingPeers() []peer.Peer {
	var out []peer.Peer
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		if p := ch.Peer(); p.Reconnecting {
			out = append(out, p)
		}
		return true
	})
	return out
}

// UpdateName announces a local name change on every connected channel.
func (conn *Connection) UpdateName(ctx context.Context, uniqueName string) {
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		if err := ch.UpdateName(ctx, uniqueName); err != nil {
			conn.log.WithError(err).Warn("failed to announce name update on one channel")
		}
		return true
	})
}

// Disconnect tears down the single channel identified by p's identity,
// per spec §4.9's per-peer disconnect operation. It reports no error
// when no channel is currently tracked for p.
func (conn *Connection) Disconnect(ctx context.Context, p peer.Peer) error {
	ch, ok := conn.ChannelFor(p)
	if !ok {
		return nil
	}
	return ch.Disconnect(ctx)
}

// DisconnectAll disconnects every channel, e.g. during shutdown.
func (conn *Connection) DisconnectAll(ctx context.Context) {
	conn.channels.Range(func(_ string, ch *chanstate.Channel) bool {
		if err := ch.Disconnect(ctx); err != nil {
			conn.log.WithError(err).Warn("error disconnecting channel during DisconnectAll")
		}
		return true
	})
}

// Len reports the number of channels currently tracked, connected or not.
func (conn *Connection) Len() int { return int(conn.channels.Len()) }
