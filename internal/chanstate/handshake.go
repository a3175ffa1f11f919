package chanstate

import (
	"context"
	"fmt"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/peer"
)

// acceptByte/rejectByte are the CONNECTION_RESPONSE payload byte 0
// values spec §4.4 step 5 mandates ('0' ACCEPT, '1' REJECT).
const (
	acceptByte = byte('0')
	rejectByte = byte('1')
)

// beginCentralHandshake drives spec §4.4's CENTRAL side: negotiate
// MTU, then request a connection and wait for the peripheral's
// accept/reject.
func (c *Channel) beginCentralHandshake() {
	c.handshakeTimer.Start()

	if err := c.central.SubscribeNotify(gatt.CharMTUResponse, c.onMTUResponse); err != nil {
		c.failHandshake(err)
		return
	}
	if err := c.central.SubscribeNotify(gatt.CharConnectionResponse, c.onConnectionResponse); err != nil {
		c.failHandshake(err)
		return
	}

	if _, err := c.central.RequestMTU(c.ctx, c.tuning.TargetMTU); err != nil {
		c.failHandshake(err)
		return
	}
	if err := c.central.WriteCharacteristic(c.ctx, gatt.CharMTURequest, make([]byte, c.tuning.TargetMTU)); err != nil {
		c.failHandshake(err)
		return
	}

	name := c.Peer().UniqueName
	if err := c.central.WriteCharacteristic(c.ctx, gatt.CharConnectionRequest, []byte(name)); err != nil {
		c.failHandshake(err)
		return
	}
}

func (c *Channel) onMTUResponse(data []byte) {
	c.log.WithField("mtu", string(data)).Debug("peripheral acked MTU")
}

func (c *Channel) onConnectionResponse(data []byte) {
	if len(data) == 0 {
		c.log.Warn("empty CONNECTION_RESPONSE frame")
		return
	}
	switch data[0] {
	case acceptByte:
		c.completeHandshake()
	case rejectByte:
		c.handshakeTimer.Cancel()
		p := c.Peer()
		c.setState(stateDestroyed)
		if c.cb.OnConnectionFailed != nil {
			c.cb.OnConnectionFailed(p, &Error{State: ConnectionRejected})
		}
		c.destroy()
	default:
		c.log.WithField("byte", data[0]).Warn("unrecognized CONNECTION_RESPONSE byte")
	}
}

// beginPeripheralHandshake registers the write-handlers the central
// side drives, then waits passively (spec §4.4, mirrored).
func (c *Channel) beginPeripheralHandshake() {
	c.handshakeTimer.Start()

	if err := c.peripheral.OnCharacteristicWrite(gatt.CharMTURequest, c.onMTURequest); err != nil {
		c.failHandshake(err)
		return
	}
	if err := c.peripheral.OnCharacteristicWrite(gatt.CharConnectionRequest, c.onConnectionRequest); err != nil {
		c.failHandshake(err)
		return
	}
}

func (c *Channel) onMTURequest(data []byte) {
	ctx := c.ctx
	if err := c.peripheral.NotifyCharacteristic(ctx, gatt.CharMTUResponse, encodeMTU(c.peripheral.CurrentMTU())); err != nil {
		c.log.WithError(err).Warn("failed to ack MTU negotiation")
	}
}

func (c *Channel) onConnectionRequest(data []byte) {
	name := string(data)

	if c.cb.ResolveReconnect != nil {
		if existing, ok := c.cb.ResolveReconnect(name); ok && existing != c {
			c.log.WithField("peer", name).Debug("inbound link resumes a reconnecting peer")
			if err := existing.ResumeWithLink(nil, c.peripheral); err != nil {
				c.log.WithError(err).Warn("failed to resume reconnecting channel")
			}
			c.abandon()
			return
		}
	}

	p := peer.New(name, "", c.peripheral.RemoteHandle())
	c.setPeer(p)
	if c.cb.OnConnectionRequest != nil {
		c.cb.OnConnectionRequest(p)
	}
}

// abandon tears down this just-created shell channel without
// surfacing any app-facing callback: its only purpose was to learn
// the remote's unique_name long enough to discover that an existing
// RECONNECTING channel should take over the link instead.
func (c *Channel) abandon() {
	c.handshakeTimer.Cancel()
	c.destroy()
}

// Accept finishes a pending PERIPHERAL handshake, notifying the
// central side that the connection request was accepted. It is a
// no-op error if called outside the handshaking state.
func (c *Channel) Accept(ctx context.Context) error {
	if c.currentState() != stateHandshaking {
		return fmt.Errorf("chanstate: accept called outside handshake")
	}
	if err := c.peripheral.NotifyCharacteristic(ctx, gatt.CharConnectionResponse, []byte{acceptByte}); err != nil {
		return err
	}
	c.completeHandshake()
	return nil
}

// Reject finishes a pending PERIPHERAL handshake by notifying the
// central side of rejection and tearing the channel down.
func (c *Channel) Reject(ctx context.Context) error {
	if c.currentState() != stateHandshaking {
		return fmt.Errorf("chanstate: reject called outside handshake")
	}
	err := c.peripheral.NotifyCharacteristic(ctx, gatt.CharConnectionResponse, []byte{rejectByte})
	p := c.Peer()
	c.handshakeTimer.Cancel()
	if c.cb.OnConnectionFailed != nil {
		c.cb.OnConnectionFailed(p, &Error{State: ConnectionRejected})
	}
	c.destroy()
	return err
}

func (c *Channel) completeHandshake() {
	c.handshakeTimer.Cancel()
	if err := c.wireDataPlane(); err != nil {
		c.failHandshake(err)
		return
	}
	if err := c.wireLifecyclePlane(); err != nil {
		c.failHandshake(err)
		return
	}

	p := c.Peer()
	p.Connected = true
	p.HardwareConnected = true
	p.Reconnecting = false
	c.setPeer(p)
	c.setState(stateConnected)

	if c.cb.OnConnectionSuccess != nil {
		c.cb.OnConnectionSuccess(p, c.role)
	}
}

func (c *Channel) failHandshake(err error) {
	c.log.WithError(err).Warn("handshake failed")
	c.onHandshakeTimeout()
}

func (c *Channel) onHandshakeTimeout() {
	if c.currentState() != stateHandshaking {
		return
	}
	p := c.Peer()
	c.setState(stateDestroyed)
	if c.cb.OnConnectionFailed != nil {
		c.cb.OnConnectionFailed(p, &Error{State: HandshakeTimeout})
	}
	c.destroy()
}

// encodeMTU renders the peripheral's current MTU size as its decimal
// ASCII representation for CharMTUResponse; the central side only logs
// it. CharMTURequest itself carries TargetMTU zero bytes, not this form.
func encodeMTU(size int) []byte {
	return []byte(fmt.Sprintf("%d", size))
}
