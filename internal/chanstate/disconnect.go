package chanstate

import (
	"context"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/peer"
)

// lifecycleOutChar picks the characteristic this role writes/notifies
// to announce a lifecycle event (name update, resume, disconnection)
// to the remote side.
func (c *Channel) lifecycleOutChar(receiveChar, sendChar gatt.CharID) gatt.CharID {
	if c.role == Central {
		return receiveChar
	}
	return sendChar
}

// wireLifecyclePlane subscribes the inbound primitives for name
// updates, resumed-connection notices, and remote-initiated
// disconnection, once the handshake has completed (spec §4.7, §4.8).
func (c *Channel) wireLifecyclePlane() error {
	if c.role == Central {
		if err := c.central.SubscribeNotify(gatt.CharNameUpdateSend, c.onNameUpdateReceived); err != nil {
			return err
		}
		if err := c.central.SubscribeNotify(gatt.CharConnectionResumedSend, c.onConnectionResumedReceived); err != nil {
			return err
		}
		if err := c.central.SubscribeNotify(gatt.CharDisconnectionSend, c.onDisconnectionReceived); err != nil {
			return err
		}
		return nil
	}

	if err := c.peripheral.OnCharacteristicWrite(gatt.CharNameUpdateReceive, c.onNameUpdateReceived); err != nil {
		return err
	}
	if err := c.peripheral.OnCharacteristicWrite(gatt.CharConnectionResumedReceive, c.onConnectionResumedReceived); err != nil {
		return err
	}
	if err := c.peripheral.OnCharacteristicWrite(gatt.CharDisconnectionReceive, c.onDisconnectionReceived); err != nil {
		return err
	}
	return nil
}

// Disconnect performs an application-initiated disconnection (spec
// §4.7): the local side announces the disconnection, tears down the
// physical link, and finalizes locally without waiting further once
// the link-level teardown itself succeeds. disconnectTimer guards
// against a remote side that stops responding mid-protocol.
func (c *Channel) Disconnect(ctx context.Context) error {
	switch c.currentState() {
	case stateDestroyed, stateDisconnecting:
		return ErrNotConnected
	}
	c.setState(stateDisconnecting)

	outCh := c.lifecycleOutChar(gatt.CharDisconnectionReceive, gatt.CharDisconnectionSend)
	if err := c.transmit(ctx, outCh, []byte{1}); err != nil {
		c.log.WithError(err).Warn("failed to announce disconnection to remote")
	}

	c.disconnectTimer.Start()
	err := c.disconnectLink(ctx)
	if err != nil {
		// The OS-level teardown itself failed: report it through
		// OnDisconnectionFailed instead of the normal OnDisconnected,
		// mirroring onDisconnectAckTimeout below.
		p := c.teardown()
		if c.cb.OnDisconnectionFailed != nil {
			c.cb.OnDisconnectionFailed(p, &Error{State: DisconnectionFailed, Msg: err.Error()})
		}
		return err
	}
	c.finalizeDisconnect()
	return nil
}

func (c *Channel) onDisconnectionReceived(data []byte) {
	c.finalizeDisconnect()
}

func (c *Channel) finalizeDisconnect() {
	p := c.teardown()
	if c.cb.OnDisconnected != nil {
		c.cb.OnDisconnected(p)
	}
}

// teardown cancels the disconnect watchdog, marks the peer
// disconnected, and destroys the channel, without itself notifying
// either OnDisconnected or OnDisconnectionFailed — the caller picks
// whichever one applies.
func (c *Channel) teardown() peer.Peer {
	c.disconnectTimer.Cancel()
	p := c.Peer()
	p.Connected = false
	p.HardwareConnected = false
	c.setPeer(p)
	c.destroy()
	return p
}

// onDisconnectAckTimeout fires if the remote side never confirms a
// locally-initiated disconnection within DisconnectAckTimeoutSecond;
// rather than hang, the channel is torn down and reported as failed.
func (c *Channel) onDisconnectAckTimeout() {
	if c.currentState() != stateDisconnecting {
		return
	}
	p := c.teardown()
	if c.cb.OnDisconnectionFailed != nil {
		c.cb.OnDisconnectionFailed(p, &Error{State: DisconnectAckTimeout, Msg: "remote never acked within disconnect_ack_timeout"})
	}
}
