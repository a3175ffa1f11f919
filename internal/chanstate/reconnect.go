package chanstate

import (
	"context"
	"fmt"

	"github.com/srg/btcomm/internal/gatt"
)

// MarkLost transitions a CONNECTED channel into RECONNECTING after an
// unexpected hardware disconnection (spec §4.8). Per the tie-breaking
// rule, only the side that held the CENTRAL role on the lost link
// re-initiates; the former PERIPHERAL waits to be re-discovered.
func (c *Channel) MarkLost() {
	if c.currentState() != stateConnected {
		return
	}
	c.setState(stateReconnecting)

	p := c.Peer()
	p.HardwareConnected = false
	p.Connected = false
	p.Reconnecting = true
	p.RequestingReconnection = c.role == Central
	c.setPeer(p)

	c.reconnectTimer.Start()
	if c.cb.OnConnectionLost != nil {
		c.cb.OnConnectionLost(p)
	}
}

// ResumeWithLink re-attaches a freshly re-established physical link to
// a RECONNECTING channel, skipping the full handshake: only the
// lifecycle/data-plane subscriptions are redone and a resumed notice
// is exchanged (spec §4.8).
func (c *Channel) ResumeWithLink(central gatt.CentralLink, peripheral gatt.PeripheralLink) error {
	if c.currentState() != stateReconnecting {
		return fmt.Errorf("chanstate: resume called outside reconnecting state")
	}
	c.central = central
	c.peripheral = peripheral

	// Refresh the peer's device handle to the freshly re-established
	// link (spec §4.8: "refresh channel.peer.device_handle to the new
	// one"); a reconnecting BLE peer is not guaranteed to keep the same
	// host-level address.
	p := c.Peer()
	if central != nil {
		p.Handle = central.RemoteHandle()
	}
	if peripheral != nil {
		p.Handle = peripheral.RemoteHandle()
	}
	c.setPeer(p)

	if err := c.wireDataPlane(); err != nil {
		return err
	}
	if err := c.wireLifecyclePlane(); err != nil {
		return err
	}

	outCh := c.lifecycleOutChar(gatt.CharConnectionResumedReceive, gatt.CharConnectionResumedSend)
	if err := c.transmit(c.ctx, outCh, []byte{1}); err != nil {
		c.log.WithError(err).Warn("failed to announce resumed connection to remote")
	}

	c.finalizeResume()
	return nil
}

func (c *Channel) onConnectionResumedReceived(data []byte) {
	if c.currentState() != stateReconnecting {
		return
	}
	c.finalizeResume()
}

func (c *Channel) finalizeResume() {
	c.reconnectTimer.Cancel()
	p := c.Peer()
	p.HardwareConnected = true
	p.Connected = true
	p.Reconnecting = false
	p.RequestingReconnection = false
	c.setPeer(p)
	c.setState(stateConnected)
	if c.cb.OnConnectionResumed != nil {
		c.cb.OnConnectionResumed(p)
	}
}

// onReconnectTimeout fires after ReconnectionTimeoutSeconds spent
// RECONNECTING without a successful resume. Spec §4.8/§7 both treat
// this as an escalation into the disconnection protocol (§4.7), not a
// connection failure: the channel's peer is already hardware-lost, so
// there is no live link left to run §4.7's characteristic write/ack
// exchange over (§4.7 initiator step 1's "if peer.reconnecting" case);
// the channel is simply finalized and the app is told on_disconnected,
// the same as any other completed teardown.
func (c *Channel) onReconnectTimeout() {
	if c.currentState() != stateReconnecting {
		return
	}
	c.log.WithError(&Error{State: ReconnectTimeout}).Warn("reconnection window elapsed without resume")
	c.setState(stateDisconnecting)
	c.disconnectTimer.Cancel()

	p := c.Peer()
	p.Reconnecting = false
	p.RequestingReconnection = false
	c.setPeer(p)

	c.finalizeDisconnect()
}

// UpdateName announces a local user-name change to the remote side
// (spec §4.9). The device-id suffix is never transmitted; uniqueName
// is the already-truncated, already-suffixed name per peer.New.
func (c *Channel) UpdateName(ctx context.Context, uniqueName string) error {
	if c.currentState() != stateConnected {
		return ErrNotConnected
	}
	outCh := c.lifecycleOutChar(gatt.CharNameUpdateReceive, gatt.CharNameUpdateSend)
	return c.transmit(ctx, outCh, []byte(uniqueName))
}

func (c *Channel) onNameUpdateReceived(data []byte) {
	p := c.Peer()
	p.UniqueName = string(data)
	c.setPeer(p)
}
