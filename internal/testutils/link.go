// Package testutils supplies deterministic, in-memory stand-ins for
// the gatt package's interfaces, playing the same role for this
// module's tests that a fake scanner/connection played in the
// teacher's own test suite: no real radio, synchronous delivery,
// fully inspectable from the test side.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/peer"
)

// LinkedPair wires a CentralLink and a PeripheralLink to each other in
// memory: a write on one side calls straight into the handler
// registered on the other, with no goroutine hop and no real MTU
// negotiation delay. It is the unit test's substitute for an actual
// BLE connection.
type LinkedPair struct {
	Central    gatt.CentralLink
	Peripheral gatt.PeripheralLink
}

// NewLinkedPair builds a connected pair. centralHandle is the handle
// the peripheral side observes for the central (RemoteHandle);
// peripheralHandle is what the central side observes in return.
func NewLinkedPair(centralHandle, peripheralHandle peer.Handle) *LinkedPair {
	c := &memCentralLink{handle: peripheralHandle, notifyHandlers: make(map[gatt.CharID]func([]byte))}
	p := &memPeripheralLink{handle: centralHandle, writeHandlers: make(map[gatt.CharID]func([]byte))}
	c.peer = p
	p.peer = c
	return &LinkedPair{Central: c, Peripheral: p}
}

// DropUnsolicited simulates an unrequested hardware link loss on this
// pair, firing whatever OnDisconnected handlers either side's Channel
// has registered (spec §4.8).
func (lp *LinkedPair) DropUnsolicited() {
	lp.Central.(*memCentralLink).DropUnsolicited()
}

type memCentralLink struct {
	mu                sync.Mutex
	handle            peer.Handle
	mtu               int
	peer              *memPeripheralLink
	notifyHandlers    map[gatt.CharID]func([]byte)
	disconnected      bool
	disconnectHandler func()
}

func (l *memCentralLink) WriteCharacteristic(_ context.Context, ch gatt.CharID, data []byte) error {
	l.mu.Lock()
	if l.disconnected {
		l.mu.Unlock()
		return fmt.Errorf("testutils: link disconnected")
	}
	l.mu.Unlock()
	return l.peer.dispatchWrite(ch, data)
}

func (l *memCentralLink) SubscribeNotify(ch gatt.CharID, handler func(data []byte)) error {
	l.mu.Lock()
	l.notifyHandlers[ch] = handler
	l.mu.Unlock()
	return nil
}

func (l *memCentralLink) RequestMTU(_ context.Context, size int) (int, error) {
	l.mu.Lock()
	l.mtu = size
	l.mu.Unlock()
	l.peer.mu.Lock()
	l.peer.mtu = size
	l.peer.mu.Unlock()
	return size, nil
}

func (l *memCentralLink) RemoteHandle() peer.Handle { return l.handle }

func (l *memCentralLink) OnDisconnected(handler func()) {
	l.mu.Lock()
	l.disconnectHandler = handler
	l.mu.Unlock()
}

func (l *memCentralLink) Disconnect(context.Context) error {
	l.mu.Lock()
	l.disconnected = true
	l.mu.Unlock()
	l.peer.mu.Lock()
	l.peer.disconnected = true
	l.peer.mu.Unlock()
	return nil
}

// DropUnsolicited simulates a hardware link loss that neither side
// requested, firing the registered OnDisconnected handlers on both
// ends of the pair without marking either as locally disconnecting.
func (l *memCentralLink) DropUnsolicited() {
	l.mu.Lock()
	l.disconnected = true
	h := l.disconnectHandler
	l.mu.Unlock()

	l.peer.mu.Lock()
	l.peer.disconnected = true
	ph := l.peer.disconnectHandler
	l.peer.mu.Unlock()

	if h != nil {
		h()
	}
	if ph != nil {
		ph()
	}
}

func (l *memCentralLink) notifyHandler(ch gatt.CharID) func([]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyHandlers[ch]
}

type memPeripheralLink struct {
	mu                sync.Mutex
	handle            peer.Handle
	mtu               int
	peer              *memCentralLink
	writeHandlers     map[gatt.CharID]func([]byte)
	disconnected      bool
	disconnectHandler func()
}

func (l *memPeripheralLink) NotifyCharacteristic(_ context.Context, ch gatt.CharID, data []byte) error {
	l.mu.Lock()
	if l.disconnected {
		l.mu.Unlock()
		return fmt.Errorf("testutils: link disconnected")
	}
	l.mu.Unlock()

	h := l.peer.notifyHandler(ch)
	if h == nil {
		return fmt.Errorf("testutils: no subscriber registered for %s", ch)
	}
	h(append([]byte(nil), data...))
	return nil
}

func (l *memPeripheralLink) OnCharacteristicWrite(ch gatt.CharID, handler func(data []byte)) error {
	l.mu.Lock()
	l.writeHandlers[ch] = handler
	l.mu.Unlock()
	return nil
}

func (l *memPeripheralLink) dispatchWrite(ch gatt.CharID, data []byte) error {
	l.mu.Lock()
	if l.disconnected {
		l.mu.Unlock()
		return fmt.Errorf("testutils: link disconnected")
	}
	h := l.writeHandlers[ch]
	l.mu.Unlock()
	if h == nil {
		return fmt.Errorf("testutils: no write handler registered for %s", ch)
	}
	h(append([]byte(nil), data...))
	return nil
}

func (l *memPeripheralLink) CurrentMTU() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mtu
}

func (l *memPeripheralLink) RemoteHandle() peer.Handle { return l.handle }

func (l *memPeripheralLink) OnDisconnected(handler func()) {
	l.mu.Lock()
	l.disconnectHandler = handler
	l.mu.Unlock()
}

func (l *memPeripheralLink) Disconnect(context.Context) error {
	l.mu.Lock()
	l.disconnected = true
	l.mu.Unlock()
	l.peer.mu.Lock()
	l.peer.disconnected = true
	l.peer.mu.Unlock()
	return nil
}
