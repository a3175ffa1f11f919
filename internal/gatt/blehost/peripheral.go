package blehost

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/peer"
)

// PeripheralHost adapts go-ble/ble's server-side Device to
// gatt.PeripheralHost. The teacher never needed a GATT server (its
// client-only adapter in internal/device/go-ble), so this half is
// written fresh against the same library, following its server-role
// conventions (HandleWrite/HandleNotify, AdvertiseNameAndServices).
type PeripheralHost struct {
	dev ble.Device
	log *logrus.Logger

	mu              sync.Mutex
	onLinkHandler   func(gatt.PeripheralLink)
	cancelAdvertise context.CancelFunc
}

// NewPeripheralHost creates the local radio's peripheral-role host.
func NewPeripheralHost(logger *logrus.Logger) (*PeripheralHost, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	return &PeripheralHost{dev: dev, log: logger}, nil
}

func (h *PeripheralHost) OnLink(handler func(gatt.PeripheralLink)) {
	h.mu.Lock()
	h.onLinkHandler = handler
	h.mu.Unlock()
}

// StartAdvertise registers the single primary service (spec §6) and
// begins advertising. It blocks until ctx is cancelled, StopAdvertise
// is called, or the host reports an error.
func (h *PeripheralHost) StartAdvertise(ctx context.Context, localName string) error {
	link := newPeripheralLink(h.log)

	svc := ble.NewService(serviceUUID)
	for cid, u := range charUUIDs {
		cid, u := cid, u
		c := ble.NewCharacteristic(u)
		if writeChars[cid] {
			c.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
				link.dispatchWrite(cid, req.Data())
			}))
		}
		if notifyChars[cid] {
			c.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
				link.registerNotifier(cid, n)
			}))
		}
		svc.AddCharacteristic(c)
	}

	if err := h.dev.AddService(svc); err != nil {
		return NormalizeError(err)
	}

	h.mu.Lock()
	handler := h.onLinkHandler
	h.mu.Unlock()
	if handler != nil {
		handler(link)
	}

	advCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancelAdvertise = cancel
	h.mu.Unlock()

	return NormalizeError(h.dev.AdvertiseNameAndServices(advCtx, localName, serviceUUID))
}

func (h *PeripheralHost) StopAdvertise() error {
	h.mu.Lock()
	cancel := h.cancelAdvertise
	h.cancelAdvertise = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

type peripheralLink struct {
	log *logrus.Logger

	mu                 sync.Mutex
	writeHandlers      map[gatt.CharID]func([]byte)
	notifiers          map[gatt.CharID]ble.Notifier
	mtu                int
	handle             peer.Handle
	disconnectHandler  func()
	disconnectOnce     sync.Once
	localDisconnecting bool
}

func newPeripheralLink(log *logrus.Logger) *peripheralLink {
	return &peripheralLink{
		log:           log,
		writeHandlers: make(map[gatt.CharID]func([]byte)),
		notifiers:     make(map[gatt.CharID]ble.Notifier),
	}
}

func (l *peripheralLink) dispatchWrite(cid gatt.CharID, data []byte) {
	l.mu.Lock()
	h := l.writeHandlers[cid]
	l.mu.Unlock()
	if h != nil {
		h(append([]byte(nil), data...))
	}
}

// registerNotifier blocks for the lifetime of the subscription, per
// go-ble/ble's NotifyHandlerFunc contract: the handler goroutine owns
// n until the central unsubscribes or disconnects.
func (l *peripheralLink) registerNotifier(cid gatt.CharID, n ble.Notifier) {
	l.mu.Lock()
	l.notifiers[cid] = n
	l.mu.Unlock()

	<-n.Context().Done()

	l.mu.Lock()
	if l.notifiers[cid] == n {
		delete(l.notifiers, cid)
	}
	local := l.localDisconnecting
	handler := l.disconnectHandler
	l.mu.Unlock()

	// Any one characteristic's notifier context closing means the
	// underlying central connection went away; the first one to
	// observe it reports the unsolicited disconnect (spec §4.8),
	// unless a local Disconnect already marked this as expected.
	if !local && handler != nil {
		l.disconnectOnce.Do(handler)
	}
}

func (l *peripheralLink) NotifyCharacteristic(_ context.Context, ch gatt.CharID, data []byte) error {
	l.mu.Lock()
	n := l.notifiers[ch]
	l.mu.Unlock()
	if n == nil {
		return fmt.Errorf("blehost: no central subscribed to %s yet", ch)
	}
	_, err := n.Write(data)
	return NormalizeError(err)
}

func (l *peripheralLink) OnCharacteristicWrite(ch gatt.CharID, handler func(data []byte)) error {
	l.mu.Lock()
	l.writeHandlers[ch] = handler
	l.mu.Unlock()
	return nil
}

func (l *peripheralLink) CurrentMTU() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mtu
}

func (l *peripheralLink) RemoteHandle() peer.Handle { return l.handle }

func (l *peripheralLink) OnDisconnected(handler func()) {
	l.mu.Lock()
	l.disconnectHandler = handler
	l.mu.Unlock()
}

// Disconnect is best-effort: go-ble/ble's peripheral role exposes no
// API to force-disconnect one specific central. A peripheral can only
// stop advertising and let the link idle out from the central side.
func (l *peripheralLink) Disconnect(context.Context) error {
	l.mu.Lock()
	l.localDisconnecting = true
	l.mu.Unlock()
	if l.log != nil {
		l.log.Warn("blehost: peripheral-initiated disconnect is not supported by go-ble/ble's server role; relying on the remote central to close the link")
	}
	return nil
}
