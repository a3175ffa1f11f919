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

// CentralHost adapts go-ble/ble's client-side Device to gatt.CentralHost,
// following the teacher's bleScanner/BLEConnection split almost verbatim.
type CentralHost struct {
	dev ble.Device
	log *logrus.Logger
}

// NewCentralHost creates the local radio's central-role host.
func NewCentralHost(logger *logrus.Logger) (*CentralHost, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)
	return &CentralHost{dev: dev, log: logger}, nil
}

func (h *CentralHost) StartScan(ctx context.Context, onFound func(gatt.Advertisement)) error {
	return NormalizeError(ble.Scan(ctx, true, func(adv ble.Advertisement) {
		onFound(gatt.Advertisement{
			Handle:    peer.Handle{Address: adv.Addr().String()},
			LocalName: adv.LocalName(),
			RSSI:      adv.RSSI(),
		})
	}, nil))
}

// StopScan is a no-op: scanning in go-ble/ble is driven entirely by
// ctx cancellation passed to StartScan.
func (h *CentralHost) StopScan() error { return nil }

func (h *CentralHost) Connect(ctx context.Context, handle peer.Handle) (gatt.CentralLink, error) {
	client, err := ble.Dial(ctx, ble.NewAddr(handle.Address))
	if err != nil {
		return nil, NormalizeError(err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, NormalizeError(err)
	}

	l := &centralLink{
		client: client,
		handle: handle,
		chars:  indexCharacteristics(profile),
		log:    h.log,
	}
	l.monitorDisconnect()
	return l, nil
}

type centralLink struct {
	client ble.Client
	handle peer.Handle
	chars  map[gatt.CharID]*ble.Characteristic
	log    *logrus.Logger

	mu                 sync.Mutex
	mtu                int
	disconnectHandler  func()
	disconnectOnce     sync.Once
	localDisconnecting bool
}

// monitorDisconnect watches go-ble/ble's client-level Disconnected()
// channel (where the platform binding exposes one) and treats its
// closing as an unsolicited link loss unless a local Disconnect call
// is already in flight. Grounded on the teacher's
// internal/device/go-ble/connection.go Darwin disconnect monitor.
func (l *centralLink) monitorDisconnect() {
	dc, ok := l.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		if l.log != nil {
			l.log.Debug("blehost: client does not expose a Disconnected() channel on this platform")
		}
		return
	}
	go func() {
		<-dc.Disconnected()
		l.mu.Lock()
		local := l.localDisconnecting
		handler := l.disconnectHandler
		l.mu.Unlock()
		if local || handler == nil {
			return
		}
		l.disconnectOnce.Do(handler)
	}()
}

func (l *centralLink) char(id gatt.CharID) (*ble.Characteristic, error) {
	c, ok := l.chars[id]
	if !ok {
		return nil, fmt.Errorf("blehost: remote profile has no characteristic %s", id)
	}
	return c, nil
}

func (l *centralLink) WriteCharacteristic(_ context.Context, ch gatt.CharID, data []byte) error {
	c, err := l.char(ch)
	if err != nil {
		return err
	}
	return NormalizeError(l.client.WriteCharacteristic(c, data, false))
}

func (l *centralLink) SubscribeNotify(ch gatt.CharID, handler func(data []byte)) error {
	c, err := l.char(ch)
	if err != nil {
		return err
	}
	return NormalizeError(l.client.Subscribe(c, false, handler))
}

func (l *centralLink) RequestMTU(_ context.Context, size int) (int, error) {
	negotiated, err := l.client.ExchangeMTU(size)
	if err != nil {
		return 0, NormalizeError(err)
	}
	l.mu.Lock()
	l.mtu = negotiated
	l.mu.Unlock()
	return negotiated, nil
}

func (l *centralLink) RemoteHandle() peer.Handle { return l.handle }

func (l *centralLink) OnDisconnected(handler func()) {
	l.mu.Lock()
	l.disconnectHandler = handler
	l.mu.Unlock()
}

func (l *centralLink) Disconnect(context.Context) error {
	l.mu.Lock()
	l.localDisconnecting = true
	l.mu.Unlock()
	return NormalizeError(l.client.CancelConnection())
}

func indexCharacteristics(profile *ble.Profile) map[gatt.CharID]*ble.Characteristic {
	lookup := uuidToCharID()
	out := make(map[gatt.CharID]*ble.Characteristic, len(charUUIDs))
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			if cid, ok := lookup[c.UUID.String()]; ok {
				out[cid] = c
			}
		}
	}
	return out
}
