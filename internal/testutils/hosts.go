package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/peer"
)

// MockCentralHost is a gatt.CentralHost a test drives by hand: it
// records the scan callback and lets the test decide when a device is
// "found", and lets the test pre-register what Connect returns for a
// given address instead of dialing a real radio.
type MockCentralHost struct {
	mu       sync.Mutex
	onFound  func(gatt.Advertisement)
	scanning bool
	dialable map[string]gatt.CentralLink
}

func NewMockCentralHost() *MockCentralHost {
	return &MockCentralHost{dialable: make(map[string]gatt.CentralLink)}
}

func (h *MockCentralHost) StartScan(_ context.Context, onFound func(gatt.Advertisement)) error {
	h.mu.Lock()
	h.onFound = onFound
	h.scanning = true
	h.mu.Unlock()
	return nil
}

func (h *MockCentralHost) StopScan() error {
	h.mu.Lock()
	h.scanning = false
	h.mu.Unlock()
	return nil
}

func (h *MockCentralHost) Connect(_ context.Context, handle peer.Handle) (gatt.CentralLink, error) {
	h.mu.Lock()
	link, ok := h.dialable[handle.Address]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("testutils: no link registered for %s", handle.Address)
	}
	return link, nil
}

// RegisterDialable makes link the result of a future Connect for addr.
func (h *MockCentralHost) RegisterDialable(addr string, link gatt.CentralLink) {
	h.mu.Lock()
	h.dialable[addr] = link
	h.mu.Unlock()
}

// Discover simulates the host's scan callback firing for adv.
func (h *MockCentralHost) Discover(adv gatt.Advertisement) {
	h.mu.Lock()
	onFound := h.onFound
	h.mu.Unlock()
	if onFound != nil {
		onFound(adv)
	}
}

func (h *MockCentralHost) IsScanning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scanning
}

// MockPeripheralHost is a gatt.PeripheralHost a test drives by hand:
// StartAdvertise just blocks on ctx like the real adapter, and the
// test calls AcceptLink to simulate an inbound central connecting.
type MockPeripheralHost struct {
	mu          sync.Mutex
	onLink      func(gatt.PeripheralLink)
	advertising bool
}

func NewMockPeripheralHost() *MockPeripheralHost {
	return &MockPeripheralHost{}
}

func (h *MockPeripheralHost) StartAdvertise(ctx context.Context, _ string) error {
	h.mu.Lock()
	h.advertising = true
	h.mu.Unlock()
	<-ctx.Done()
	h.mu.Lock()
	h.advertising = false
	h.mu.Unlock()
	return ctx.Err()
}

func (h *MockPeripheralHost) StopAdvertise() error { return nil }

func (h *MockPeripheralHost) OnLink(handler func(gatt.PeripheralLink)) {
	h.mu.Lock()
	h.onLink = handler
	h.mu.Unlock()
}

// AcceptLink simulates the host's GATT server accepting an inbound link.
func (h *MockPeripheralHost) AcceptLink(link gatt.PeripheralLink) {
	h.mu.Lock()
	onLink := h.onLink
	h.mu.Unlock()
	if onLink != nil {
		onLink(link)
	}
}

func (h *MockPeripheralHost) IsAdvertising() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.advertising
}
