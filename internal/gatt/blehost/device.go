package blehost

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// DeviceFactory creates the ble.Device used by both roles; overridden
// in tests (mirrors the teacher's internal/device/go-ble.DeviceFactory).
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

var (
	// ErrBluetoothOff is returned when the host radio is powered down.
	ErrBluetoothOff = errors.New("blehost: bluetooth is powered off")
	// ErrNotConnected is returned for operations on a torn-down link.
	ErrNotConnected = errors.New("blehost: not connected")
)

// NormalizeError maps go-ble's loosely-typed error strings onto this
// package's sentinels, the same defensive translation the teacher's
// internal/device/go-ble/error.go performs for its own error surface.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("blehost: timed out: %w", err)
	case errors.Is(err, context.Canceled):
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "bluetooth is turned off"), strings.Contains(msg, "invalid state"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case strings.Contains(msg, "not connected"), strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}
