// Package peer implements the remote-device identity and live-link
// status value type (spec §3).
package peer

import "github.com/srg/btcomm/internal/timerx"

// MaxUniqueNameBytes is the advertised-name budget: a user-chosen
// name plus a 2-character random device-id suffix, UTF-8 encoded.
const MaxUniqueNameBytes = 20

// DeviceIDSuffixLen is the length, in runes, of the persistent random
// device-id suffix appended to the user-chosen name.
const DeviceIDSuffixLen = 2

// Handle is the opaque device reference handed back by the host BLE
// stack (spec §3's device_handle). Equality between peers is by
// Handle.Address when both sides have one.
type Handle struct {
	Address string
}

// Peer is a cheap-copy value snapshot of a remote device's identity
// and connection status. The authoritative mutable copy lives inside
// the owning Channel (spec §9 "Clone-of-peer-on-every-call"); this
// type is what gets handed to the application layer.
type Peer struct {
	UniqueName             string // user name + 2-char suffix, <=20 UTF-8 bytes
	Handle                 Handle
	HardwareConnected      bool
	Connected              bool
	Reconnecting           bool
	RequestingReconnection bool
	Disconnecting          bool
}

// New constructs a Peer from a user-chosen name and device-id suffix,
// truncating the user-chosen name so that the suffix stays whole at the
// end and the result respects MaxUniqueNameBytes.
func New(userName, deviceIDSuffix string, handle Handle) Peer {
	name := timerx.TruncateUTF8(userName, max(MaxUniqueNameBytes-len(deviceIDSuffix), 0))
	unique := timerx.TruncateUTF8(name+deviceIDSuffix, MaxUniqueNameBytes)
	return Peer{UniqueName: unique, Handle: handle}
}

// Name returns the user-chosen portion of UniqueName (UniqueName minus
// the trailing device-id suffix).
func (p Peer) Name() string {
	r := []rune(p.UniqueName)
	if len(r) <= DeviceIDSuffixLen {
		return ""
	}
	return string(r[:len(r)-DeviceIDSuffixLen])
}

// Equal compares two peers by device handle address when both have
// one; otherwise it falls back to the application-level identity,
// UniqueName, matching the spec's "application compares by
// unique_name" rule.
func Equal(a, b Peer) bool {
	if a.Handle.Address != "" && b.Handle.Address != "" {
		return a.Handle.Address == b.Handle.Address
	}
	return a.UniqueName == b.UniqueName
}

// Clone returns an independent copy of p. Since Peer holds no
// reference types beyond strings (immutable in Go), this is just a
// value copy; Clone exists to make call sites self-documenting about
// intentionally taking a snapshot.
func (p Peer) Clone() Peer { return p }
