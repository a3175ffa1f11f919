// Package gatt is the external BLE-stack contract (spec §1 "host
// operating system's BLE stack", §6). It is deliberately a thin,
// callback/interface boundary: the transport core (chanstate,
// connection, communicator) is written entirely against these
// interfaces, never against a concrete radio library. Package
// gatt/blehost supplies a go-ble/ble-backed implementation; package
// testutils supplies a deterministic in-memory one for tests.
package gatt

import (
	"context"

	"github.com/srg/btcomm/internal/peer"
)

// CharID identifies one of the fixed GATT characteristics of the
// single primary service described in spec §6. The concrete UUIDs
// backing each ID are an implementation-adapter concern.
type CharID int

const (
	CharConnectionRequest CharID = iota
	CharConnectionResponse
	CharMTURequest
	CharMTUResponse
	CharMessageReceive
	CharMessageSend
	CharReadResponseMessageReceived
	CharDataReceive
	CharDataSend
	CharReadResponseDataReceived
	CharNameUpdateReceive
	CharNameUpdateSend
	CharConnectionResumedReceive
	CharConnectionResumedSend
	CharDisconnectionReceive
	CharDisconnectionSend
)

func (c CharID) String() string {
	switch c {
	case CharConnectionRequest:
		return "CONNECTION_REQUEST"
	case CharConnectionResponse:
		return "CONNECTION_RESPONSE"
	case CharMTURequest:
		return "MTU_REQUEST"
	case CharMTUResponse:
		return "MTU_RESPONSE"
	case CharMessageReceive:
		return "MESSAGE_RECEIVE"
	case CharMessageSend:
		return "MESSAGE_SEND"
	case CharReadResponseMessageReceived:
		return "READ_RESPONSE_MESSAGE_RECEIVED"
	case CharDataReceive:
		return "DATA_RECEIVE"
	case CharDataSend:
		return "DATA_SEND"
	case CharReadResponseDataReceived:
		return "READ_RESPONSE_DATA_RECEIVED"
	case CharNameUpdateReceive:
		return "NAME_UPDATE_RECEIVE"
	case CharNameUpdateSend:
		return "NAME_UPDATE_SEND"
	case CharConnectionResumedReceive:
		return "CONNECTION_RESUMED_RECEIVE"
	case CharConnectionResumedSend:
		return "CONNECTION_RESUMED_SEND"
	case CharDisconnectionReceive:
		return "DISCONNECTION_RECEIVE"
	case CharDisconnectionSend:
		return "DISCONNECTION_SEND"
	default:
		return "UNKNOWN"
	}
}

// Advertisement is one scan-result observed while discovering (spec §4.8
// CENTRAL-side re-discovery, and initial peer discovery).
type Advertisement struct {
	Handle    peer.Handle
	LocalName string
	RSSI      int
}

// CentralLink is the host's view of one live link where the local
// side is the BLE central (initiator). All calls block until the
// underlying radio operation's own callback fires or ctx is done.
type CentralLink interface {
	// WriteCharacteristic performs a characteristic write and returns
	// once the host's write-completion callback fires; that callback
	// is the link-layer ack referenced throughout spec §4.5.
	WriteCharacteristic(ctx context.Context, ch CharID, data []byte) error
	// SubscribeNotify registers handler to be invoked for every
	// notification the remote (peripheral) side sends on ch.
	SubscribeNotify(ch CharID, handler func(data []byte)) error
	// RequestMTU asks the host to negotiate a larger link MTU and
	// returns the size actually negotiated.
	RequestMTU(ctx context.Context, size int) (int, error)
	RemoteHandle() peer.Handle
	Disconnect(ctx context.Context) error
	// OnDisconnected registers handler to be invoked once, the first
	// time the host reports this link went down without a local
	// Disconnect call having caused it (spec §4.8's unsolicited
	// STATE_DISCONNECTED). It is never called after a successful
	// Disconnect.
	OnDisconnected(handler func())
}

// PeripheralLink is the host's view of one live link where the local
// side is the BLE peripheral (acceptor).
type PeripheralLink interface {
	// NotifyCharacteristic sends a notification and returns once the
	// host's notification-sent callback fires.
	NotifyCharacteristic(ctx context.Context, ch CharID, data []byte) error
	// OnCharacteristicWrite registers handler to be invoked whenever
	// the remote (central) side writes ch.
	OnCharacteristicWrite(ch CharID, handler func(data []byte)) error
	CurrentMTU() int
	RemoteHandle() peer.Handle
	Disconnect(ctx context.Context) error
	// OnDisconnected mirrors CentralLink.OnDisconnected for the
	// peripheral role.
	OnDisconnected(handler func())
}

// CentralHost is the scan+dial side of the host BLE stack.
type CentralHost interface {
	StartScan(ctx context.Context, onFound func(Advertisement)) error
	StopScan() error
	Connect(ctx context.Context, h peer.Handle) (CentralLink, error)
}

// PeripheralHost is the advertise+accept side of the host BLE stack.
type PeripheralHost interface {
	StartAdvertise(ctx context.Context, localName string) error
	StopAdvertise() error
	// OnLink registers handler to be invoked for every inbound link
	// accepted by the host's GATT server.
	OnLink(handler func(PeripheralLink))
}

// RadioObserver lets the Communicator learn about host-level radio
// power state changes (spec §4.10).
type RadioObserver interface {
	OnRadioStateChanged(on bool)
}
