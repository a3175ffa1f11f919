// Package blehost is the go-ble/ble-backed implementation of package
// gatt, grounded on the teacher's internal/device/go-ble adapter
// (connection.go, scanner.go, advertisement.go). Unlike the teacher's
// client-only wrapper, this package drives both BLE roles: central
// (scan+dial, mirroring the teacher almost verbatim) and peripheral
// (advertise+serve, written fresh since the teacher never needed a
// GATT server).
package blehost

import (
	"github.com/go-ble/ble"

	"github.com/srg/btcomm/internal/gatt"
)

// serviceUUID is the single primary service every channel's
// characteristics live under (spec §6: "16-bit UUIDs at the
// implementer's discretion").
var serviceUUID = ble.UUID16(0xFEED)

var charUUIDs = map[gatt.CharID]ble.UUID{
	gatt.CharConnectionRequest:          ble.UUID16(0xFE01),
	gatt.CharConnectionResponse:         ble.UUID16(0xFE02),
	gatt.CharMTURequest:                 ble.UUID16(0xFE03),
	gatt.CharMTUResponse:                ble.UUID16(0xFE04),
	gatt.CharMessageReceive:             ble.UUID16(0xFE05),
	gatt.CharMessageSend:                ble.UUID16(0xFE06),
	gatt.CharReadResponseMessageReceived: ble.UUID16(0xFE07),
	gatt.CharDataReceive:                ble.UUID16(0xFE08),
	gatt.CharDataSend:                   ble.UUID16(0xFE09),
	gatt.CharReadResponseDataReceived:   ble.UUID16(0xFE0A),
	gatt.CharNameUpdateReceive:          ble.UUID16(0xFE0B),
	gatt.CharNameUpdateSend:             ble.UUID16(0xFE0C),
	gatt.CharConnectionResumedReceive:   ble.UUID16(0xFE0D),
	gatt.CharConnectionResumedSend:      ble.UUID16(0xFE0E),
	gatt.CharDisconnectionReceive:       ble.UUID16(0xFE0F),
	gatt.CharDisconnectionSend:          ble.UUID16(0xFE10),
}

// writeChars are characteristics a BLE central writes to (spec §6's
// "C->P write" entries), plus the ack characteristics, which a
// central also writes when acking peripheral-sent data.
var writeChars = map[gatt.CharID]bool{
	gatt.CharConnectionRequest:          true,
	gatt.CharMTURequest:                 true,
	gatt.CharMessageReceive:             true,
	gatt.CharDataReceive:                true,
	gatt.CharNameUpdateReceive:          true,
	gatt.CharConnectionResumedReceive:   true,
	gatt.CharDisconnectionReceive:       true,
	gatt.CharReadResponseMessageReceived: true,
	gatt.CharReadResponseDataReceived:   true,
}

// notifyChars are characteristics a BLE peripheral notifies on,
// including the ack characteristics (a peripheral also notifies when
// acking central-sent data).
var notifyChars = map[gatt.CharID]bool{
	gatt.CharConnectionResponse:          true,
	gatt.CharMTUResponse:                 true,
	gatt.CharMessageSend:                 true,
	gatt.CharDataSend:                    true,
	gatt.CharNameUpdateSend:              true,
	gatt.CharConnectionResumedSend:       true,
	gatt.CharDisconnectionSend:           true,
	gatt.CharReadResponseMessageReceived:  true,
	gatt.CharReadResponseDataReceived:    true,
}

func uuidToCharID() map[string]gatt.CharID {
	m := make(map[string]gatt.CharID, len(charUUIDs))
	for cid, u := range charUUIDs {
		m[u.String()] = cid
	}
	return m
}
