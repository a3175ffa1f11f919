package blehost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srg/btcomm/internal/gatt"
)

var allCharIDs = []gatt.CharID{
	gatt.CharConnectionRequest,
	gatt.CharConnectionResponse,
	gatt.CharMTURequest,
	gatt.CharMTUResponse,
	gatt.CharMessageReceive,
	gatt.CharMessageSend,
	gatt.CharReadResponseMessageReceived,
	gatt.CharDataReceive,
	gatt.CharDataSend,
	gatt.CharReadResponseDataReceived,
	gatt.CharNameUpdateReceive,
	gatt.CharNameUpdateSend,
	gatt.CharConnectionResumedReceive,
	gatt.CharConnectionResumedSend,
	gatt.CharDisconnectionReceive,
	gatt.CharDisconnectionSend,
}

func TestEveryCharIDHasAUUID(t *testing.T) {
	for _, cid := range allCharIDs {
		_, ok := charUUIDs[cid]
		require.Truef(t, ok, "missing UUID mapping for %s", cid)
	}
}

func TestUUIDsAreUnique(t *testing.T) {
	seen := make(map[string]gatt.CharID, len(charUUIDs))
	for cid, u := range charUUIDs {
		if other, dup := seen[u.String()]; dup {
			t.Fatalf("%s and %s share UUID %s", cid, other, u.String())
		}
		seen[u.String()] = cid
	}
}

// The two ack characteristics are driven by both primitives depending
// on which role is acking: a central WRITES them when acking
// peripheral-sent data, a peripheral NOTIFIES them when acking
// central-sent data. Every other characteristic is one-directional.
func TestAckCharacteristicsAreDualPrimitive(t *testing.T) {
	for _, cid := range []gatt.CharID{gatt.CharReadResponseMessageReceived, gatt.CharReadResponseDataReceived} {
		require.Truef(t, writeChars[cid], "%s must be writable (central acking peripheral data)", cid)
		require.Truef(t, notifyChars[cid], "%s must be notifiable (peripheral acking central data)", cid)
	}
}

func TestNonAckCharacteristicsAreSinglePrimitive(t *testing.T) {
	ack := map[gatt.CharID]bool{
		gatt.CharReadResponseMessageReceived: true,
		gatt.CharReadResponseDataReceived:    true,
	}
	for _, cid := range allCharIDs {
		if ack[cid] {
			continue
		}
		if writeChars[cid] && notifyChars[cid] {
			t.Fatalf("%s is registered as both write and notify but isn't an ack characteristic", cid)
		}
	}
}

func TestUUIDToCharIDIsInverseOfCharUUIDs(t *testing.T) {
	lookup := uuidToCharID()
	require.Len(t, lookup, len(charUUIDs))
	for cid, u := range charUUIDs {
		got, ok := lookup[u.String()]
		require.True(t, ok)
		require.Equal(t, cid, got)
	}
}
