package chanstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/btcomm/internal/chanstate"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/internal/testutils"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

// setupConnectedPair drives a full handshake over an in-memory
// LinkedPair and returns both sides already in the CONNECTED state.
func setupConnectedPair(t *testing.T) (*chanstate.Channel, *testutils.Recorder, *chanstate.Channel, *testutils.Recorder) {
	t.Helper()
	centralCh, centralRec, periphCh, periphRec, _ := setupConnectedPairWithLink(t)
	return centralCh, centralRec, periphCh, periphRec
}

// setupConnectedPairWithLink is setupConnectedPair plus the
// underlying LinkedPair itself, for tests that need to simulate
// link-level events (e.g. an unsolicited drop) on it directly.
func setupConnectedPairWithLink(t *testing.T) (*chanstate.Channel, *testutils.Recorder, *chanstate.Channel, *testutils.Recorder, *testutils.LinkedPair) {
	t.Helper()

	pair := testutils.NewLinkedPair(peer.Handle{Address: "central-addr"}, peer.Handle{Address: "peripheral-addr"})

	periphRec := testutils.NewRecorder()
	periphCh := chanstate.NewPeripheralChannel(quietLogger(), periphRec.Callbacks(), pair.Peripheral, chanstate.DefaultTuning())

	centralRec := testutils.NewRecorder()
	localPeer := testutils.NewPeer("alice##", "")
	centralCh := chanstate.NewCentralChannel(quietLogger(), centralRec.Callbacks(), pair.Central, localPeer, chanstate.DefaultTuning())

	eventually(t, func() bool { return len(periphRec.ConnectionRequests()) == 1 })
	require.NoError(t, periphCh.Accept(context.Background()))

	eventually(t, func() bool { return len(centralRec.Connected()) == 1 })
	eventually(t, func() bool { return len(periphRec.Connected()) == 1 })

	return centralCh, centralRec, periphCh, periphRec, pair
}

func TestHandshakeCentralAccepted(t *testing.T) {
	centralCh, centralRec, periphCh, periphRec := setupConnectedPair(t)
	require.NotNil(t, centralCh)
	require.NotNil(t, periphCh)

	require.Equal(t, "alice##", periphRec.ConnectionRequests()[0].UniqueName)
	require.True(t, centralRec.Connected()[0].Connected)
	require.True(t, periphRec.Connected()[0].Connected)
}

func TestHandshakeRejectedByPeripheral(t *testing.T) {
	pair := testutils.NewLinkedPair(peer.Handle{Address: "c"}, peer.Handle{Address: "p"})

	periphRec := testutils.NewRecorder()
	periphCh := chanstate.NewPeripheralChannel(quietLogger(), periphRec.Callbacks(), pair.Peripheral, chanstate.DefaultTuning())

	centralRec := testutils.NewRecorder()
	centralCh := chanstate.NewCentralChannel(quietLogger(), centralRec.Callbacks(), pair.Central, testutils.NewPeer("bob##", ""), chanstate.DefaultTuning())
	require.NotNil(t, centralCh)

	eventually(t, func() bool { return len(periphRec.ConnectionRequests()) == 1 })
	require.NoError(t, periphCh.Reject(context.Background()))

	eventually(t, func() bool { return len(centralRec.Failed()) == 1 })
	require.True(t, centralRec.Failed()[0].Rejected)
	eventually(t, func() bool { return len(periphRec.Failed()) == 1 })
}

func TestSendMessageCentralToPeripheral(t *testing.T) {
	centralCh, _, _, periphRec := setupConnectedPair(t)

	m, err := message.New("T", []byte("hello world"), nil)
	require.NoError(t, err)
	require.NoError(t, centralCh.SendMessage(m))

	eventually(t, func() bool { return len(periphRec.Messages()) == 1 })
	got := periphRec.Messages()[0]
	require.Equal(t, 'T', got.Header)
	require.Equal(t, []byte("hello world"), got.Payload)
}

func TestSendDataPeripheralToCentral(t *testing.T) {
	_, centralRec, periphCh, _ := setupConnectedPair(t)

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	m, err := message.New("B", payload, nil)
	require.NoError(t, err)
	require.NoError(t, periphCh.SendData(m))

	eventually(t, func() bool { return len(centralRec.Data()) == 1 })
	require.Equal(t, payload, centralRec.Data()[0].Payload)
}

func TestDisconnectTearsDownBothSides(t *testing.T) {
	centralCh, centralRec, _, periphRec := setupConnectedPair(t)

	require.NoError(t, centralCh.Disconnect(context.Background()))

	eventually(t, func() bool { return len(centralRec.Disconnected()) == 1 })
	eventually(t, func() bool { return len(periphRec.Disconnected()) == 1 })
}

func TestUnsolicitedDropEntersReconnecting(t *testing.T) {
	centralCh, centralRec, periphCh, periphRec, pair := setupConnectedPairWithLink(t)

	pair.DropUnsolicited()

	eventually(t, func() bool { return len(centralRec.Lost()) == 1 })
	eventually(t, func() bool { return len(periphRec.Lost()) == 1 })

	centralPeer := centralCh.Peer()
	require.True(t, centralPeer.Reconnecting)
	require.True(t, centralPeer.RequestingReconnection, "CENTRAL side re-initiates per spec §4.8 tie-breaking")

	periphPeer := periphCh.Peer()
	require.True(t, periphPeer.Reconnecting)
	require.False(t, periphPeer.RequestingReconnection, "ex-PERIPHERAL never initiates its own reconnect")
}

func TestResumeWithLinkRestoresConnectedAndDrainsQueue(t *testing.T) {
	centralCh, centralRec, periphCh, periphRec, pair := setupConnectedPairWithLink(t)

	pair.DropUnsolicited()
	eventually(t, func() bool { return len(centralRec.Lost()) == 1 })
	eventually(t, func() bool { return len(periphRec.Lost()) == 1 })

	m, err := message.New("Q", []byte("queued while reconnecting"), nil)
	require.NoError(t, err)
	require.NoError(t, centralCh.SendMessage(m))

	freshPair := testutils.NewLinkedPair(peer.Handle{Address: "central-addr-2"}, peer.Handle{Address: "peripheral-addr-2"})
	require.NoError(t, periphCh.ResumeWithLink(nil, freshPair.Peripheral))
	require.NoError(t, centralCh.ResumeWithLink(freshPair.Central, nil))

	eventually(t, func() bool { return len(centralRec.Resumed()) == 1 })
	eventually(t, func() bool { return len(periphRec.Resumed()) == 1 })
	require.True(t, centralCh.Peer().Connected)
	require.Equal(t, "peripheral-addr-2", centralCh.Peer().Handle.Address)

	// the queued frame's first send attempt races the old, now-dead
	// link; it only succeeds once the 1s ack_timeout retry hits the
	// freshly swapped-in link, so give this one extra headroom.
	require.Eventually(t, func() bool { return len(periphRec.Messages()) == 1 }, 4*time.Second, 10*time.Millisecond)
	require.Equal(t, []byte("queued while reconnecting"), periphRec.Messages()[0].Payload)
}

func TestSendMessageFailsAfterDisconnect(t *testing.T) {
	centralCh, centralRec, _, _ := setupConnectedPair(t)
	require.NoError(t, centralCh.Disconnect(context.Background()))
	eventually(t, func() bool { return len(centralRec.Disconnected()) == 1 })

	m, err := message.New("T", []byte("too late"), nil)
	require.NoError(t, err)
	require.ErrorIs(t, centralCh.SendMessage(m), chanstate.ErrNotConnected)
}
