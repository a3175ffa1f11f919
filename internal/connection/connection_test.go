package connection_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/srg/btcomm/internal/chanstate"
	"github.com/srg/btcomm/internal/connection"
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

func TestAcceptPeripheralLinkRegistersChannel(t *testing.T) {
	pair := testutils.NewLinkedPair(peer.Handle{Address: "c"}, peer.Handle{Address: "p"})

	periphRec := testutils.NewRecorder()
	periphConn := connection.New(chanstate.Peripheral, quietLogger(), periphRec.Callbacks(), chanstate.DefaultTuning())
	ch := periphConn.AcceptPeripheralLink(pair.Peripheral)

	centralRec := testutils.NewRecorder()
	centralConn := connection.New(chanstate.Central, quietLogger(), centralRec.Callbacks(), chanstate.DefaultTuning())
	centralConn.AcceptCentralLink(pair.Central, testutils.NewPeer("carol##", ""))

	eventually(t, func() bool { return len(periphRec.ConnectionRequests()) == 1 })
	require.NoError(t, ch.Accept(context.Background()))

	eventually(t, func() bool { return periphConn.Len() == 1 })
	eventually(t, func() bool { return centralConn.Len() == 1 })
	eventually(t, func() bool { return len(centralConn.ConnectedPeers()) == 1 })
}

func TestSendMessageFansOutToMatchingPeerOnly(t *testing.T) {
	pairA := testutils.NewLinkedPair(peer.Handle{Address: "ca"}, peer.Handle{Address: "pa"})
	pairB := testutils.NewLinkedPair(peer.Handle{Address: "cb"}, peer.Handle{Address: "pb"})

	centralRec := testutils.NewRecorder()
	centralConn := connection.New(chanstate.Central, quietLogger(), centralRec.Callbacks(), chanstate.DefaultTuning())

	periphRecA := testutils.NewRecorder()
	periphConnA := connection.New(chanstate.Peripheral, quietLogger(), periphRecA.Callbacks(), chanstate.DefaultTuning())
	chA := periphConnA.AcceptPeripheralLink(pairA.Peripheral)

	periphRecB := testutils.NewRecorder()
	periphConnB := connection.New(chanstate.Peripheral, quietLogger(), periphRecB.Callbacks(), chanstate.DefaultTuning())
	chB := periphConnB.AcceptPeripheralLink(pairB.Peripheral)

	centralConn.AcceptCentralLink(pairA.Central, testutils.NewPeer("dave##", ""))
	centralConn.AcceptCentralLink(pairB.Central, testutils.NewPeer("erin##", ""))

	eventually(t, func() bool { return len(periphRecA.ConnectionRequests()) == 1 })
	eventually(t, func() bool { return len(periphRecB.ConnectionRequests()) == 1 })
	require.NoError(t, chA.Accept(context.Background()))
	require.NoError(t, chB.Accept(context.Background()))

	eventually(t, func() bool { return len(centralConn.ConnectedPeers()) == 2 })

	target := periphRecB.ConnectionRequests()[0]
	m, err := message.New("T", []byte("for erin only"), &target)
	require.NoError(t, err)
	require.NoError(t, centralConn.SendMessage(m))

	eventually(t, func() bool { return len(periphRecB.Messages()) == 1 })
	require.Len(t, periphRecA.Messages(), 0)
}

func TestDisconnectAllTearsDownEveryChannel(t *testing.T) {
	pair := testutils.NewLinkedPair(peer.Handle{Address: "c"}, peer.Handle{Address: "p"})

	periphRec := testutils.NewRecorder()
	periphConn := connection.New(chanstate.Peripheral, quietLogger(), periphRec.Callbacks(), chanstate.DefaultTuning())
	ch := periphConn.AcceptPeripheralLink(pair.Peripheral)

	centralRec := testutils.NewRecorder()
	centralConn := connection.New(chanstate.Central, quietLogger(), centralRec.Callbacks(), chanstate.DefaultTuning())
	centralConn.AcceptCentralLink(pair.Central, testutils.NewPeer("frank##", ""))

	eventually(t, func() bool { return len(periphRec.ConnectionRequests()) == 1 })
	require.NoError(t, ch.Accept(context.Background()))
	eventually(t, func() bool { return len(centralRec.Connected()) == 1 })

	centralConn.DisconnectAll(context.Background())
	eventually(t, func() bool { return len(centralRec.Disconnected()) == 1 })
	eventually(t, func() bool { return centralConn.Len() == 0 })
}

func TestDisconnectSinglePeerLeavesOthersConnected(t *testing.T) {
	pairA := testutils.NewLinkedPair(peer.Handle{Address: "ca2"}, peer.Handle{Address: "pa2"})
	pairB := testutils.NewLinkedPair(peer.Handle{Address: "cb2"}, peer.Handle{Address: "pb2"})

	centralRec := testutils.NewRecorder()
	centralConn := connection.New(chanstate.Central, quietLogger(), centralRec.Callbacks(), chanstate.DefaultTuning())

	periphRecA := testutils.NewRecorder()
	periphConnA := connection.New(chanstate.Peripheral, quietLogger(), periphRecA.Callbacks(), chanstate.DefaultTuning())
	chA := periphConnA.AcceptPeripheralLink(pairA.Peripheral)

	periphRecB := testutils.NewRecorder()
	periphConnB := connection.New(chanstate.Peripheral, quietLogger(), periphRecB.Callbacks(), chanstate.DefaultTuning())
	chB := periphConnB.AcceptPeripheralLink(pairB.Peripheral)

	peerA := testutils.NewPeer("gail##", "")
	centralConn.AcceptCentralLink(pairA.Central, peerA)
	centralConn.AcceptCentralLink(pairB.Central, testutils.NewPeer("hank##", ""))

	eventually(t, func() bool { return len(periphRecA.ConnectionRequests()) == 1 })
	eventually(t, func() bool { return len(periphRecB.ConnectionRequests()) == 1 })
	require.NoError(t, chA.Accept(context.Background()))
	require.NoError(t, chB.Accept(context.Background()))
	eventually(t, func() bool { return len(centralConn.ConnectedPeers()) == 2 })

	require.NoError(t, centralConn.Disconnect(context.Background(), peerA))

	eventually(t, func() bool { return len(centralConn.ConnectedPeers()) == 1 })
	require.Equal(t, "hank##", centralConn.ConnectedPeers()[0].UniqueName)
}
