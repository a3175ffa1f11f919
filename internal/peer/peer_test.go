package peer_test

import (
	"strings"
	"testing"

	"github.com/srg/btcomm/internal/peer"
	"github.com/stretchr/testify/require"
)

func TestNewTruncatesToBudget(t *testing.T) {
	p := peer.New(strings.Repeat("a", 30), "xy", peer.Handle{Address: "AA:BB"})
	require.LessOrEqual(t, len(p.UniqueName), peer.MaxUniqueNameBytes)
	require.True(t, strings.HasSuffix(p.UniqueName, "xy"))
}

func TestNameStripsSuffix(t *testing.T) {
	p := peer.New("Alice", "q7", peer.Handle{})
	require.Equal(t, "Alice", p.Name())
}

func TestEqualByHandleWhenBothPresent(t *testing.T) {
	a := peer.Peer{UniqueName: "Aq7", Handle: peer.Handle{Address: "AA:BB"}}
	b := peer.Peer{UniqueName: "Bq9", Handle: peer.Handle{Address: "AA:BB"}}
	require.True(t, peer.Equal(a, b))
}

func TestEqualByUniqueNameWhenHandleMissing(t *testing.T) {
	a := peer.Peer{UniqueName: "Aq7"}
	b := peer.Peer{UniqueName: "Aq7"}
	c := peer.Peer{UniqueName: "Bq9"}
	require.True(t, peer.Equal(a, b))
	require.False(t, peer.Equal(a, c))
}

func TestCloneIsIndependentValue(t *testing.T) {
	p := peer.New("Bob", "z1", peer.Handle{Address: "11:22"})
	c := p.Clone()
	c.Connected = true
	require.False(t, p.Connected)
}
