package seqnum_test

import (
	"testing"

	"github.com/srg/btcomm/internal/seqnum"
	"github.com/stretchr/testify/require"
)

func TestNewIsZero(t *testing.T) {
	n := seqnum.New(4)
	require.Equal(t, "!!!!", n.String())
	require.False(t, n.IsMax())
}

func TestIncrementCarries(t *testing.T) {
	n, err := seqnum.FromBytes([]byte("!!~"))
	require.NoError(t, err)

	wrapped := n.Increment()
	require.False(t, wrapped)
	require.Equal(t, "!\"!", n.String())
}

func TestIncrementWraps(t *testing.T) {
	n := seqnum.New(2)
	for !n.IsMax() {
		n.Increment()
	}
	wrapped := n.Increment()
	require.True(t, wrapped)
	require.Equal(t, "!!", n.String())
}

func TestIncrementComposedKEqualsPlusK(t *testing.T) {
	start, err := seqnum.FromBytes([]byte("!!!!"))
	require.NoError(t, err)

	a := start.Clone()
	for i := 0; i < 137; i++ {
		a.Increment()
	}

	// 137 = 1*94 + 43: third digit '!'+1, last digit '!'+43.
	b, err := seqnum.FromBytes([]byte("!!\"L"))
	require.NoError(t, err)

	require.True(t, seqnum.Equal(a, b))
}

func TestCompareIsTotalOrder(t *testing.T) {
	lo, err := seqnum.FromBytes([]byte("!!!"))
	require.NoError(t, err)
	hi, err := seqnum.FromBytes([]byte("!!\""))
	require.NoError(t, err)

	require.Equal(t, -1, seqnum.Compare(lo, hi))
	require.Equal(t, 1, seqnum.Compare(hi, lo))
	require.Equal(t, 0, seqnum.Compare(lo, lo.Clone()))
}

func TestCloneIsIndependent(t *testing.T) {
	n := seqnum.New(3)
	c := n.Clone()
	n.Increment()
	require.False(t, seqnum.Equal(n, c))
}

func TestFromBytesRejectsOutOfRangeByte(t *testing.T) {
	_, err := seqnum.FromBytes([]byte{0x20, 0x41})
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	n := seqnum.New(4)
	n.Increment()
	n.Increment()

	round, err := seqnum.FromBytes(n.Bytes())
	require.NoError(t, err)
	require.True(t, seqnum.Equal(n, round))
}
