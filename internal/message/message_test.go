package message_test

import (
	"testing"

	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesHeader(t *testing.T) {
	m, err := message.New("a", []byte("hi"), nil)
	require.NoError(t, err)
	require.Equal(t, 'a', m.Header)

	_, err = message.New("", []byte("hi"), nil)
	require.Error(t, err)
}

func TestSplitSingleChunk(t *testing.T) {
	m, err := message.New("a", []byte("hi"), nil)
	require.NoError(t, err)

	subs := m.SplitIntoSubMessages([]byte("!!!!"))
	require.Len(t, subs, 1)
	require.Equal(t, wire.Final, subs[0].Type)
	require.Equal(t, []byte("ahi"), subs[0].Payload)
	require.Equal(t, []byte("!!!"), subs[0].SubSequence)
}

func TestSplitMultiChunk(t *testing.T) {
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}
	m, err := message.New("x", payload, nil)
	require.NoError(t, err)

	subs := m.SplitIntoSubMessages([]byte("!!!!"))
	require.Len(t, subs, 3)
	require.Len(t, subs[0].Payload, 184)
	require.Len(t, subs[1].Payload, 184)
	require.Len(t, subs[2].Payload, 133) // 501 - 368
	require.Equal(t, wire.NonFinal, subs[0].Type)
	require.Equal(t, wire.NonFinal, subs[1].Type)
	require.Equal(t, wire.Final, subs[2].Type)

	// sub_sequence values are contiguous starting at 0
	require.Equal(t, []byte("!!!"), subs[0].SubSequence)
	require.Equal(t, []byte("!!\""), subs[1].SubSequence)
	require.Equal(t, []byte("!!#"), subs[2].SubSequence)
}

func TestSplitThenReassembleIsIdentity(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated to force multiple chunks. " +
		"the quick brown fox jumps over the lazy dog, repeated to force multiple chunks. " +
		"the quick brown fox jumps over the lazy dog, repeated to force multiple chunks.")
	m, err := message.New("z", payload, nil)
	require.NoError(t, err)

	subs := m.SplitIntoSubMessages([]byte("!!!!"))

	var full []byte
	for _, s := range subs {
		full = append(full, s.Payload...)
	}

	sender := peer.Peer{UniqueName: "Bq1"}
	got, err := message.Reassemble(sender, full)
	require.NoError(t, err)
	require.Equal(t, m.Header, got.Header)
	require.Equal(t, m.Payload, got.Payload)
}

func TestCloneDeepCopiesPayloadAndPeers(t *testing.T) {
	receiver := peer.Peer{UniqueName: "Cq2"}
	m, err := message.New("a", []byte("hi"), &receiver)
	require.NoError(t, err)

	c := m.Clone()
	c.Payload[0] = 'Z'
	c.Receiver.UniqueName = "changed"

	require.Equal(t, byte('h'), m.Payload[0])
	require.Equal(t, "Cq2", m.Receiver.UniqueName)
}
