package wire_test

import (
	"testing"

	"github.com/srg/btcomm/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := wire.SubMessage{
		MessageID:   []byte("!!!!"),
		SubSequence: []byte("!!!"),
		Type:        wire.Final,
		Payload:     []byte("ahi"),
	}

	raw := wire.Encode(m)
	require.Len(t, raw, wire.FrameHeaderWidth+3)

	got, err := wire.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, m.MessageID, got.MessageID)
	require.Equal(t, m.SubSequence, got.SubSequence)
	require.Equal(t, m.Type, got.Type)
	require.Equal(t, m.Payload, got.Payload)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, err := wire.Decode([]byte("short"))
	require.ErrorIs(t, err, wire.ErrMalformedFrame)
}

func TestDecodeRejectsBadType(t *testing.T) {
	raw := append([]byte("!!!!!!!"), 'X')
	_, err := wire.Decode(raw)
	require.ErrorIs(t, err, wire.ErrMalformedFrame)
}

func TestDecodeEmptyPayloadAllowed(t *testing.T) {
	raw := append([]byte("!!!!!!!"), byte(wire.NonFinal))
	got, err := wire.Decode(raw)
	require.NoError(t, err)
	require.Empty(t, got.Payload)
}
