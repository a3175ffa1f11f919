// Package wire defines the on-wire constants and the SubMessage frame
// codec shared by every live Channel (spec §4.2, §6).
package wire

import "fmt"

// Frame width constants (spec §6).
const (
	MessageIDWidth    = 4
	SubSequenceWidth  = 3
	TypeWidth         = 1
	FrameHeaderWidth  = MessageIDWidth + SubSequenceWidth + TypeWidth // 8
	TargetMTU         = 247
	SubMessageTotal   = 192
	SubMessagePayload = SubMessageTotal - FrameHeaderWidth // 184
)

// Timer constants (spec §6).
const (
	HandshakeTimeoutSeconds    = 10
	AckTimeoutSeconds          = 1
	DisconnectAckTimeoutSecond = 5
	ReconnectionTimeoutSeconds = 30
)

// FrameType is the single-byte sub-message type discriminant.
type FrameType byte

const (
	NonFinal FrameType = '1'
	Final    FrameType = '2'
)

func (t FrameType) valid() bool { return t == NonFinal || t == Final }

// SubMessage is the decoded on-wire frame (spec §3 table).
type SubMessage struct {
	MessageID   []byte // MessageIDWidth printable bytes
	SubSequence []byte // SubSequenceWidth printable bytes
	Type        FrameType
	Payload     []byte
}

// Encode concatenates message_id ‖ sub_sequence ‖ type ‖ payload.
func Encode(m SubMessage) []byte {
	out := make([]byte, 0, FrameHeaderWidth+len(m.Payload))
	out = append(out, m.MessageID...)
	out = append(out, m.SubSequence...)
	out = append(out, byte(m.Type))
	out = append(out, m.Payload...)
	return out
}

// Decode parses a raw frame. It fails with an error wrapping
// ErrMalformedFrame when the frame is shorter than FrameHeaderWidth or
// carries an invalid type byte.
func Decode(raw []byte) (SubMessage, error) {
	if len(raw) < FrameHeaderWidth {
		return SubMessage{}, fmt.Errorf("wire: frame of %d bytes shorter than header (%d): %w", len(raw), FrameHeaderWidth, ErrMalformedFrame)
	}

	msgID := append([]byte(nil), raw[0:MessageIDWidth]...)
	subSeq := append([]byte(nil), raw[MessageIDWidth:MessageIDWidth+SubSequenceWidth]...)
	typ := FrameType(raw[MessageIDWidth+SubSequenceWidth])
	if !typ.valid() {
		return SubMessage{}, fmt.Errorf("wire: frame type byte 0x%02x: %w", byte(typ), ErrMalformedFrame)
	}

	payload := append([]byte(nil), raw[FrameHeaderWidth:]...)

	return SubMessage{
		MessageID:   msgID,
		SubSequence: subSeq,
		Type:        typ,
		Payload:     payload,
	}, nil
}
