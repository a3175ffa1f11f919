package wire

import "fmt"

// AckWidth is the width of an application-level ack frame written to
// READ_RESPONSE_MESSAGE_RECEIVED / READ_RESPONSE_DATA_RECEIVED: just
// the (message_id, sub_sequence) pair being acknowledged (spec §4.5,
// §4.6 step 4), no type or payload.
const AckWidth = MessageIDWidth + SubSequenceWidth

// Ack is the decoded application-level acknowledgement frame.
type Ack struct {
	MessageID   []byte
	SubSequence []byte
}

// EncodeAck concatenates message_id ‖ sub_sequence.
func EncodeAck(a Ack) []byte {
	out := make([]byte, 0, AckWidth)
	out = append(out, a.MessageID...)
	out = append(out, a.SubSequence...)
	return out
}

// DecodeAck parses a previously encoded ack frame.
func DecodeAck(raw []byte) (Ack, error) {
	if len(raw) != AckWidth {
		return Ack{}, fmt.Errorf("wire: ack frame of %d bytes, want %d: %w", len(raw), AckWidth, ErrMalformedFrame)
	}
	return Ack{
		MessageID:   append([]byte(nil), raw[0:MessageIDWidth]...),
		SubSequence: append([]byte(nil), raw[MessageIDWidth:]...),
	}, nil
}
