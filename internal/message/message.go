// Package message implements the user-facing Message container and
// its split into on-wire sub-messages (spec §4.3).
package message

import (
	"fmt"
	"unicode/utf8"

	"github.com/srg/btcomm/internal/peer"
	"github.com/srg/btcomm/internal/seqnum"
	"github.com/srg/btcomm/internal/timerx"
	"github.com/srg/btcomm/internal/wire"
)

// Message is the application-facing unit of communication. Sender is
// filled in by the receiver on delivery and is never transmitted.
// Receiver nil means broadcast to every connected peer.
type Message struct {
	Sender   *peer.Peer
	Receiver *peer.Peer
	Header   rune
	Payload  []byte
}

// New validates header to exactly one rune (pad/truncate a
// multi-rune string down to its first rune) and constructs a Message.
func New(header string, payload []byte, receiver *peer.Peer) (Message, error) {
	r, size := timerx.FirstRune(header)
	if size == 0 {
		return Message{}, fmt.Errorf("message: header must contain exactly one UTF-8 character, got empty string")
	}
	return Message{
		Header:   r,
		Payload:  append([]byte(nil), payload...),
		Receiver: receiver,
	}, nil
}

// Clone returns a deep copy of m. The sender/receiver Peer snapshots
// are copied by value per peer.Peer's cheap-copy design.
func (m Message) Clone() Message {
	out := m
	out.Payload = append([]byte(nil), m.Payload...)
	if m.Sender != nil {
		s := *m.Sender
		out.Sender = &s
	}
	if m.Receiver != nil {
		r := *m.Receiver
		out.Receiver = &r
	}
	return out
}

// SplitIntoSubMessages produces the ordered, finite sequence of
// SubMessage frames needed to transmit m under the given message_id.
// The header rune is prefixed to the payload before chunking so that
// it always rides in the first frame (spec §4.3, §4.6 step 2).
func (m Message) SplitIntoSubMessages(messageID []byte) []wire.SubMessage {
	headerBytes := make([]byte, utf8.RuneLen(m.Header))
	utf8.EncodeRune(headerBytes, m.Header)

	toSplit := append(append([]byte(nil), headerBytes...), m.Payload...)
	chunks := timerx.SplitBytes(toSplit, wire.SubMessagePayload)

	subSeq := seqnum.New(wire.SubSequenceWidth)

	out := make([]wire.SubMessage, 0, len(chunks))
	for i, chunk := range chunks {
		typ := wire.NonFinal
		if i == len(chunks)-1 {
			typ = wire.Final
		}
		out = append(out, wire.SubMessage{
			MessageID:   append([]byte(nil), messageID...),
			SubSequence: subSeq.Bytes(),
			Type:        typ,
			Payload:     chunk,
		})
		subSeq.Increment()
	}
	return out
}

// Reassemble reconstructs a Message from a complete header+payload
// byte slice (the concatenation of a delivered message's frames) and
// the sender peer. It is the inverse of SplitIntoSubMessages combined
// with the receive-side reassembly in package chanstate.
func Reassemble(sender peer.Peer, full []byte) (Message, error) {
	r, size := utf8.DecodeRune(full)
	if r == utf8.RuneError && size <= 1 {
		return Message{}, fmt.Errorf("message: reassembled payload does not start with a valid UTF-8 header rune")
	}
	s := sender
	return Message{
		Sender:  &s,
		Header:  r,
		Payload: append([]byte(nil), full[size:]...),
	}, nil
}
