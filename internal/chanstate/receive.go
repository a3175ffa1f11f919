package chanstate

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/seqnum"
	"github.com/srg/btcomm/internal/wire"
)

// onFrameReceived implements spec §4.6: dedupe against fully-delivered
// message_ids, apply/ignore/ack the sub-message against the partial
// message it belongs to, and hand off a completed message to the
// application callback once its FINAL frame arrives.
func (c *Channel) onFrameReceived(s *stream, raw []byte) {
	frame, err := wire.Decode(raw)
	if err != nil {
		c.log.WithError(err).Warn("malformed sub-message frame, dropping")
		return
	}

	frameSeq, err := seqnum.FromBytes(frame.SubSequence)
	if err != nil {
		c.log.WithError(err).Warn("malformed sub_sequence, dropping")
		return
	}

	// Pause outbound transmission while this sub-message is processed,
	// per spec §4.5's receive-path collision note.
	s.pause()
	defer s.resume()

	msgID := string(frame.MessageID)

	if s.recentlyDelivered.Contains(msgID) {
		// A full retransmit of an already-delivered message (its own ack
		// must have been lost); re-ack without re-delivering.
		c.ackFrame(s, frame)
		return
	}

	pm, ok := s.receiving.Get(msgID)
	if !ok {
		pm = &partialMessage{expectedNext: seqnum.New(wire.SubSequenceWidth)}
		s.receiving.Set(msgID, pm)
	}

	switch seqnum.Compare(frameSeq, pm.expectedNext) {
	case 0:
		pm.payload = append(pm.payload, frame.Payload...)
		pm.expectedNext.Increment()
	case -1:
		// duplicate retransmit of a sub-message already applied; ack
		// again without appending.
	default:
		c.log.WithFields(logrus.Fields{
			"message_id":   msgID,
			"sub_sequence": frame.SubSequence,
		}).Warn("out-of-order sub-message, dropping without ack")
		return
	}

	c.ackFrame(s, frame)

	if frame.Type != wire.Final {
		return
	}

	full := pm.payload
	s.receiving.Delete(msgID)
	s.recentlyDelivered.Add(msgID)

	m, err := message.Reassemble(c.Peer(), full)
	if err != nil {
		c.log.WithError(err).Warn("failed to reassemble completed message")
		return
	}

	if s.kind == TextKind {
		if c.cb.OnMessageReceived != nil {
			c.cb.OnMessageReceived(m, c.role)
		}
		return
	}
	if c.cb.OnDataReceived != nil {
		c.cb.OnDataReceived(m, c.role)
	}
}

// ackFrame always acknowledges the received frame's own
// (message_id, sub_sequence), whether or not it advanced reassembly —
// an out-of-order sub-message never reaches here since it returns
// before acking, leaving the sender's retransmit timer to recover it.
func (c *Channel) ackFrame(s *stream, frame wire.SubMessage) {
	ack := wire.Ack{MessageID: frame.MessageID, SubSequence: frame.SubSequence}
	if err := c.transmit(c.ctx, s.kind.ackChar(), wire.EncodeAck(ack)); err != nil {
		c.log.WithError(err).Warn("failed to send ack")
	}
}
