package chanstate

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/btcomm/internal/gatt"
	"github.com/srg/btcomm/internal/groutine"
	"github.com/srg/btcomm/internal/message"
	"github.com/srg/btcomm/internal/seqnum"
	"github.com/srg/btcomm/internal/wire"
)

// Kind distinguishes the text and binary sub-message streams, which
// per spec §3/§4.5 are independent: separate characteristics,
// separate message_id counters, separate outbound queues.
type Kind int

const (
	TextKind Kind = iota
	BinaryKind
)

func (k Kind) String() string {
	if k == TextKind {
		return "text"
	}
	return "data"
}

func (k Kind) receiveChar() gatt.CharID {
	if k == TextKind {
		return gatt.CharMessageReceive
	}
	return gatt.CharDataReceive
}

func (k Kind) sendChar() gatt.CharID {
	if k == TextKind {
		return gatt.CharMessageSend
	}
	return gatt.CharDataSend
}

func (k Kind) ackChar() gatt.CharID {
	if k == TextKind {
		return gatt.CharReadResponseMessageReceived
	}
	return gatt.CharReadResponseDataReceived
}

// outboundJob is one complete application Message's worth of frames,
// queued for strictly-ordered, acked transmission on one stream.
type outboundJob struct {
	frames []wire.SubMessage
	done   func(error)
}

// partialMessage is the in-progress reassembly state for one
// message_id (spec §4.6).
type partialMessage struct {
	payload      []byte
	expectedNext *seqnum.Number
}

// stream holds the per-(channel,kind) outbound queue, in-flight ack
// tracking, and inbound reassembly state. Exactly one stream worker
// goroutine runs per stream for the channel's lifetime.
type stream struct {
	kind Kind
	ch   *Channel

	outgoingID *seqnum.Number

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []outboundJob
	paused  bool
	stopped bool

	ackCh chan wire.Ack

	receiving         *orderedmap.OrderedMap[string, *partialMessage]
	recentlyDelivered *dedupeRing
}

func newStream(ch *Channel, kind Kind) *stream {
	s := &stream{
		kind:              kind,
		ch:                ch,
		outgoingID:        seqnum.New(wire.MessageIDWidth),
		ackCh:             make(chan wire.Ack, 1),
		receiving:         orderedmap.New[string, *partialMessage](),
		recentlyDelivered: newDedupeRing(ch.tuning.recentlyDeliveredCapacity()),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *stream) start(ctx context.Context) {
	groutine.Go(ctx, "chanstate-stream-"+s.kind.String(), s.run)
}

// enqueue appends a new application message's frames to the tail of
// this stream's queue without a completion callback; enqueueWithDone
// is the variant whose done is invoked exactly once, with nil on
// success or an error if the channel tore down before delivery.
func (s *stream) enqueue(m message.Message) {
	id := s.outgoingID.Bytes()
	s.outgoingID.Increment()
	frames := m.SplitIntoSubMessages(id)

	s.mu.Lock()
	s.queue = append(s.queue, outboundJob{frames: frames})
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *stream) enqueueWithDone(m message.Message, done func(error)) {
	id := s.outgoingID.Bytes()
	s.outgoingID.Increment()
	frames := m.SplitIntoSubMessages(id)

	s.mu.Lock()
	s.queue = append(s.queue, outboundJob{frames: frames, done: done})
	s.cond.Signal()
	s.mu.Unlock()
}

// pause/resume implement spec §4.5's receive-path collision
// reduction: further transmission is paused while a frame is being
// processed on the receive path.
func (s *stream) pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *stream) resume() {
	s.mu.Lock()
	s.paused = false
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *stream) close() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, job := range queued {
		if job.done != nil {
			job.done(ErrNotConnected)
		}
	}
}

func (s *stream) run(ctx context.Context) {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 || s.paused {
			if s.stopped {
				s.mu.Unlock()
				return
			}
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		err := s.sendFrames(ctx, job.frames)
		if job.done != nil {
			job.done(err)
		}
	}
}

// sendFrames transmits frames strictly in order, one in flight at a
// time, retransmitting on ack_timeout until acked or the channel is
// torn down (spec §4.5).
func (s *stream) sendFrames(ctx context.Context, frames []wire.SubMessage) error {
	for _, frame := range frames {
		if err := s.sendOneFrame(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

func (s *stream) sendOneFrame(ctx context.Context, frame wire.SubMessage) error {
	raw := wire.Encode(frame)

	ackTimeout := s.ch.tuning.AckTimeout
	ackTimer := time.NewTimer(ackTimeout)
	defer ackTimer.Stop()

	for {
		if s.isStopped() {
			return ErrNotConnected
		}

		if err := s.ch.transmit(ctx, s.kind.receiveCharOrSendChar(s.ch.role), raw); err != nil {
			if s.isStopped() {
				return ErrNotConnected
			}
			// TransientLinkError: retry indefinitely while the link is up (spec §7).
		}

		ackTimer.Reset(ackTimeout)

		select {
		case ack := <-s.ackCh:
			if matchesFrame(ack, frame) {
				return nil
			}
			// stale ack for an earlier frame; loop round, which
			// retransmits this frame and restarts the ack timer.
			continue
		case <-ackTimer.C:
			continue // retransmit the same frame
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (k Kind) receiveCharOrSendChar(role Role) gatt.CharID {
	if role == Central {
		return k.receiveChar()
	}
	return k.sendChar()
}

func (s *stream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func matchesFrame(a wire.Ack, f wire.SubMessage) bool {
	return string(a.MessageID) == string(f.MessageID) && string(a.SubSequence) == string(f.SubSequence)
}

// deliverAck feeds an observed application-level ack to whatever
// sendOneFrame call is currently waiting.
func (s *stream) deliverAck(a wire.Ack) {
	select {
	case s.ackCh <- a:
	default:
		// a previous ack is still buffered (e.g. a very late duplicate);
		// this new ack is dropped. If it was the one the send loop waits
		// for, the loop times out and retransmits the frame.
	}
}
