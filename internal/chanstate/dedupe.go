package chanstate

import (
	"sync"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// dedupeRing is the bounded, overwrite-oldest "recently_delivered_ids"
// set of spec §4.6: message_ids are monotonic per channel (modulo
// wrap), so remembering only the last `capacity` delivered ids is
// sufficient to recognize a duplicate retransmit. The ring buffer
// gives FIFO eviction order; the companion map gives O(1) membership.
type dedupeRing struct {
	mu    sync.Mutex
	buf   mpmc.RichOverlappedRingBuffer[string]
	set   map[string]struct{}
	cap   int
	count int
}

func newDedupeRing(capacity int) *dedupeRing {
	return &dedupeRing{
		buf: mpmc.NewOverlappedRingBuffer[string](capacity),
		set: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

func (d *dedupeRing) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.set[id]
	return ok
}

// Add records id as delivered, evicting the oldest entry first if the
// ring is at capacity.
func (d *dedupeRing) Add(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.set[id]; ok {
		return
	}

	if d.count >= d.cap {
		if old, err := d.buf.Dequeue(); err == nil {
			delete(d.set, old)
			d.count--
		}
	}

	if _, err := d.buf.EnqueueM(id); err == nil {
		d.set[id] = struct{}{}
		d.count++
	}
}
