// Package txqueue holds the per-slot outgoing frame queues. It replaces
// the original's heap-allocated, interrupt-context-mutated linked lists
// with fixed-capacity ring buffers, per spec.md §9's design note: bounded
// memory and an observable drop counter instead of a malloc that can fail
// silently from interrupt context. Grounded on the teacher's internal
// FIFO (internal/fifo.go), generalized from a single byte-oriented ring
// to one ring per slot, each holding Items rather than raw bytes.
package txqueue

import (
	"sync"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/slot"
)

// Item is one queued outgoing frame, staged for transmission in a
// specific slot.
type Item struct {
	Receiver rdc.Address
	Payload  []byte
	Seq      uint8
	Sent     rdc.SentFunc
	User     any
}

// Ring is a fixed-capacity circular buffer of Items. A full ring refuses
// further pushes rather than growing or overwriting (spec.md §9).
type Ring struct {
	buf   []Item
	head  int // next slot to pop
	count int
}

// NewRing allocates a ring with room for capacity items.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Item, capacity)}
}

// Push appends to the ring, reporting false if it is already full.
func (r *Ring) Push(it Item) bool {
	if r.count == len(r.buf) {
		return false
	}
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = it
	r.count++
	return true
}

// Pop removes and returns the oldest item, reporting false if empty.
func (r *Ring) Pop() (Item, bool) {
	if r.count == 0 {
		return Item{}, false
	}
	it := r.buf[r.head]
	r.buf[r.head] = Item{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return it, true
}

// Len reports the number of queued items.
func (r *Ring) Len() int { return r.count }

// Full reports whether the ring has no remaining capacity.
func (r *Ring) Full() bool { return r.count == len(r.buf) }

// Table is the full set of per-slot outgoing rings, one per slot index.
type Table struct {
	mu      sync.Mutex
	rings   []*Ring
	ownSlot slot.Index
	dropped int
}

// NewTable builds a Table with totalSlots rings of the given per-slot
// capacity. ownSlot is this node's own slot index; SPEC_FULL.md/I3
// forbids enqueuing to it (a node cannot transmit to itself in its own
// receive window).
func NewTable(totalSlots, capacity int, ownSlot slot.Index) *Table {
	rings := make([]*Ring, totalSlots)
	for i := range rings {
		rings[i] = NewRing(capacity)
	}
	return &Table{rings: rings, ownSlot: ownSlot}
}

// Enqueue stages it for transmission in slotIdx. It fails with
// rdc.ErrOwnSlot if slotIdx is this node's own slot, or rdc.ErrQueueFull
// if that slot's ring has no room; in the latter case the drop is
// recorded and observable via Dropped.
func (t *Table) Enqueue(slotIdx slot.Index, it Item) error {
	if slotIdx == t.ownSlot {
		return rdc.ErrOwnSlot
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slotIdx) < 0 || int(slotIdx) >= len(t.rings) {
		return rdc.ErrIllegalArgument
	}
	if !t.rings[slotIdx].Push(it) {
		t.dropped++
		return rdc.ErrQueueFull
	}
	return nil
}

// Dequeue pops the oldest item queued for slotIdx, if any.
func (t *Table) Dequeue(slotIdx slot.Index) (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slotIdx) < 0 || int(slotIdx) >= len(t.rings) {
		return Item{}, false
	}
	return t.rings[slotIdx].Pop()
}

// Pending reports whether slotIdx has at least one item queued, used by
// the power policy to decide whether to key the radio for an otherwise
// unowned slot.
func (t *Table) Pending(slotIdx slot.Index) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slotIdx) < 0 || int(slotIdx) >= len(t.rings) {
		return false
	}
	return t.rings[slotIdx].Len() > 0
}

// Dropped returns the cumulative count of items dropped for lack of
// queue space.
func (t *Table) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
