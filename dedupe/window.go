// Package dedupe suppresses duplicate received unicasts. The original
// radio layer retransmits a frame whenever its sender heard no link-layer
// ACK even though the receiver actually got it, so every receiver keeps a
// small MRU window of recently seen (sender, sequence number) pairs, one
// window shared by all senders. Grounded on the teacher's duplicate-frame
// short-circuiting in its heartbeat consumer (pkg/heartbeat state-change
// suppression), adapted from "last value only" to a fixed-depth history
// of pairs (spec.md §4.3, P6/I4).
package dedupe

import "github.com/gocrankshaft/rdc"

type entry struct {
	sender rdc.Address
	seq    uint8
	valid  bool
}

// Window is a fixed-capacity, most-recently-used record of (sender, seq)
// pairs. It never allocates after construction: entries are held in a
// fixed array and evicted in least-recently-used order, mirroring the
// bounded-memory discipline used throughout this layer (spec.md §9).
type Window struct {
	entries []entry // index 0 is most recently used
}

// NewWindow builds a Window holding up to depth entries.
func NewWindow(depth int) *Window {
	if depth < 1 {
		depth = 1
	}
	return &Window{entries: make([]entry, depth)}
}

// Seen reports whether (sender, seq) is already present in the window,
// without modifying it.
func (w *Window) Seen(sender rdc.Address, seq uint8) bool {
	for _, e := range w.entries {
		if e.valid && e.sender == sender && e.seq == seq {
			return true
		}
	}
	return false
}

// Insert records (sender, seq) as most recently seen, evicting the
// least-recently-used entry if the window is already full. It reports
// whether the pair was already present (a duplicate); callers typically
// call Seen first and only Insert on a miss, but Insert is idempotent
// either way.
func (w *Window) Insert(sender rdc.Address, seq uint8) bool {
	for i, e := range w.entries {
		if e.valid && e.sender == sender && e.seq == seq {
			w.promote(i)
			return true
		}
	}
	w.entries[len(w.entries)-1] = entry{sender: sender, seq: seq, valid: true}
	w.promote(len(w.entries) - 1)
	return false
}

// promote moves the entry at index i to the front, shifting the
// intervening entries down by one (a shift-register MRU update).
func (w *Window) promote(i int) {
	e := w.entries[i]
	copy(w.entries[1:i+1], w.entries[0:i])
	w.entries[0] = e
}
