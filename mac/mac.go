// Package mac implements the transmit-result classification and the
// filtering half of the receive path shared by every slot type: address
// filtering and duplicate suppression of an already-parsed frame before
// it is handed up to the caller (auto-ACK discard and framer parse happen
// earlier, in rdc.Node.PacketInput). Grounded on the teacher's NMT frame
// dispatch (pkg/node/controller.go's incoming-frame switch), generalized
// from CANopen function codes to this layer's unicast/broadcast address
// filter.
package mac

import (
	"sync/atomic"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/dedupe"
	"github.com/gocrankshaft/rdc/link"
)

// Outcome maps a raw radio result onto the TxResult reported to a frame's
// SentFunc (spec.md §4.4, P5).
func Outcome(r link.RadioResult) rdc.TxResult {
	switch r {
	case link.RadioTxOK:
		return rdc.TxOK
	case link.RadioTxCollision:
		return rdc.TxCollision
	case link.RadioTxNoAck:
		return rdc.TxNoAck
	default:
		return rdc.TxErr
	}
}

// Receiver runs the receive-side filters: address filter, dedupe.
type Receiver struct {
	cfg    config.Config
	self   rdc.Address
	window *dedupe.Window

	filterDrops    atomic.Int64
	duplicateDrops atomic.Int64
}

// NewReceiver builds a Receiver for a node whose own address is self.
func NewReceiver(cfg config.Config, self rdc.Address) *Receiver {
	return &Receiver{
		cfg:    cfg,
		self:   self,
		window: dedupe.NewWindow(cfg.MaxSeqnos),
	}
}

// Process runs a just-parsed buffer through address filtering and
// duplicate suppression, returning the Frame to deliver upward and true,
// or false if the frame should be silently dropped (not addressed to
// this node, or a duplicate the caller has already delivered once).
//
// Process assumes the framer has already populated buf (Parse was
// already called by the caller); it does not itself invoke the Framer
// or check for auto-ACK frames, which rdc.Node.PacketInput discards
// before framer parsing runs.
func (r *Receiver) Process(buf link.PacketBuffer) (rdc.Frame, bool) {
	receiver := buf.Receiver()
	if r.cfg.AddressFilter && !receiver.IsBroadcast() && receiver != r.self {
		r.filterDrops.Add(1)
		return rdc.Frame{}, false
	}

	sender := buf.Sender()
	seq := buf.Seq()
	if r.cfg.DuplicateSuppression && !sender.IsBroadcast() {
		if r.window.Insert(sender, seq) {
			r.duplicateDrops.Add(1)
			return rdc.Frame{}, false
		}
	}

	return rdc.Frame{
		Sender:   sender,
		Receiver: receiver,
		Seq:      seq,
		Payload:  buf.Payload(),
	}, true
}

// FilterDrops returns the cumulative count of frames dropped because
// their receiver address was neither this node nor broadcast.
func (r *Receiver) FilterDrops() int64 { return r.filterDrops.Load() }

// DuplicateDrops returns the cumulative count of frames dropped as
// repeats of an already-seen (sender, seq) pair.
func (r *Receiver) DuplicateDrops() int64 { return r.duplicateDrops.Load() }
