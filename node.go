package rdc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/contention"
	"github.com/gocrankshaft/rdc/link"
	"github.com/gocrankshaft/rdc/mac"
	"github.com/gocrankshaft/rdc/power"
	"github.com/gocrankshaft/rdc/slot"
	"github.com/gocrankshaft/rdc/txqueue"
)

// Stats is a snapshot of cumulative counters, exposed for diagnostics and
// the bench/sim CLIs.
type Stats struct {
	Sent           int
	Collisions     int
	NoAcks         int
	Errors         int
	Delivered      int
	QueueDrops     int
	OwnSlotDrops   int
	FilterDrops    int64
	DuplicateDrops int64
}

// Node is the driver facade: it wires a slot clock, per-slot transmit
// queues, the contention engine, the power policy and the receive
// pipeline around one half-duplex radio. It is the single entry point an
// application or a CLI uses to run this layer, grounded on the teacher's
// top-level node controller (pkg/node/controller.go) generalized from
// "NMT state machine driving CAN bus on/off" to "slot clock driving radio
// on/off".
type Node struct {
	cfg    config.Config
	self   Address
	nodeID NodeID

	framer link.Framer
	buf    link.PacketBuffer
	radio  link.Radio
	rt     link.RTimer
	wd     link.Watchdog
	prng   link.PRNG

	clock     *slot.Clock
	queues    *txqueue.Table
	contender *contention.Engine
	rx        *mac.Receiver

	log *logrus.Entry

	deliver func(Frame)

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	statsMu sync.Mutex
	stats   Stats

	seq atomic.Uint32
}

// Deps bundles the external collaborators a Node needs. All fields are
// required; Init returns rdc.ErrIllegalArgument if any are nil.
type Deps struct {
	Framer link.Framer
	Buffer link.PacketBuffer
	Radio  link.Radio
	RTimer link.RTimer
	Wdog   link.Watchdog
	PRNG   link.PRNG
}

// Init constructs and starts a Node for address self (whose last byte is
// its slot-owning NodeID), under cfg, wired to deps. deliver is called
// once per frame accepted by the receive pipeline (address-matched,
// non-duplicate); it must not block.
func Init(ctx context.Context, cfg config.Config, self Address, deps Deps, deliver func(Frame)) (*Node, error) {
	if deps.Framer == nil || deps.Buffer == nil || deps.Radio == nil || deps.RTimer == nil || deps.Wdog == nil || deps.PRNG == nil {
		return nil, ErrIllegalArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig
	}

	nodeID := self.NodeID()
	if int(nodeID) == cfg.BroadcastSlot {
		return nil, ErrInvalidConfig
	}
	nctx, cancel := context.WithCancel(ctx)

	n := &Node{
		cfg:       cfg,
		self:      self,
		nodeID:    nodeID,
		framer:    deps.Framer,
		buf:       deps.Buffer,
		radio:     deps.Radio,
		rt:        deps.RTimer,
		wd:        deps.Wdog,
		prng:      deps.PRNG,
		queues:    txqueue.NewTable(cfg.TotalSlots, cfg.QueueCapacity, slot.Index(nodeID)),
		contender: contention.NewEngine(cfg),
		rx:        mac.NewReceiver(cfg, self),
		deliver:   deliver,
		ctx:       nctx,
		cancel:    cancel,
		log:       logrus.WithField("node", nodeID),
	}

	n.prng.Seed(int64(nodeID))

	n.clock = slot.NewClock(cfg, deps.RTimer)
	n.radio.On()
	n.clock.Start(nctx, slot.Bias(cfg, int(nodeID)), n.onBoundary)

	n.log.Info("node started")
	return n, nil
}

// onBoundary is the slot clock's callback, run synchronously on the
// clock's own goroutine once per slot. It applies the power policy and,
// if this node has traffic queued for idx, runs the contention/transmit
// sequence before the slot ends.
func (n *Node) onBoundary(idx slot.Index) {
	own := slot.IsOwnSlot(idx, int(n.nodeID))
	broadcast := slot.IsBroadcastSlot(n.cfg, idx)
	pending := n.queues.Pending(idx)

	switch power.Decide(n.cfg, own, broadcast, pending) {
	case power.RadioOn:
		n.radio.On()
	case power.RadioStall:
		n.stallThenOn()
	case power.RadioCheck:
		n.radio.On()
		n.radio.ChannelClear()
		if !n.cfg.TurnOff {
			n.radio.Off()
		}
	case power.RadioOff:
		if !n.cfg.TurnOff {
			n.radio.Off()
		}
	}

	if n.cfg.WatchdogThreshold > 0 {
		n.wd.Kick()
	}

	if pending {
		n.transmitSlot(idx)
	}
}

// stallThenOn waits out the contention window before powering the radio
// on: a node that only owns this slot or is listening on the broadcast
// slot, with no traffic of its own to send, gains nothing by keying the
// radio before a contending sender could possibly have won (spec.md §4.2
// case 2).
func (n *Node) stallThenOn() {
	deadline := n.clock.LastTick() + int64(n.cfg.ContentionWindow())
	n.rt.SleepUntil(n.ctx, deadline)
	n.radio.On()
}

// transmitSlot drains every item queued for idx, arbitrating via the
// contention engine for each one. Any slot with pending traffic can have
// more than one transmitter in the same period — a regular slot is
// reserved to one destination, not one sender — so contention is not
// limited to the broadcast slot (spec.md §4.2/§4.4, scenario 3).
func (n *Node) transmitSlot(idx slot.Index) {
	for {
		item, ok := n.queues.Dequeue(idx)
		if !ok {
			return
		}
		n.sendOne(item)
	}
}

func (n *Node) sendOne(item txqueue.Item) {
	n.buf.SetSender(n.self)
	n.buf.SetReceiver(item.Receiver)
	n.buf.SetSeq(item.Seq)
	n.buf.SetAckRequested(n.cfg.AutoACK && !item.Receiver.IsBroadcast())
	n.buf.SetPayload(item.Payload)

	if _, err := n.framer.Create(); err != nil {
		n.recordResult(TxErrFatal)
		n.log.WithError(err).Warn("frame rejected by framer")
		if item.Sent != nil {
			item.Sent(TxErrFatal, item.User, 0)
		}
		return
	}

	n.prng.Seed(n.rt.Now()<<8 | int64(n.nodeID))
	result := n.contender.Arbitrate(n.ctx, n.radio, n.prng, n.rt, n.buf.Header())
	if !result.Won {
		n.recordResult(TxCollision)
		if item.Sent != nil {
			item.Sent(TxCollision, item.User, 1)
		}
		return
	}

	res := n.radio.Send(n.buf.ToQueueBuffer())
	outcome := mac.Outcome(res)
	n.recordResult(outcome)
	if item.Sent != nil {
		item.Sent(outcome, item.User, 1)
	}
}

func (n *Node) recordResult(r TxResult) {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	switch r {
	case TxOK:
		n.stats.Sent++
	case TxCollision:
		n.stats.Collisions++
	case TxNoAck:
		n.stats.NoAcks++
	default:
		n.stats.Errors++
	}
}

// SendPacket queues payload for delivery to receiver. It is enqueued into
// the slot receiver's address owns; sent is invoked exactly once: from
// the node's own goroutine once the frame has been handed to the radio
// (or rejected by the framer or by contention), or synchronously before
// SendPacket returns if the frame cannot be queued. SendPacket never
// blocks on the network and never retries (spec.md P5/I6).
func (n *Node) SendPacket(receiver Address, payload []byte, sent SentFunc, user any) error {
	if n.closed.Load() {
		return ErrClosed
	}
	if !n.clock.Running() {
		return ErrSchedulerDown
	}
	dest := slot.Index(receiver.NodeID())
	if receiver.IsBroadcast() {
		dest = slot.Index(n.cfg.BroadcastSlot)
	}
	item := txqueue.Item{
		Receiver: receiver,
		Payload:  payload,
		Seq:      n.nextSeq(),
		Sent:     sent,
		User:     user,
	}
	if err := n.queues.Enqueue(dest, item); err != nil {
		n.statsMu.Lock()
		// A frame rejected before it ever reaches the radio still gets
		// exactly one SentFunc callback, never a silent drop (spec.md §7).
		// Queue exhaustion is a transient-per-frame TxErr; sending to a
		// destination that maps to this node's own slot is a fatal
		// programming error on the caller's part, TxErrFatal.
		result := TxErr
		if err == ErrOwnSlot {
			n.stats.OwnSlotDrops++
			result = TxErrFatal
		} else {
			n.stats.QueueDrops++
		}
		n.statsMu.Unlock()
		if sent != nil {
			sent(result, user, 0)
		}
		return err
	}
	return nil
}

// SendList queues the same payload for every receiver in turn, returning
// the first error encountered (if any); queuing continues for the
// remaining receivers regardless.
func (n *Node) SendList(receivers []Address, payload []byte, sent SentFunc, user any) error {
	var first error
	for _, r := range receivers {
		if err := n.SendPacket(r, payload, sent, user); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (n *Node) nextSeq() uint8 {
	v := n.seq.Add(1)
	return uint8(v % uint32(n.cfg.MaxSeqnos))
}

// PacketInput feeds a raw received frame (as produced by the radio
// driver's Read, or delivered directly by link/virtual's in-process
// medium) through the receive pipeline: decode, framer parse, address
// filter, duplicate suppression, deliver.
func (n *Node) PacketInput(raw []byte) {
	if n.closed.Load() {
		return
	}
	// A bare auto-ACK is a hardware artifact of the PHY's own
	// acknowledgment handshake, not a frame for the upper layer; it never
	// reaches the framer.
	if n.cfg.AutoACK && len(raw) == n.cfg.AckLength {
		return
	}
	n.mu.Lock()
	n.buf.FromQueueBuffer(raw)
	if _, err := n.framer.Parse(); err != nil {
		n.mu.Unlock()
		n.log.WithError(err).Debug("dropping frame: framer parse failed")
		return
	}
	frame, ok := n.rx.Process(n.buf)
	n.mu.Unlock()
	if !ok {
		return
	}
	n.statsMu.Lock()
	n.stats.Delivered++
	n.statsMu.Unlock()
	if n.deliver != nil {
		n.deliver(frame)
	}
}

// On forces the radio on, bypassing the slot power policy. Intended for
// diagnostics; the next slot boundary will reassert the policy's
// decision.
func (n *Node) On() { n.radio.On() }

// Off forces the radio off, bypassing the slot power policy.
func (n *Node) Off() { n.radio.Off() }

// ChannelCheckInterval reports the full crankshaft period, the interval at
// which this node's own slot comes round again, or zero when
// cfg.AdvertiseWakeInterval is false.
func (n *Node) ChannelCheckInterval() time.Duration {
	if !n.cfg.AdvertiseWakeInterval {
		return 0
	}
	return n.cfg.CrankshaftPeriod
}

// Stats returns a snapshot of cumulative counters.
func (n *Node) Stats() Stats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	s := n.stats
	s.FilterDrops = n.rx.FilterDrops()
	s.DuplicateDrops = n.rx.DuplicateDrops()
	return s
}

// Close stops the slot clock and marks the node closed; further
// SendPacket/PacketInput calls return ErrClosed or are silently dropped.
func (n *Node) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	n.cancel()
	n.clock.Stop()
	n.radio.Off()
	n.log.Info("node closed")
	return nil
}
