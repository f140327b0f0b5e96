package rdc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link"
	"github.com/gocrankshaft/rdc/link/virtual"
)

func addr(b byte) rdc.Address {
	var a rdc.Address
	a[rdc.AddressLen-1] = b
	return a
}

type harness struct {
	node *rdc.Node

	mu      sync.Mutex
	frames  []rdc.Frame
	results []rdc.TxResult
}

func (h *harness) onDeliver(f rdc.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, f)
}

func (h *harness) onSent(result rdc.TxResult, user any, attempts int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

func (h *harness) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func newHarness(ctx context.Context, t *testing.T, cfg config.Config, medium *virtual.Medium, id byte) *harness {
	t.Helper()
	h := &harness{}

	buf := &virtual.PacketBuffer{}
	framer := &virtual.Framer{Buf: buf, MaxHeader: cfg.MaxStrobeSize}
	radio := virtual.NewRadio(medium, func(raw []byte) {
		h.node.PacketInput(raw)
	})

	node, err := rdc.Init(ctx, cfg, addr(id), rdc.Deps{
		Framer: framer,
		Buffer: buf,
		Radio:  radio,
		RTimer: virtual.NewWallRTimer(),
		Wdog:   &virtual.Watchdog{},
		PRNG:   virtual.NewPRNG(),
	}, h.onDeliver)
	if err != nil {
		t.Fatalf("node init: %v", err)
	}
	h.node = node
	return h
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.TotalSlots = 4
	cfg.CrankshaftPeriod = 40 * time.Millisecond
	cfg.BroadcastSlot = 0
	cfg.ContentionSlots = 2
	cfg.ContentionTicks = time.Millisecond
	cfg.ContentionPrepare = time.Millisecond
	cfg.QueueCapacity = 4
	return cfg
}

func TestUnicastDeliveryInOwnedSlot(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := newHarness(ctx, t, cfg, medium, 1)
	n2 := newHarness(ctx, t, cfg, medium, 2)
	defer n1.node.Close()
	defer n2.node.Close()

	err := n1.node.SendPacket(addr(2), []byte("hello"), n1.onSent, nil)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool { return n2.deliveredCount() == 1 }, time.Second, time.Millisecond)

	n2.mu.Lock()
	got := n2.frames[0]
	n2.mu.Unlock()
	assert.Equal(t, []byte("hello"), got.Payload)
	assert.Equal(t, addr(1), got.Sender)

	assert.Eventually(t, func() bool {
		n1.mu.Lock()
		defer n1.mu.Unlock()
		return len(n1.results) == 1
	}, time.Second, time.Millisecond)
}

func TestBroadcastReachesAllListeners(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := newHarness(ctx, t, cfg, medium, 1)
	n2 := newHarness(ctx, t, cfg, medium, 2)
	n3 := newHarness(ctx, t, cfg, medium, 3)
	defer n1.node.Close()
	defer n2.node.Close()
	defer n3.node.Close()

	err := n1.node.SendPacket(rdc.NullAddress, []byte("all"), n1.onSent, nil)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return n2.deliveredCount() >= 1 && n3.deliveredCount() >= 1
	}, 2*time.Second, time.Millisecond)
}

func TestQueueFullReportsErrAndCounts(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueCapacity = 1
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := newHarness(ctx, t, cfg, medium, 1)
	defer n1.node.Close()

	err1 := n1.node.SendPacket(addr(3), []byte("a"), nil, nil)
	err2 := n1.node.SendPacket(addr(3), []byte("b"), nil, nil)

	assert.NoError(t, err1)
	assert.ErrorIs(t, err2, rdc.ErrQueueFull)
	assert.Equal(t, 1, n1.node.Stats().QueueDrops)
}

func TestSendToOwnSlotIsRejected(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n1 := newHarness(ctx, t, cfg, medium, 1)
	defer n1.node.Close()

	err := n1.node.SendPacket(addr(1), []byte("loop"), nil, nil)
	assert.ErrorIs(t, err, rdc.ErrOwnSlot)
}

// ccaCountingRadio wraps a link.Radio and counts ChannelClear calls, to
// observe whether a send actually went through the contention engine's
// CCA rather than going straight to the radio.
type ccaCountingRadio struct {
	link.Radio
	mu     sync.Mutex
	checks int
}

func (r *ccaCountingRadio) ChannelClear() bool {
	r.mu.Lock()
	r.checks++
	r.mu.Unlock()
	return r.Radio.ChannelClear()
}

func (r *ccaCountingRadio) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checks
}

// TestUnicastSendGoesThroughContention covers scenario 3 (spec.md §8): a
// regular (non-broadcast) slot is shared by whichever nodes have traffic
// queued for its owner, so it must arbitrate via the contention engine
// exactly like the broadcast slot does. Previously a unicast
// destination bypassed contention and went straight to the radio, so
// ChannelClear was never called; this asserts it now is.
func TestUnicastSendGoesThroughContention(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := &virtual.PacketBuffer{}
	framer := &virtual.Framer{Buf: buf, MaxHeader: cfg.MaxStrobeSize}

	var node *rdc.Node
	inner := virtual.NewRadio(medium, func(raw []byte) {
		if node != nil {
			node.PacketInput(raw)
		}
	})
	radio := &ccaCountingRadio{Radio: inner}

	node, err := rdc.Init(ctx, cfg, addr(1), rdc.Deps{
		Framer: framer,
		Buffer: buf,
		Radio:  radio,
		RTimer: virtual.NewWallRTimer(),
		Wdog:   &virtual.Watchdog{},
		PRNG:   virtual.NewPRNG(),
	}, func(rdc.Frame) {})
	if err != nil {
		t.Fatalf("node init: %v", err)
	}
	defer node.Close()

	err = node.SendPacket(addr(2), []byte("hi"), nil, nil)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool { return radio.count() > 0 }, time.Second, time.Millisecond)
}

// TestMalformedFrameDroppedByFramerParse covers the reception path's now
// mandatory framer.Parse step: a buffer shorter than the fixed header
// must be rejected there, before address filtering or duplicate
// suppression ever see it.
func TestMalformedFrameDroppedByFramerParse(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n2 := newHarness(ctx, t, cfg, medium, 2)
	defer n2.node.Close()

	n2.node.PacketInput([]byte{0x01, 0x02, 0x03})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, n2.deliveredCount())
}

func TestDuplicateRetransmissionSuppressedOnce(t *testing.T) {
	cfg := fastConfig()
	medium := virtual.NewMedium(cfg.ContentionWindow())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n2 := newHarness(ctx, t, cfg, medium, 2)
	defer n2.node.Close()

	sender := &virtual.PacketBuffer{}
	sender.SetSender(addr(9))
	sender.SetReceiver(addr(2))
	sender.SetSeq(5)
	sender.SetPayload([]byte("retry"))
	raw := sender.ToQueueBuffer()

	n2.node.PacketInput(raw)
	n2.node.PacketInput(raw)

	assert.Eventually(t, func() bool { return n2.deliveredCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, n2.deliveredCount())
}
