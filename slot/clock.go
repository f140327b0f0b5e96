// Package slot implements the Crankshaft slot clock: the free-running
// periodic boundary generator every other package in this module
// synchronizes against. It is grounded on the teacher's node processor
// ticker loop (pkg/node/controller.go), generalized from a fixed NMT
// heartbeat period to an arbitrary slot duration with a two-tier boot
// bias (spec.md §4.1).
package slot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link"
)

// Index identifies a slot within one crankshaft period, in
// [0, TotalSlots).
type Index int

// unarmed is the sentinel Clock.last holds before the first boundary has
// fired, distinguishing "never armed" from "armed at tick 0".
const unarmed int64 = -1

// Clock drives slot boundaries off an link.RTimer. It owns no radio state
// itself; callers observe boundaries via the onBoundary callback passed to
// Start and read the current slot with Current.
type Clock struct {
	cfg config.Config
	rt  link.RTimer

	current atomic.Int64 // Index of the slot currently active
	last    atomic.Int64 // RTimer tick the current slot started at
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClock builds a slot clock for the given configuration, driven by rt.
func NewClock(cfg config.Config, rt link.RTimer) *Clock {
	c := &Clock{cfg: cfg, rt: rt}
	c.last.Store(unarmed)
	return c
}

// Current returns the slot index currently believed active. Before Start
// is called this is always 0.
func (c *Clock) Current() Index { return Index(c.current.Load()) }

// Running reports whether the clock's background loop is active.
func (c *Clock) Running() bool { return c.running.Load() }

// LastTick returns the RTimer tick the current slot started at, or
// unarmed (-1) before the first boundary fires.
func (c *Clock) LastTick() int64 { return c.last.Load() }

// Bias returns the two-tier boot bias added to a node's first scheduled
// slot boundary: a larger bias for node IDs in the lower half of the
// period, a smaller one for the upper half. Without it, nodes that boot
// at the same wall-clock instant would phase-align onto the same slot
// forever (spec.md §4.1).
func Bias(cfg config.Config, nodeID int) time.Duration {
	regular := cfg.RegularSlot()
	if nodeID < cfg.TotalSlots/2 {
		return regular / 2
	}
	return regular / 4
}

// Start begins the slot clock's background loop. The first boundary (slot
// 0) fires at now + RegularSlot + bias, not immediately, per the two-tier
// boot bias (spec.md §4.1); onBoundary is invoked synchronously, from the
// clock's own goroutine, once per slot boundary after that.
//
// Start returns once the background goroutine has been launched; call
// Stop (or cancel ctx) to halt it.
func (c *Clock) Start(ctx context.Context, bias time.Duration, onBoundary func(Index)) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.running.Store(true)
	go c.run(ctx, bias, onBoundary)
}

func (c *Clock) run(ctx context.Context, bias time.Duration, onBoundary func(Index)) {
	defer close(c.done)
	defer c.running.Store(false)

	regular := c.cfg.RegularSlot()

	first := c.rt.Now() + int64(regular) + int64(bias)
	c.rt.SleepUntil(ctx, first)
	if ctx.Err() != nil {
		return
	}
	c.advance(0, first, onBoundary)
	next := c.last.Load() + int64(regular)

	for {
		c.rt.SleepUntil(ctx, next)
		if ctx.Err() != nil {
			return
		}
		idx := (int64(c.current.Load()) + 1) % int64(c.cfg.TotalSlots)
		c.advance(Index(idx), next, onBoundary)
		next = c.last.Load() + int64(regular)
	}
}

// advance records the new current slot and the tick its boundary was
// scheduled for, then invokes the boundary callback. Re-arming from
// last+RegularSlot (rather than Now()+RegularSlot) keeps the clock
// free-running: a late wakeup does not compound into permanent drift
// (spec.md I1).
func (c *Clock) advance(idx Index, tick int64, onBoundary func(Index)) {
	c.current.Store(int64(idx))
	c.last.Store(tick)
	if onBoundary != nil {
		onBoundary(idx)
	}
}

// Stop halts the background loop and waits for it to exit.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsOwnSlot reports whether idx is the slot a node with the given id owns.
func IsOwnSlot(idx Index, nodeID int) bool { return int(idx) == nodeID }

// IsBroadcastSlot reports whether idx is the configured broadcast slot.
func IsBroadcastSlot(cfg config.Config, idx Index) bool {
	return int(idx) == cfg.BroadcastSlot
}
