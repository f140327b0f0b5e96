// Package contention implements the in-slot contention protocol used
// when two or more nodes have traffic queued for the same slot (the
// broadcast slot, most often). Each contender draws a pseudo-random
// sub-slot, listens for anyone with an earlier draw, and jams the
// channel with filler-padded strobes for every sub-slot from its own
// draw onward so that later contenders back off. Grounded on the
// teacher's PDO-style event timer arbitration
// (pkg/pdo/pdo_sync_rt.go-style prepare/send staging) adapted from a
// fixed event offset to a randomized one.
package contention

import (
	"context"
	"math"

	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link"
)

// Result is the outcome of one arbitration attempt.
type Result struct {
	// Round is the sub-slot this node drew, in [0, ContentionSlots).
	Round int
	// Won reports whether this node reached the end of the contention
	// window without detecting a stronger (earlier-drawing) contender;
	// if true, the caller should proceed to transmit its real frame.
	Won bool
	// Collided reports whether the CCA found the channel busy or the
	// strobe transmit returned anything other than RadioTxOK.
	Collided bool
}

// Engine runs the contention protocol with a fixed configuration.
type Engine struct {
	cfg config.Config
}

// NewEngine builds a contention Engine.
func NewEngine(cfg config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// MapRand maps a raw PRNG draw onto a sub-slot in [0, slots) by splitting
// the uint32 range into slots equal brackets; the last bracket also takes
// any remainder. Seeding the PRNG from (current tick, node id) before
// calling Uint32 is the caller's responsibility, so that two nodes never
// draw correlated values merely by virtue of having started at the same
// time.
func MapRand(x uint32, slots int) int {
	if slots <= 0 {
		return 0
	}
	bracket := (uint64(math.MaxUint32) + 1) / uint64(slots)
	r := int(uint64(x) / bracket)
	if r >= slots {
		r = slots - 1
	}
	return r
}

// BuildStrobe constructs the filler-padded strobe frame sent for sub-slot
// r: header bytes followed by FillerByte padding out to exactly the
// number of bytes needed to keep the channel busy from sub-slot r through
// the end of the contention window, capped at MaxStrobeSize. Earlier
// rounds produce longer strobes (they have more of the window left to
// jam through); the last round produces the shortest, just long enough
// to cover its own CCA size.
func BuildStrobe(header []byte, r int, cfg config.Config) []byte {
	size := cfg.CCAContentionSize - len(header) + cfg.ContentionSize*(cfg.ContentionSlots-1-r)
	if size > cfg.MaxStrobeSize {
		size = cfg.MaxStrobeSize
	}
	if size < len(header) {
		size = len(header)
	}
	out := make([]byte, 0, size)
	out = append(out, header...)
	for len(out) < size {
		out = append(out, cfg.FillerByte)
	}
	return out
}

// Arbitrate runs the full contention protocol against radio, using prng
// (already seeded by the caller) to draw this node's sub-slot and rt to
// pace the sub-slot ticks. header is the (already framed) strobe header;
// it carries no payload.
//
// The protocol:
//  1. Draw r = MapRand(prng.Uint32(), ContentionSlots).
//  2. Wait r contention ticks, yielding to any contender with a smaller
//     draw.
//  3. After ContentionPrepare settle time, perform a CCA. A busy channel
//     means a contender with a smaller or equal draw got there first:
//     this node loses and does not transmit.
//  4. Transmit the round-r strobe via Prepare+Transmit (not Send: a
//     strobe carries no payload for the receive pipeline to decode, only
//     channel energy for CCA). Any result other than RadioTxOK means this
//     node loses (a collision here means another node drew the same r).
//  5. Having won sub-slot r, transmit a strobe for every remaining
//     sub-slot up to ContentionSlots, to keep the channel visibly busy
//     and suppress later contenders.
//  6. Report Won=true: the caller may now Send its real frame.
func (e *Engine) Arbitrate(ctx context.Context, radio link.Radio, prng link.PRNG, rt link.RTimer, header []byte) Result {
	rounds := e.cfg.ContentionSlots
	r := MapRand(prng.Uint32(), rounds)

	for i := 0; i < r; i++ {
		rt.SleepUntil(ctx, rt.Now()+int64(e.cfg.ContentionTicks))
		if ctx.Err() != nil {
			return Result{Round: r}
		}
	}

	rt.SleepUntil(ctx, rt.Now()+int64(e.cfg.ContentionPrepare))
	if ctx.Err() != nil {
		return Result{Round: r}
	}

	if !radio.ChannelClear() {
		return Result{Round: r, Collided: true}
	}

	strobe := BuildStrobe(header, r, e.cfg)
	_ = radio.Prepare(strobe)
	if res := radio.Transmit(); res != link.RadioTxOK {
		return Result{Round: r, Collided: true}
	}

	for i := r + 1; i < rounds; i++ {
		rt.SleepUntil(ctx, rt.Now()+int64(e.cfg.ContentionTicks))
		if ctx.Err() != nil {
			break
		}
		_ = radio.Prepare(BuildStrobe(header, i, e.cfg))
		radio.Transmit()
	}

	return Result{Round: r, Won: true}
}
