// Package virtual provides an in-process implementation of the link
// collaborators (radio, packet buffer, framer, timer, PRNG) used by this
// repository's own tests and by cmd/rdcsim. It is the Go-native
// replacement for the teacher's TCP-loopback virtual CAN bus
// (pkg/can/virtual/virtual.go): instead of dialing out over a socket, a
// Medium fans frames out to subscribed Radios by direct synchronous
// calls, and models
// collisions by tracking how many distinct radios have transmitted
// within a rolling window.
package virtual

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/link"
)

// Medium is a shared broadcast channel connecting any number of virtual
// radios. Unlike a real channel it has no propagation delay: Send
// delivers synchronously to every other subscriber.
//
// Collision bookkeeping is scoped to a rolling window (window) rather
// than a manually-reset counter: a radio is considered an active
// transmitter for window after its last transmission, so CCA/collision
// state naturally clears itself between unrelated slots without every
// caller having to remember to call ResetRound. window should be at
// least the configured contention window (config.Config.ContentionWindow)
// so a genuine contention round is never split across two windows, and
// comfortably less than one regular slot so unrelated back-to-back
// transmissions from the same node don't falsely collide with
// themselves.
type Medium struct {
	mu           sync.Mutex
	radios       map[*Radio]struct{}
	transmitters map[*Radio]time.Time
	window       time.Duration
}

// NewMedium returns an empty shared medium using window as the rolling
// collision-bookkeeping horizon.
func NewMedium(window time.Duration) *Medium {
	return &Medium{
		radios:       make(map[*Radio]struct{}),
		transmitters: make(map[*Radio]time.Time),
		window:       window,
	}
}

// ResetRound clears every radio's transmitter bookkeeping immediately,
// for callers that want a hard boundary between contention rounds rather
// than relying on the rolling window to expire on its own.
func (m *Medium) ResetRound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transmitters = make(map[*Radio]time.Time)
}

func (m *Medium) subscribe(r *Radio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.radios[r] = struct{}{}
}

// expireLocked drops transmitters whose last activity fell outside the
// window. Caller must hold m.mu.
func (m *Medium) expireLocked() {
	cutoff := time.Now().Add(-m.window)
	for r, at := range m.transmitters {
		if at.Before(cutoff) {
			delete(m.transmitters, r)
		}
	}
}

// busy reports whether any radio has transmitted within the current
// window (used by ChannelClear for CCA).
func (m *Medium) busy(self *Radio) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	return len(m.transmitters) > 0
}

// transmit records a transmission attempt by self and reports whether it
// collided with a different radio's transmission still within the
// window; a single radio's own repeated transmissions (the strobe
// sequence and final frame of one winning arbitration) never collide
// with themselves. deliver controls whether a non-colliding transmission
// is fanned out to every other subscriber's onFrame: Send (real frames)
// delivers, Transmit (contention strobes, reached via Prepare+Transmit)
// does not, since a strobe carries no payload the upper layer should
// ever see, only channel energy the Engine's own CCA needs to sense.
func (m *Medium) transmit(self *Radio, buf []byte, deliver bool) link.RadioResult {
	m.mu.Lock()
	m.expireLocked()
	m.transmitters[self] = time.Now()
	collided := len(m.transmitters) > 1
	var peers []*Radio
	if !collided && deliver {
		for r := range m.radios {
			if r != self {
				peers = append(peers, r)
			}
		}
	}
	m.mu.Unlock()

	if collided {
		return link.RadioTxCollision
	}
	if !deliver {
		return link.RadioTxOK
	}
	cp := append([]byte(nil), buf...)
	for _, r := range peers {
		r.deliver(cp)
	}
	return link.RadioTxOK
}

// Radio is a virtual half-duplex radio attached to a Medium.
type Radio struct {
	medium  *Medium
	on      bool
	staged  []byte
	onFrame func([]byte)
}

// NewRadio attaches a new virtual radio to medium. onFrame, if non-nil, is
// called synchronously whenever another radio on the medium sends a frame
// with Send without a collision (strobes sent with Transmit are not
// delivered).
func NewRadio(medium *Medium, onFrame func([]byte)) *Radio {
	r := &Radio{medium: medium, onFrame: onFrame}
	medium.subscribe(r)
	return r
}

func (r *Radio) deliver(buf []byte) {
	if r.onFrame != nil {
		r.onFrame(buf)
	}
}

func (r *Radio) On()  { r.on = true }
func (r *Radio) Off() { r.on = false }

// ResetRound clears the shared medium's collision bookkeeping. Not part
// of link.Radio; callers that hold a *virtual.Radio and want a hard
// round boundary (rather than relying on the medium's rolling window)
// can reach it through this method.
func (r *Radio) ResetRound() { r.medium.ResetRound() }

func (r *Radio) Prepare(buf []byte) error {
	r.staged = append([]byte(nil), buf...)
	return nil
}

// Transmit keys the transmitter for the staged buffer without delivering
// it to any listening peer's onFrame; used by the contention engine for
// strobes, which only need to be audible to CCA, not decoded as a frame.
func (r *Radio) Transmit() link.RadioResult {
	return r.medium.transmit(r, r.staged, false)
}

// Send stages and transmits buf, delivering it to every other
// subscriber's onFrame if it doesn't collide. Used for real frames.
func (r *Radio) Send(buf []byte) link.RadioResult {
	_ = r.Prepare(buf)
	return r.medium.transmit(r, r.staged, true)
}

func (r *Radio) Read(buf []byte) (int, error) { return 0, nil }

func (r *Radio) ChannelClear() bool { return !r.medium.busy(r) }

func (r *Radio) ReceivingPacket() bool { return false }
func (r *Radio) PendingPacket() bool   { return false }

// PacketBuffer is a plain in-memory implementation of link.PacketBuffer.
type PacketBuffer struct {
	sender, receiver rdc.Address
	seq              uint8
	ackRequested     bool
	header           []byte
	payload          []byte
}

func (b *PacketBuffer) Sender() rdc.Address          { return b.sender }
func (b *PacketBuffer) SetSender(a rdc.Address)      { b.sender = a }
func (b *PacketBuffer) Receiver() rdc.Address        { return b.receiver }
func (b *PacketBuffer) SetReceiver(a rdc.Address)    { b.receiver = a }
func (b *PacketBuffer) Seq() uint8                   { return b.seq }
func (b *PacketBuffer) SetSeq(s uint8)               { b.seq = s }
func (b *PacketBuffer) AckRequested() bool           { return b.ackRequested }
func (b *PacketBuffer) SetAckRequested(v bool)       { b.ackRequested = v }
func (b *PacketBuffer) Header() []byte               { return b.header }
func (b *PacketBuffer) Len() int                     { return len(b.header) + len(b.payload) }
func (b *PacketBuffer) SetPayload(p []byte)          { b.payload = p }
func (b *PacketBuffer) Payload() []byte              { return b.payload }

// ToQueueBuffer snapshots sender/receiver/seq/payload into a flat byte
// slice suitable for deferred transmission.
func (b *PacketBuffer) ToQueueBuffer() []byte {
	out := make([]byte, 0, rdc.AddressLen*2+1+len(b.payload))
	out = append(out, b.sender[:]...)
	out = append(out, b.receiver[:]...)
	out = append(out, b.seq)
	out = append(out, b.payload...)
	return out
}

// FromQueueBuffer splits a raw received frame into a header (handed to
// Framer.Parse) and a payload; it does not itself populate
// sender/receiver/seq, since decoding the header is the framer's job, not
// the packet buffer's. A short buffer leaves an empty header, which
// Framer.Parse rejects.
func (b *PacketBuffer) FromQueueBuffer(buf []byte) {
	if len(buf) < HeaderLen {
		b.header = nil
		b.payload = nil
		return
	}
	b.header = append([]byte(nil), buf[:HeaderLen]...)
	b.payload = append([]byte(nil), buf[HeaderLen:]...)
}

// HeaderLen is the fixed header size this Framer writes: two addresses
// plus a sequence byte.
const HeaderLen = rdc.AddressLen*2 + 1

// Framer is a minimal fixed-width implementation of link.Framer operating
// on a PacketBuffer. MaxHeader bounds the header size it will accept,
// modeling the "oversize header" failure mode from spec.md §4.4.
type Framer struct {
	Buf       *PacketBuffer
	MaxHeader int
}

func (f *Framer) Create() (int, error) {
	if f.MaxHeader > 0 && HeaderLen > f.MaxHeader {
		return -1, errHeaderTooLarge
	}
	hdr := make([]byte, 0, HeaderLen)
	hdr = append(hdr, f.Buf.sender[:]...)
	hdr = append(hdr, f.Buf.receiver[:]...)
	hdr = append(hdr, f.Buf.seq)
	f.Buf.header = hdr
	return len(hdr), nil
}

func (f *Framer) Parse() (int, error) {
	raw := f.Buf.header
	if len(raw) < HeaderLen {
		return -1, errShortHeader
	}
	copy(f.Buf.sender[:], raw[0:rdc.AddressLen])
	copy(f.Buf.receiver[:], raw[rdc.AddressLen:2*rdc.AddressLen])
	f.Buf.seq = raw[2*rdc.AddressLen]
	return HeaderLen, nil
}

type frameError string

func (e frameError) Error() string { return string(e) }

const (
	errHeaderTooLarge = frameError("virtual: header too large")
	errShortHeader    = frameError("virtual: short header")
)

// RTimer is a logical-clock implementation of link.RTimer: Now() is a
// monotonically increasing counter advanced by Advance, and SleepUntil
// returns as soon as the logical clock reaches the deadline (or ctx is
// done), without involving wall-clock time. This keeps tests fast and
// deterministic, mirroring how the teacher swaps a real transport for a
// fully in-process one under test (pkg/can/virtual).
type RTimer struct {
	mu  sync.Mutex
	now int64
	due []pending
}

type pending struct {
	deadline int64
	fn       func()
}

func NewRTimer() *RTimer { return &RTimer{} }

func (t *RTimer) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

func (t *RTimer) Set(deadline int64, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.due = append(t.due, pending{deadline, fn})
	return nil
}

// Advance moves the logical clock forward by delta ticks, firing (and
// removing) any pending callbacks whose deadline has passed.
func (t *RTimer) Advance(delta int64) {
	t.mu.Lock()
	t.now += delta
	var fire []func()
	remaining := t.due[:0]
	for _, p := range t.due {
		if p.deadline <= t.now {
			fire = append(fire, p.fn)
		} else {
			remaining = append(remaining, p)
		}
	}
	t.due = remaining
	t.mu.Unlock()
	for _, fn := range fire {
		fn()
	}
}

func (t *RTimer) SleepUntil(ctx context.Context, deadline int64) {
	for {
		if ctx.Err() != nil {
			return
		}
		if t.Now() >= deadline {
			return
		}
		t.Advance(1)
	}
}

// WallRTimer is the production link.RTimer: Now() ticks in nanoseconds
// since an arbitrary epoch, Set arms a time.AfterFunc, and SleepUntil
// blocks the calling goroutine (cheap in Go, unlike the busy-wait the
// original ran on bare metal; see SPEC_FULL.md §4.4).
type WallRTimer struct {
	epoch time.Time
}

func NewWallRTimer() *WallRTimer { return &WallRTimer{epoch: time.Now()} }

func (w *WallRTimer) Now() int64 { return int64(time.Since(w.epoch)) }

func (w *WallRTimer) Set(deadline int64, fn func()) error {
	d := time.Duration(deadline) - time.Since(w.epoch)
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, fn)
	return nil
}

func (w *WallRTimer) SleepUntil(ctx context.Context, deadline int64) {
	d := time.Duration(deadline) - time.Since(w.epoch)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// PRNG is a thin wrapper around math/rand seeded per spec.md §4.4 ("seed
// the pseudo-random generator from (current-tick, node_id)").
type PRNG struct {
	r *rand.Rand
}

func NewPRNG() *PRNG { return &PRNG{r: rand.New(rand.NewSource(1))} }

func (p *PRNG) Seed(seed int64) { p.r = rand.New(rand.NewSource(seed)) }

func (p *PRNG) Uint32() uint32 { return p.r.Uint32() }

// Watchdog is a no-op virtual watchdog that counts kicks, useful for
// asserting that long waits do kick it.
type Watchdog struct {
	mu    sync.Mutex
	kicks int
}

func (w *Watchdog) Kick() {
	w.mu.Lock()
	w.kicks++
	w.mu.Unlock()
}

func (w *Watchdog) Kicks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.kicks
}
