// Package link declares the external collaborators this radio duty cycling
// layer depends on but does not implement: the framer, the radio PHY, the
// packet buffer staging area, the hardware real-time timer, the watchdog,
// and the PRNG. See spec.md §6 and SPEC_FULL.md §6.
package link

import (
	"context"

	"github.com/gocrankshaft/rdc"
)

// RadioResult is the outcome the PHY reports for a transmit attempt.
type RadioResult int

const (
	RadioTxOK RadioResult = iota
	RadioTxCollision
	RadioTxNoAck
	RadioTxOther
)

// Framer (de)serializes link-layer headers onto the implicit packet
// buffer. Both operations return a negative length on error.
type Framer interface {
	// Create writes the header (and any other framing) for the frame
	// currently staged in the PacketBuffer, returning the number of
	// bytes written or a negative value if the header would not fit.
	Create() (int, error)
	// Parse reads a header from the currently staged receive buffer,
	// returning the number of header bytes consumed or a negative
	// value on a malformed header.
	Parse() (int, error)
}

// Radio is the PHY driver contract: a singleton half-duplex hardware
// resource. At most one of {CCA, strobe-tx, frame-tx, rx} is active at a
// time (spec.md §5).
type Radio interface {
	On()
	Off()
	// Prepare stages buf for transmission without keying the
	// transmitter (used together with Transmit).
	Prepare(buf []byte) error
	// Transmit keys the transmitter for the previously Prepare'd
	// buffer.
	Transmit() RadioResult
	// Send fuses Prepare+Transmit for callers that don't need the
	// two-phase form.
	Send(buf []byte) RadioResult
	Read(buf []byte) (int, error)
	// ChannelClear performs a Clear-Channel Assessment.
	ChannelClear() bool
	ReceivingPacket() bool
	PendingPacket() bool
}

// PacketBuffer is the in-place staging area the framer and MAC operate on:
// address fields (with the NULL sentinel meaning broadcast), attribute
// fields (sequence number, ack-requested), the header, total length, and a
// projection to/from a heap-backed queue buffer for deferred
// transmission.
type PacketBuffer interface {
	Sender() rdc.Address
	SetSender(rdc.Address)
	Receiver() rdc.Address
	SetReceiver(rdc.Address)
	Seq() uint8
	SetSeq(uint8)
	AckRequested() bool
	SetAckRequested(bool)
	// Header returns the bytes written by the last successful
	// Framer.Create call.
	Header() []byte
	// Payload is the data above the link layer; SetPayload stages it
	// before Framer.Create, Payload reads it back after Framer.Parse.
	Payload() []byte
	SetPayload([]byte)
	// Len is the total frame length (header + payload).
	Len() int
	// ToQueueBuffer snapshots the buffer's current bytes for deferred
	// transmission; FromQueueBuffer restores them.
	ToQueueBuffer() []byte
	FromQueueBuffer([]byte)
}

// RTimer is the hardware real-time timer contract. Deadlines and Now() are
// both expressed in an implementation-defined tick unit (RTIMER_SECOND in
// the original); the production implementation ticks in nanoseconds via
// time.Now(), the virtual one in a logical counter so tests are
// deterministic.
type RTimer interface {
	Now() int64
	// Set arms a one-shot callback at the given deadline. A non-nil
	// return is a fatal scheduling failure (spec.md §4.1, §7).
	Set(deadline int64, fn func()) error
	// SleepUntil busy/blocks the calling goroutine until deadline or
	// until ctx is done, whichever comes first.
	SleepUntil(ctx context.Context, deadline int64)
}

// Watchdog models the hardware watchdog timer that must be kicked during
// any wait longer than a small threshold (spec.md §5).
type Watchdog interface {
	Kick()
}

// PRNG is the pseudo-random generator used to draw the contention sub-slot.
type PRNG interface {
	Seed(seed int64)
	Uint32() uint32
}
