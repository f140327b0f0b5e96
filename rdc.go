// Package rdc implements a Crankshaft-style radio duty cycling layer for a
// single half-duplex radio: a periodic slot clock, per-slot outgoing
// queues, in-slot contention, a radio on/off policy driven by slot
// ownership, and duplicate suppression for received unicasts.
package rdc

import "fmt"

// NodeID is the low byte of a node's link-layer address. It also selects
// the node's owned slot. NodeID 0 is reserved for the broadcast slot; a
// node's own NodeID must never equal BroadcastSlot (Init rejects it with
// ErrInvalidConfig).
type NodeID uint8

// AddressLen is the width of a link-layer address. Only the last byte
// (the NodeID projection) is meaningful to this layer; the rest is opaque
// payload carried for the framer/upper MAC's benefit.
const AddressLen = 8

// Address is an opaque link-layer address. The all-zero value is the NULL
// address, meaning broadcast.
type Address [AddressLen]byte

// NullAddress is the broadcast/NULL sentinel.
var NullAddress = Address{}

// Equal reports whether two addresses are identical.
func (a Address) Equal(b Address) bool { return a == b }

// IsBroadcast reports whether a is the NULL/broadcast address.
func (a Address) IsBroadcast() bool { return a == NullAddress }

// NodeID projects the address onto the node identifier used for slot
// ownership: the last byte.
func (a Address) NodeID() NodeID { return NodeID(a[AddressLen-1]) }

func (a Address) String() string {
	if a.IsBroadcast() {
		return "broadcast"
	}
	return fmt.Sprintf("%02x", a[:])
}

// TxResult is the outcome of a single transmit attempt, returned via a
// frame's SentFunc exactly once (never retried by this layer).
type TxResult int

const (
	// TxOK means the radio reported a clean transmission.
	TxOK TxResult = iota
	// TxCollision means contention or the radio's own carrier-sense
	// reported the medium was taken by someone else.
	TxCollision
	// TxNoAck means the radio expected and did not receive a
	// link-layer acknowledgment.
	TxNoAck
	// TxErr is an unclassifiable radio failure.
	TxErr
	// TxErrFatal means the framer rejected the frame before it ever
	// reached the radio (e.g. an oversize header).
	TxErrFatal
)

func (r TxResult) String() string {
	switch r {
	case TxOK:
		return "OK"
	case TxCollision:
		return "COLLISION"
	case TxNoAck:
		return "NOACK"
	case TxErr:
		return "ERR"
	case TxErrFatal:
		return "ERR_FATAL"
	default:
		return "UNKNOWN"
	}
}

// SentFunc is invoked exactly once per SendPacket call, after the frame's
// buffer has been released (I6/P5). SendList calls SendPacket once per
// receiver, so it invokes SentFunc once per receiver.
type SentFunc func(result TxResult, user any, attempts int)

// Frame is a received, parsed link-layer frame handed up to the MAC/network
// layer above.
type Frame struct {
	Sender   Address
	Receiver Address
	Seq      uint8
	Payload  []byte
}
