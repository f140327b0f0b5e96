// Package canbench adapts a physical CAN bus, via brutella/can, into a
// link.Radio. It exists so this module's node can be exercised against
// real hardware on a test bench without an actual sub-GHz radio: cheap
// CAN transceivers stand in for the shared wireless medium, with one bus
// playing the role of "the channel" for every attached node. Grounded on
// the teacher's SocketcanBus (socketcan.go), generalized from "one
// CANopen frame per Send" to "chunk an arbitrary-length link frame across
// as many 8-byte CAN frames as it takes".
package canbench

import (
	"sync"

	"github.com/brutella/can"

	"github.com/gocrankshaft/rdc/link"
)

// chunkHeader bit layout: bit7 set means more chunks follow this one;
// bits0-6 are this chunk's sequence number within the current frame,
// wrapping at 128 (ample: MaxStrobeSize defaults to 64 bytes, well under
// 128*7).
const continuationBit = 0x80

// Bus is a single physical CAN interface shared by every node attached to
// it, mirroring how every node on the real channel shares one radio
// medium. ID is the CAN arbitration ID this bench bridge transmits and
// listens on; every node on the bench must use the same ID, since the CAN
// bus (like the wireless channel it stands in for) has no addressing of
// its own at this layer.
type Bus struct {
	mu           sync.Mutex
	id           uint32
	bus          *can.Bus
	reassembling []byte
	onFrame      func([]byte)
}

// Open attaches to the named CAN interface (e.g. "can0" or "vcan0" for a
// Linux virtual CAN bench) and begins receiving in the background.
// onFrame is called with each fully reassembled link frame.
func Open(ifname string, id uint32, onFrame func([]byte)) (*Bus, error) {
	cbus, err := can.NewBusForInterfaceWithName(ifname)
	if err != nil {
		return nil, err
	}
	b := &Bus{id: id, bus: cbus, onFrame: onFrame}
	cbus.Subscribe(b)
	go cbus.ConnectAndPublish()
	return b, nil
}

// Handle implements brutella/can's frame-handler interface (the same
// pattern the teacher's SocketcanBus uses).
func (b *Bus) Handle(frame can.Frame) {
	if frame.ID != b.id || frame.Length == 0 {
		return
	}
	header := frame.Data[0]
	payload := frame.Data[1:frame.Length]

	b.mu.Lock()
	b.reassembling = append(b.reassembling, payload...)
	more := header&continuationBit != 0
	var complete []byte
	if !more {
		complete = b.reassembling
		b.reassembling = nil
	}
	b.mu.Unlock()

	if complete != nil && b.onFrame != nil {
		b.onFrame(complete)
	}
}

// Radio adapts a Bus into a link.Radio. Its ChannelClear, Prepare and
// Transmit/Send methods all operate against the one staged buffer most
// recently handed to Prepare or Send; real CAN controllers arbitrate in
// hardware, so ChannelClear always reports true here and collisions can
// only be learned indirectly (this bridge never reports RadioTxCollision,
// only RadioTxOK or RadioTxOther on a bus write failure).
type Radio struct {
	bus    *Bus
	on     bool
	staged []byte
}

// NewRadio builds a link.Radio bridging to bus.
func NewRadio(bus *Bus) *Radio {
	return &Radio{bus: bus}
}

func (r *Radio) On()  { r.on = true }
func (r *Radio) Off() { r.on = false }

func (r *Radio) Prepare(buf []byte) error {
	r.staged = append([]byte(nil), buf...)
	return nil
}

func (r *Radio) Transmit() link.RadioResult {
	return r.send(r.staged)
}

func (r *Radio) Send(buf []byte) link.RadioResult {
	_ = r.Prepare(buf)
	return r.Transmit()
}

func (r *Radio) send(buf []byte) link.RadioResult {
	const chunkLen = 7
	if len(buf) == 0 {
		buf = []byte{}
	}
	chunks := (len(buf) + chunkLen - 1) / chunkLen
	if chunks == 0 {
		chunks = 1
	}
	for i := 0; i < chunks; i++ {
		start := i * chunkLen
		end := start + chunkLen
		if end > len(buf) {
			end = len(buf)
		}
		payload := buf[start:end]

		var data [8]byte
		if i < chunks-1 {
			data[0] = continuationBit | byte(i)
		} else {
			data[0] = byte(i)
		}
		n := copy(data[1:], payload)

		frame := can.Frame{ID: r.bus.id, Length: uint8(1 + n), Data: data}
		if err := r.bus.bus.Publish(frame); err != nil {
			return link.RadioTxOther
		}
	}
	return link.RadioTxOK
}

func (r *Radio) Read(buf []byte) (int, error) { return 0, nil }

func (r *Radio) ChannelClear() bool { return true }

func (r *Radio) ReceivingPacket() bool { return false }
func (r *Radio) PendingPacket() bool   { return false }
