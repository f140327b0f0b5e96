package mac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gocrankshaft/rdc"
	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link"
	"github.com/gocrankshaft/rdc/link/virtual"
)

func TestOutcomeMapsRadioResults(t *testing.T) {
	assert.Equal(t, rdc.TxOK, Outcome(link.RadioTxOK))
	assert.Equal(t, rdc.TxCollision, Outcome(link.RadioTxCollision))
	assert.Equal(t, rdc.TxNoAck, Outcome(link.RadioTxNoAck))
	assert.Equal(t, rdc.TxErr, Outcome(link.RadioTxOther))
}

func addr(b byte) rdc.Address {
	var a rdc.Address
	a[rdc.AddressLen-1] = b
	return a
}

func TestReceiverDropsFrameNotAddressedToSelf(t *testing.T) {
	cfg := config.Default()
	self := addr(1)
	other := addr(2)
	r := NewReceiver(cfg, self)

	buf := &virtual.PacketBuffer{}
	buf.SetSender(addr(9))
	buf.SetReceiver(other)
	buf.SetSeq(1)
	buf.SetPayload([]byte("hi"))

	_, ok := r.Process(buf)
	assert.False(t, ok)
}

func TestReceiverDeliversUnicastAndBroadcast(t *testing.T) {
	cfg := config.Default()
	self := addr(1)
	r := NewReceiver(cfg, self)

	buf := &virtual.PacketBuffer{}
	buf.SetSender(addr(9))
	buf.SetReceiver(self)
	buf.SetSeq(1)
	buf.SetPayload([]byte("hi"))

	frame, ok := r.Process(buf)
	assert.True(t, ok)
	assert.Equal(t, []byte("hi"), frame.Payload)
	assert.Equal(t, addr(9), frame.Sender)

	buf2 := &virtual.PacketBuffer{}
	buf2.SetSender(addr(9))
	buf2.SetReceiver(rdc.NullAddress)
	buf2.SetSeq(2)
	buf2.SetPayload([]byte("all"))

	_, ok = r.Process(buf2)
	assert.True(t, ok)
}

func TestReceiverSuppressesDuplicateSeq(t *testing.T) {
	cfg := config.Default()
	self := addr(1)
	r := NewReceiver(cfg, self)
	sender := addr(9)

	mk := func(seq uint8) link.PacketBuffer {
		buf := &virtual.PacketBuffer{}
		buf.SetSender(sender)
		buf.SetReceiver(self)
		buf.SetSeq(seq)
		buf.SetPayload([]byte{seq})
		return buf
	}

	_, ok := r.Process(mk(3))
	assert.True(t, ok)

	_, ok = r.Process(mk(3))
	assert.False(t, ok, "duplicate sequence number from the same sender must be suppressed")

	_, ok = r.Process(mk(4))
	assert.True(t, ok)
}
