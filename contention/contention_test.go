package contention

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gocrankshaft/rdc/config"
	"github.com/gocrankshaft/rdc/link"
)

type fakePRNG struct{ draw uint32 }

func (f *fakePRNG) Seed(int64)      {}
func (f *fakePRNG) Uint32() uint32  { return f.draw }

type fakeRTimer struct{ now int64 }

func (f *fakeRTimer) Now() int64                                    { return f.now }
func (f *fakeRTimer) Set(deadline int64, fn func()) error           { return nil }
func (f *fakeRTimer) SleepUntil(ctx context.Context, deadline int64) { f.now = deadline }

type fakeRadio struct {
	clear   bool
	sendSeq []link.RadioResult // results returned by successive Transmit calls
	sendIdx int
	sent    [][]byte
	staged  []byte
}

func (r *fakeRadio) On()  {}
func (r *fakeRadio) Off() {}

func (r *fakeRadio) Prepare(buf []byte) error {
	r.staged = append([]byte(nil), buf...)
	return nil
}

func (r *fakeRadio) Transmit() link.RadioResult {
	r.sent = append(r.sent, r.staged)
	if r.sendIdx < len(r.sendSeq) {
		res := r.sendSeq[r.sendIdx]
		r.sendIdx++
		return res
	}
	return link.RadioTxOK
}

func (r *fakeRadio) Send(buf []byte) link.RadioResult {
	_ = r.Prepare(buf)
	return r.Transmit()
}

func (r *fakeRadio) Read(buf []byte) (int, error) { return 0, nil }
func (r *fakeRadio) ChannelClear() bool           { return r.clear }
func (r *fakeRadio) ReceivingPacket() bool        { return false }
func (r *fakeRadio) PendingPacket() bool          { return false }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ContentionSlots = 4
	cfg.CCAContentionSize = 4
	cfg.ContentionSize = 2
	cfg.MaxStrobeSize = 20
	return cfg
}

func TestMapRandBucketsIntoRange(t *testing.T) {
	assert.Equal(t, 0, MapRand(0, 4))
	assert.Equal(t, 0, MapRand(7, 4))
	assert.Equal(t, 3, MapRand(math.MaxUint32, 4))
	assert.Equal(t, 0, MapRand(8, 4))
	assert.Equal(t, 0, MapRand(5, 0))
}

func TestBuildStrobeShrinksWithRoundAndCaps(t *testing.T) {
	cfg := testConfig()
	header := []byte{0xAA, 0xBB}

	s0 := BuildStrobe(header, 0, cfg)
	want0 := cfg.CCAContentionSize - len(header) + cfg.ContentionSize*(cfg.ContentionSlots-1)
	assert.Len(t, s0, want0)
	assert.Equal(t, header, s0[:len(header)])

	s1 := BuildStrobe(header, 1, cfg)
	assert.Less(t, len(s1), len(s0))

	last := BuildStrobe(header, cfg.ContentionSlots-1, cfg)
	assert.Len(t, last, cfg.CCAContentionSize-len(header))

	s9 := BuildStrobe(header, 9, cfg)
	assert.GreaterOrEqual(t, len(s9), len(header))
	assert.LessOrEqual(t, len(s9), cfg.MaxStrobeSize)
}

func TestArbitrateWinsWhenChannelClearAndNoCollision(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	radio := &fakeRadio{clear: true}
	prng := &fakePRNG{draw: 1}
	rt := &fakeRTimer{}

	res := e.Arbitrate(context.Background(), radio, prng, rt, []byte{0x01})

	assert.True(t, res.Won)
	assert.False(t, res.Collided)
	assert.Equal(t, 1, res.Round)
	// one strobe for its own round plus one for each later round
	assert.Equal(t, cfg.ContentionSlots-res.Round, len(radio.sent))
}

func TestArbitrateLosesOnBusyChannel(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	radio := &fakeRadio{clear: false}
	prng := &fakePRNG{draw: 2}
	rt := &fakeRTimer{}

	res := e.Arbitrate(context.Background(), radio, prng, rt, []byte{0x01})

	assert.False(t, res.Won)
	assert.True(t, res.Collided)
	assert.Empty(t, radio.sent)
}

func TestArbitrateLosesOnStrobeCollision(t *testing.T) {
	cfg := testConfig()
	e := NewEngine(cfg)
	radio := &fakeRadio{clear: true, sendSeq: []link.RadioResult{link.RadioTxCollision}}
	prng := &fakePRNG{draw: 0}
	rt := &fakeRTimer{}

	res := e.Arbitrate(context.Background(), radio, prng, rt, []byte{0x01})

	assert.False(t, res.Won)
	assert.True(t, res.Collided)
	assert.Len(t, radio.sent, 1)
}
