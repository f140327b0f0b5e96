package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gocrankshaft/rdc"
)

func addr(b byte) rdc.Address {
	var a rdc.Address
	a[rdc.AddressLen-1] = b
	return a
}

func TestWindowSeenAndInsert(t *testing.T) {
	w := NewWindow(2)
	sender := addr(5)

	assert.False(t, w.Seen(sender, 1))
	assert.False(t, w.Insert(sender, 1))
	assert.True(t, w.Seen(sender, 1))
	assert.True(t, w.Insert(sender, 1))
}

func TestWindowEvictsLeastRecentlyUsed(t *testing.T) {
	w := NewWindow(2)
	a, b, c := addr(1), addr(2), addr(3)

	w.Insert(a, 1)
	w.Insert(b, 1)
	// window capacity 2: a should now be evicted by c
	w.Insert(c, 1)

	assert.False(t, w.Seen(a, 1))
	assert.True(t, w.Seen(b, 1))
	assert.True(t, w.Seen(c, 1))
}

func TestWindowDistinguishesSenders(t *testing.T) {
	w := NewWindow(4)
	a, b := addr(1), addr(2)

	w.Insert(a, 9)
	assert.False(t, w.Seen(b, 9))
	assert.True(t, w.Seen(a, 9))
}
