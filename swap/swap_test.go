package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PintCoders/pintos/limits"
	"github.com/PintCoders/pintos/mem"
)

func fullPage(b byte) []byte {
	p := make([]byte, mem.PGSIZE)
	for i := range p {
		p[i] = b
	}
	return p
}

func TestSwapOutInRoundTrip(t *testing.T) {
	lim := limits.New(4)
	area := New(NewMemDevice(4), 4, lim)

	page := fullPage(0x42)
	slot, ok := area.SwapOut(page)
	require.True(t, ok)

	back := make([]byte, mem.PGSIZE)
	require.NoError(t, area.SwapIn(slot, back))
	assert.Equal(t, page, back)
}

func TestSwapAreaExhaustion(t *testing.T) {
	lim := limits.New(2)
	area := New(NewMemDevice(2), 2, lim)

	_, ok1 := area.SwapOut(fullPage(1))
	_, ok2 := area.SwapOut(fullPage(2))
	_, ok3 := area.SwapOut(fullPage(3))

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3, "third swap-out must fail once both slots are reserved")
}

func TestReservedMatchesCardinality(t *testing.T) {
	lim := limits.New(4)
	area := New(NewMemDevice(4), 4, lim)

	assert.Equal(t, 0, area.Reserved())

	s1, _ := area.SwapOut(fullPage(1))
	s2, _ := area.SwapOut(fullPage(2))
	assert.Equal(t, 2, area.Reserved())

	area.Free(s1)
	assert.Equal(t, 1, area.Reserved())

	back := make([]byte, mem.PGSIZE)
	require.NoError(t, area.SwapIn(s2, back))
	assert.Equal(t, 0, area.Reserved())
}

func TestSwapInOfFreeSlotFails(t *testing.T) {
	lim := limits.New(2)
	area := New(NewMemDevice(2), 2, lim)
	err := area.SwapIn(0, make([]byte, mem.PGSIZE))
	assert.Error(t, err)
}
