package sptable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndFind(t *testing.T) {
	tbl := New(8)
	d, ok := InsertAnonymous(tbl, 0x1000)
	require.True(t, ok)
	assert.Equal(t, Anonymous, d.Kind)

	found, ok := tbl.Find(0x1000)
	require.True(t, ok)
	assert.Same(t, d, found)
}

func TestInsertRefusesDuplicate(t *testing.T) {
	tbl := New(8)
	_, ok := InsertAnonymous(tbl, 0x1000)
	require.True(t, ok)

	_, ok = InsertAnonymous(tbl, 0x1000)
	assert.False(t, ok, "a second descriptor at the same address must be refused")
}

func TestDeleteThenReinsert(t *testing.T) {
	tbl := New(8)
	InsertAnonymous(tbl, 0x1000)
	tbl.Delete(0x1000)

	_, ok := tbl.Find(0x1000)
	assert.False(t, ok)

	_, ok = InsertAnonymous(tbl, 0x1000)
	assert.True(t, ok)
}

func TestDeleteOfMissingKeyPanics(t *testing.T) {
	tbl := New(8)
	assert.Panics(t, func() { tbl.Delete(0x9999) })
}

func TestOverlapsDetectsAnyExistingPage(t *testing.T) {
	tbl := New(8)
	InsertAnonymous(tbl, 0x2000)

	assert.True(t, tbl.Overlaps([]uintptr{0x1000, 0x2000}))
	assert.False(t, tbl.Overlaps([]uintptr{0x1000, 0x3000}))
}

func TestStateBitsAreDistinct(t *testing.T) {
	// Loaded and Swapped must be independently representable, unlike the
	// original's enum where both states collapsed onto the same value.
	assert.NotEqual(t, Loaded, Swapped)
	var s State
	s |= Loaded
	assert.True(t, s&Loaded != 0)
	assert.False(t, s&Swapped != 0)
}

func TestElemsReturnsEveryDescriptor(t *testing.T) {
	tbl := New(8)
	InsertAnonymous(tbl, 0x1000)
	InsertAnonymous(tbl, 0x2000)
	InsertAnonymous(tbl, 0x3000)

	assert.Len(t, tbl.Elems(), 3)

	tbl.Destroy()
	assert.Len(t, tbl.Elems(), 0)
}
