package mmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/sptable"
)

func openFile(t *testing.T, size int) *hostfs.File {
	t.Helper()
	fs, err := hostfs.NewMem()
	require.NoError(t, err)
	_, err = fs.Create("m.bin", size)
	require.NoError(t, err)
	f, err := fs.Open("m.bin")
	require.NoError(t, err)
	return f
}

func TestMapInsertsOnePageDescriptorPerPage(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	r, err := m.Map(0x1000, openFile(t, mem.PGSIZE*2), mem.PGSIZE*2)
	require.Zero(t, err)
	assert.Len(t, r.Pages, 2)
	for _, addr := range r.Pages {
		_, ok := spt.Find(addr)
		assert.True(t, ok)
	}
}

func TestMapRejectsOverlap(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	_, err := m.Map(0x2000, openFile(t, mem.PGSIZE), mem.PGSIZE)
	require.Zero(t, err)

	_, err = m.Map(0x2000, openFile(t, mem.PGSIZE), mem.PGSIZE)
	assert.Equal(t, defs.Err_t(-defs.EINVAL), err)
}

func TestMapRejectsUnalignedBase(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	_, err := m.Map(0x2001, openFile(t, mem.PGSIZE), mem.PGSIZE)
	assert.Equal(t, defs.Err_t(-defs.EINVAL), err)
}

func TestUnmapRemovesEveryPageDescriptor(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	r, err := m.Map(0x3000, openFile(t, mem.PGSIZE*3), mem.PGSIZE*3)
	require.Zero(t, err)

	descs, uerr := m.Unmap(r.Base)
	require.Zero(t, uerr)
	assert.Len(t, descs, 3)
	for _, addr := range r.Pages {
		_, ok := spt.Find(addr)
		assert.False(t, ok)
	}
}

func TestUnmapUnknownBaseFails(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	_, err := m.Unmap(0xbadbase)
	assert.Equal(t, defs.Err_t(-defs.EINVAL), err)
}

// TestMapOfPartialLastPageComputesZeroBytes exercises spec.md's named
// boundary scenario: mapping a file whose length is not a multiple of
// PGSIZE must leave its final page with ZeroBytes = PGSIZE - (length mod
// PGSIZE), so ReadBytes+ZeroBytes == PGSIZE holds for every descriptor.
func TestMapOfPartialLastPageComputesZeroBytes(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	length := mem.PGSIZE + 100
	r, err := m.Map(0x5000, openFile(t, length), length)
	require.Zero(t, err)
	require.Len(t, r.Pages, 2)

	firstDesc, ok := spt.Find(r.Pages[0])
	require.True(t, ok)
	assert.Equal(t, mem.PGSIZE, firstDesc.ReadBytes)
	assert.Equal(t, 0, firstDesc.ZeroBytes)

	lastDesc, ok := spt.Find(r.Pages[1])
	require.True(t, ok)
	assert.Equal(t, 100, lastDesc.ReadBytes)
	assert.Equal(t, mem.PGSIZE-100, lastDesc.ZeroBytes)
	assert.Equal(t, mem.PGSIZE, lastDesc.ReadBytes+lastDesc.ZeroBytes)
}

func TestFindReturnsRegisteredRegion(t *testing.T) {
	spt := sptable.New(32)
	m := New(spt)

	r, err := m.Map(0x4000, openFile(t, mem.PGSIZE), mem.PGSIZE)
	require.Zero(t, err)

	found, ok := m.Find(0x4000)
	require.True(t, ok)
	assert.Same(t, r, found)
}
