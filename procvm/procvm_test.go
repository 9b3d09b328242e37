package procvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/mem"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	fs, err := hostfs.NewMem()
	require.NoError(t, err)
	return New(fs)
}

func TestNewProcAssignsDistinctTids(t *testing.T) {
	sys := newTestSystem(t)
	p1 := sys.NewProc()
	p2 := sys.NewProc()
	assert.NotEqual(t, p1.Tid, p2.Tid)
}

func TestLookupFindsRegisteredProc(t *testing.T) {
	sys := newTestSystem(t)
	p := sys.NewProc()

	found, ok := sys.Lookup(p.Tid)
	require.True(t, ok)
	assert.Same(t, p, found)
}

func TestExitRecordsStatusButKeepsTableEntry(t *testing.T) {
	sys := newTestSystem(t)
	p := sys.NewProc()

	p.Exit(7)

	found, ok := sys.Lookup(p.Tid)
	require.True(t, ok, "exit must not remove the process table entry")
	assert.Equal(t, 7, found.ExitStatus)
}

func TestReapRemovesTableEntry(t *testing.T) {
	sys := newTestSystem(t)
	p := sys.NewProc()
	p.Exit(3)

	sys.Reap(p.Tid)

	_, ok := sys.Lookup(p.Tid)
	assert.False(t, ok)
}

func TestExitFreesAddressSpaceFrames(t *testing.T) {
	sys := newTestSystem(t)
	p := sys.NewProc()

	addr := DefaultStackBase - uintptr(mem.PGSIZE)
	require.Zero(t, p.AS.Fault(addr, true))
	usedBefore := sys.Frames.Used()
	require.Greater(t, usedBefore, 0)

	p.Exit(0)
	assert.Less(t, sys.Frames.Used(), usedBefore, "exit must release the process's frames")
}

// TestExitWritesBackActiveDirtyMmap exercises the syscall table's exit()
// requirement to munmap any memory map still active for the process: a
// dirty mmap page that was never explicitly unmapped must still be
// written back to its file when the process terminates.
func TestExitWritesBackActiveDirtyMmap(t *testing.T) {
	sys := newTestSystem(t)
	p := sys.NewProc()

	_, cerr := sys.FS.Create("mapped.bin", mem.PGSIZE)
	require.NoError(t, cerr)
	f, oerr := sys.FS.Open("mapped.bin")
	require.NoError(t, oerr)

	mapBase := DefaultStackBase + uintptr(4*mem.PGSIZE)
	_, merr := p.Mmaps.Map(mapBase, f, mem.PGSIZE)
	require.Zero(t, merr)

	require.Zero(t, p.AS.Fault(mapBase, true), "write fault into the mapping")
	require.Zero(t, p.AS.WriteUser(mapBase, []byte("dirty on exit")))

	p.Exit(0)

	back, oerr := sys.FS.Open("mapped.bin")
	require.NoError(t, oerr)
	defer back.Close()
	buf := make([]byte, len("dirty on exit"))
	back.ReadAt(buf, 0)
	assert.Equal(t, "dirty on exit", string(buf), "exit must write back a dirty mmap page it never explicitly munmapped")
}
