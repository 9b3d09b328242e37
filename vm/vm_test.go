package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PintCoders/pintos/accnt"
	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/frame"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/limits"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/sptable"
	"github.com/PintCoders/pintos/swap"
)

const stackBase = 0x40000000

func newTestSpace(t *testing.T, frameCount int) *AddressSpace {
	t.Helper()
	lim := limits.New(frameCount * 4)
	frames := frame.New(frameCount, mem.NewHostFrameAllocator())
	swapA := swap.New(swap.NewMemDevice(frameCount*4), frameCount*4, lim)
	as := New(1, NewSoftPageDirectory(), frames, swapA, stackBase, nil)
	frames.RegisterOwner(1, as)
	return as
}

func TestFaultStackGrowthZeroFills(t *testing.T) {
	as := newTestSpace(t, 4)
	err := as.Fault(stackBase-uintptr(mem.PGSIZE), true)
	require.Zero(t, err)

	page, ok := as.PageBytes(stackBase - uintptr(mem.PGSIZE))
	require.True(t, ok)
	for _, b := range page {
		assert.Equal(t, byte(0), b)
	}
}

func TestFaultBeyondStackLimitIsRejected(t *testing.T) {
	as := newTestSpace(t, 4)
	err := as.Fault(stackBase-StackLimit-uintptr(mem.PGSIZE), true)
	assert.Equal(t, -defs.EFAULT, err)
}

// TestFaultAtEspSlackBoundary exercises spec.md's named boundary scenario:
// a fault exactly StackFaultSlack bytes below the saved esp is legitimate
// stack growth (the PUSH that faulted hasn't adjusted esp yet); one byte
// further is not.
func TestFaultAtEspSlackBoundary(t *testing.T) {
	as := newTestSpace(t, 4)
	as.SetEsp(stackBase)

	err := as.Fault(stackBase-StackFaultSlack, true)
	assert.Zero(t, err, "a fault exactly esp-32 must be treated as stack growth")

	as2 := newTestSpace(t, 4)
	as2.SetEsp(stackBase)
	err = as2.Fault(stackBase-StackFaultSlack-1, true)
	assert.Equal(t, -defs.EFAULT, err, "a fault at esp-33 must not be treated as stack growth")
}

func TestValidateUserPointerRejectsUnmapped(t *testing.T) {
	as := newTestSpace(t, 4)
	assert.Equal(t, defs.Err_t(-defs.EFAULT), as.ValidateUserPointer(0, 8))
}

func TestWriteUserThenReadUserRoundTrip(t *testing.T) {
	as := newTestSpace(t, 4)
	addr := stackBase - uintptr(mem.PGSIZE)
	payload := []byte("round trip payload")

	require.Zero(t, as.WriteUser(addr, payload))
	back, err := as.ReadUser(addr, len(payload))
	require.Zero(t, err)
	assert.Equal(t, payload, back)
}

func TestEvictionThenRefaultRoundTrips(t *testing.T) {
	as := newTestSpace(t, 1)

	addr1 := uintptr(stackBase)
	require.Zero(t, as.Fault(addr1, true))
	page1, _ := as.PageBytes(addr1)
	copy(page1, []byte("first page contents"))

	addr2 := stackBase - uintptr(mem.PGSIZE)
	require.Zero(t, as.Fault(addr2, true), "second fault must evict the first frame, not fail")

	require.Zero(t, as.Fault(addr1, true), "re-faulting the evicted page must swap it back in")
	page1again, ok := as.PageBytes(addr1)
	require.True(t, ok)
	assert.Equal(t, []byte("first page contents"), page1again[:len("first page contents")])
}

func TestMmapWriteFaultSetsDirtyAndUpgradesWritable(t *testing.T) {
	as := newTestSpace(t, 4)
	fs, err := hostfs.NewMem()
	require.NoError(t, err)
	_, cerr := fs.Create("mapped.bin", mem.PGSIZE)
	require.NoError(t, cerr)
	f, oerr := fs.Open("mapped.bin")
	require.NoError(t, oerr)

	addr := stackBase + uintptr(8*mem.PGSIZE)
	d, ok := sptable.InsertMmap(as.SPT, addr, f, 0, mem.PGSIZE)
	require.True(t, ok)
	assert.False(t, d.Dirty)

	require.Zero(t, as.Fault(addr, false), "read fault should not mark dirty")
	assert.False(t, d.Dirty)

	require.Zero(t, as.Fault(addr, true), "write fault must set dirty")
	assert.True(t, d.Dirty)
}

func TestFaultAndEvictionUpdateAccounting(t *testing.T) {
	lim := limits.New(4)
	frames := frame.New(1, mem.NewHostFrameAllocator())
	swapA := swap.New(swap.NewMemDevice(4), 4, lim)
	acc := &accnt.Accnt_t{}
	as := New(1, NewSoftPageDirectory(), frames, swapA, stackBase, acc)
	frames.RegisterOwner(1, as)

	require.Zero(t, as.Fault(stackBase, true))
	require.Zero(t, as.Fault(stackBase-uintptr(mem.PGSIZE), true), "forces eviction of the single frame")

	snap := acc.Fetch()
	assert.EqualValues(t, 2, snap.PageFaults)
	assert.EqualValues(t, 1, snap.Evictions)
	assert.EqualValues(t, 1, snap.SwapOuts)
}
