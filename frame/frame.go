// Package frame implements the fixed-size frame table of spec.md §4.2,
// grounded on the original's frame.c (frameTable_alloc/free/evict) and the
// teacher's mem.Physmem_t pool-of-pages bookkeeping style.
package frame

import (
	"fmt"
	"sync"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/oommsg"
)

// Owner is the per-process collaborator the frame table consults during
// eviction. It plays the role the thread/page-directory/supplemental-page-
// table trio plays together in the original kernel, reduced to the three
// operations eviction needs: read and clear the hardware accessed bit, and
// perform the full evict-one-page sequence (locate-or-create descriptor,
// clear the page directory mapping, write the page to swap, transition its
// state) once the frame table has chosen a victim.
type Owner interface {
	Accessed(userAddr uintptr) bool
	ClearAccessed(userAddr uintptr)
	EvictPage(userAddr uintptr, frame []byte) bool
}

// Frame is one slot in the fixed pool.
type Frame struct {
	busy      bool
	ownerTid  defs.Tid_t
	pa        mem.Pa_t
	page      []byte
	userAddr  uintptr
	pinned    int
}

// Table is the fixed array of frames plus the locks guarding it, as
// described in spec.md §5: one lock for slot metadata, a separate
// eviction lock so two allocators cannot race to choose the same victim.
type Table struct {
	alloc mem.PageAllocator

	mu     sync.Mutex // guards frames[]
	evict_ sync.Mutex // guards victim selection + eviction sequence
	frames []Frame

	ownersMu sync.Mutex
	owners   map[defs.Tid_t]Owner

	oom chan oommsg.Oommsg_t
}

// New constructs a Table of the given size backed by alloc.
func New(size int, alloc mem.PageAllocator) *Table {
	return &Table{
		alloc:  alloc,
		frames: make([]Frame, size),
		owners: make(map[defs.Tid_t]Owner),
		oom:    oommsg.OomCh,
	}
}

// NotifyOOM sets the channel a final out-of-frames condition is reported
// on, overriding the package-level oommsg.OomCh default. Tests use this to
// observe an exhaustion event without racing the global channel.
func (t *Table) NotifyOOM(ch chan oommsg.Oommsg_t) {
	t.oom = ch
}

// RegisterOwner associates tid with the Owner eviction should consult for
// frames tagged with that tid. Processes must register before any frame is
// allocated on their behalf.
func (t *Table) RegisterOwner(tid defs.Tid_t, o Owner) {
	t.ownersMu.Lock()
	defer t.ownersMu.Unlock()
	t.owners[tid] = o
}

// UnregisterOwner removes tid, called at process teardown after every
// frame it owned has been freed.
func (t *Table) UnregisterOwner(tid defs.Tid_t) {
	t.ownersMu.Lock()
	defer t.ownersMu.Unlock()
	delete(t.owners, tid)
}

func (t *Table) owner(tid defs.Tid_t) Owner {
	t.ownersMu.Lock()
	defer t.ownersMu.Unlock()
	return t.owners[tid]
}

// Ref identifies one frame slot by its index into the fixed array, used by
// supplemental page table descriptors instead of a pointer so eviction can
// reach a page through an index round-trip rather than a retained
// reference cycle.
type Ref int

// Alloc finds a free frame, running eviction first if necessary. The
// returned frame is marked busy and owned by tid; the caller must install
// the page directory mapping before the next possible suspension point.
func (t *Table) Alloc(tid defs.Tid_t, userAddr uintptr) (Ref, []byte, defs.Err_t) {
	ref, page, ok := t.tryAlloc(tid, userAddr)
	if ok {
		return ref, page, 0
	}
	if !t.evictOne() {
		t.reportOOM()
		return 0, nil, -defs.ENOMEM
	}
	ref, page, ok = t.tryAlloc(tid, userAddr)
	if !ok {
		t.reportOOM()
		return 0, nil, -defs.ENOMEM
	}
	return ref, page, 0
}

// reportOOM notifies any listener on the out-of-memory channel that the
// table could not satisfy an allocation even after eviction. The send is
// best-effort: with no reclaim daemon on the other end, Alloc must not
// block its caller waiting for one to appear.
func (t *Table) reportOOM() {
	if t.oom == nil {
		return
	}
	select {
	case t.oom <- oommsg.Oommsg_t{Need: 1}:
	default:
	}
}

func (t *Table) tryAlloc(tid defs.Tid_t, userAddr uintptr) (Ref, []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.frames {
		if !t.frames[i].busy {
			page, pa, ok := t.alloc.Alloc()
			if !ok {
				return 0, nil, false
			}
			t.frames[i] = Frame{busy: true, ownerTid: tid, pa: pa, page: page, userAddr: userAddr}
			return Ref(i), page, true
		}
	}
	return 0, nil, false
}

// Free clears ownership of the frame and returns its physical page to the
// allocator. The table only manages ownership metadata; the allocator is
// responsible for the underlying memory.
func (t *Table) Free(ref Ref) {
	t.mu.Lock()
	f := t.frames[ref]
	if !f.busy {
		t.mu.Unlock()
		panic(fmt.Sprintf("frame: double free of slot %d", ref))
	}
	t.frames[ref] = Frame{}
	t.mu.Unlock()

	t.alloc.Free(f.pa)
}

// Pin protects a frame from eviction while an in-progress kernel operation
// (such as read's pre-fault copy) is using it. Unpin must be called
// exactly once for every Pin, unless the frame is freed first: Free clears
// the slot, pin count included.
func (t *Table) Pin(ref Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames[ref].pinned++
}

// Unpin releases a pin taken by Pin.
func (t *Table) Unpin(ref Ref) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frames[ref].pinned == 0 {
		panic("frame: unpin without matching pin")
	}
	t.frames[ref].pinned--
}

// Page returns the byte slice backing ref.
func (t *Table) Page(ref Ref) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[ref].page
}

// FindByPage performs the reverse lookup from physical page bytes to a
// frame slot, used by eviction when it only holds the victim's page bytes,
// matching the original's frameTable_find_by_kaddr.
func (t *Table) FindByPage(page []byte) (Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.frames {
		if t.frames[i].busy && samePage(t.frames[i].page, page) {
			return Ref(i), true
		}
	}
	return 0, false
}

func samePage(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}

// evictOne runs the second-chance algorithm over at most two full passes,
// then performs the full evict sequence on the chosen victim. It returns
// false only when no victim could be found (frame exhaustion) or the
// victim's owner failed to write the page to swap.
func (t *Table) evictOne() bool {
	t.evict_.Lock()
	defer t.evict_.Unlock()

	victim, ownerTid, ok := t.selectVictim()
	if !ok {
		return false
	}

	t.mu.Lock()
	f := t.frames[victim]
	t.mu.Unlock()

	owner := t.owner(ownerTid)
	if owner == nil {
		panic(fmt.Sprintf("frame: no owner registered for tid %d", ownerTid))
	}
	if !owner.EvictPage(f.userAddr, f.page) {
		return false
	}

	t.mu.Lock()
	t.frames[victim] = Frame{}
	t.mu.Unlock()

	t.alloc.Free(f.pa)
	return true
}

// Used reports how many frames are currently allocated, used by tests
// checking the FrameExhaustion condition in spec.md §8.
func (t *Table) Used() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.frames {
		if t.frames[i].busy {
			n++
		}
	}
	return n
}

// Size reports the table's fixed capacity.
func (t *Table) Size() int {
	return len(t.frames)
}

// selectVictim implements the second-chance clock: a frame whose owner's
// accessed bit is clear is chosen; a set bit is cleared and the scan
// continues, up to two full passes over the table.
func (t *Table) selectVictim() (Ref, defs.Tid_t, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pass := 0; pass < 2; pass++ {
		for i := range t.frames {
			f := &t.frames[i]
			if !f.busy || f.pinned > 0 {
				continue
			}
			owner := t.owner(f.ownerTid)
			if owner == nil {
				continue
			}
			if !owner.Accessed(f.userAddr) {
				return Ref(i), f.ownerTid, true
			}
			owner.ClearAccessed(f.userAddr)
		}
	}
	return 0, 0, false
}
