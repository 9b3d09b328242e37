// Package vm implements the page-fault resolution core of spec.md §4.4: an
// address space's page directory, the fault handler that consults the
// supplemental page table to decide how to satisfy a fault, and the user
// pointer validation syscalls rely on before touching guest memory. The
// locking convention (Lock_pmap/Unlock_pmap, an assertion that the fault
// lock is held) is carried over from the teacher's vm.Vm_t.
package vm

import (
	"sync"
	"sync/atomic"

	"github.com/PintCoders/pintos/accnt"
	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/frame"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/sptable"
	"github.com/PintCoders/pintos/swap"
	"github.com/PintCoders/pintos/util"
)

// StackFaultSlack is how far below the current stack pointer a faulting
// address may still be treated as legitimate stack growth (the PUSHA/PUSH
// instructions can fault up to 32 bytes below esp before esp itself is
// adjusted).
const StackFaultSlack = 32

// StackLimit bounds how far the stack may grow downward from its base,
// matching the original's 8MB stack size cap.
const StackLimit = 8 * 1024 * 1024

// PageDirectory is the hardware page table this module treats as an
// external collaborator: installing/removing a mapping and reading/
// clearing the CPU-maintained accessed bit. SoftPageDirectory is the
// reference implementation used when there is no real MMU underneath —
// every process in this module runs as an ordinary host goroutine, not
// inside a real address space.
type PageDirectory interface {
	Install(userAddr uintptr, page []byte, writable bool)
	Remove(userAddr uintptr)
	Accessed(userAddr uintptr) bool
	ClearAccessed(userAddr uintptr)
	SetWritable(userAddr uintptr, writable bool)
}

type softEntry struct {
	page     []byte
	writable bool
	accessed bool
}

// SoftPageDirectory is a software simulation of a hardware page table: a
// map from user address to the frame currently installed there, plus an
// accessed bit the fault handler and second-chance eviction both consult
// exactly as they would the real PTE_A bit.
type SoftPageDirectory struct {
	mu      sync.Mutex
	entries map[uintptr]*softEntry
}

func NewSoftPageDirectory() *SoftPageDirectory {
	return &SoftPageDirectory{entries: make(map[uintptr]*softEntry)}
}

func (s *SoftPageDirectory) Install(userAddr uintptr, page []byte, writable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userAddr] = &softEntry{page: page, writable: writable}
}

func (s *SoftPageDirectory) Remove(userAddr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userAddr)
}

func (s *SoftPageDirectory) Accessed(userAddr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userAddr]
	return ok && e.accessed
}

func (s *SoftPageDirectory) ClearAccessed(userAddr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userAddr]; ok {
		e.accessed = false
	}
}

func (s *SoftPageDirectory) SetWritable(userAddr uintptr, writable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userAddr]; ok {
		e.writable = writable
	}
}

// AddressSpace is one process's virtual memory state: its page directory,
// supplemental page table, and the locks spec.md §5 requires around fault
// resolution. It plays the role of the teacher's Vm_t.
type AddressSpace struct {
	mu        sync.Mutex
	faultHeld bool

	Dir PageDirectory
	SPT *sptable.Table

	frames *frame.Table
	swapA  *swap.Area
	tid    defs.Tid_t

	Acc *accnt.Accnt_t

	StackBase uintptr // highest stack page address, grows down from here

	esp atomic.Uintptr // user stack pointer saved at the last syscall entry
}

// SetEsp records the user stack pointer read from the trap frame at
// syscall entry (spec.md §4.5), the reference point the stack-growth
// slack window in isStackGrowth measures against. A zero value means no
// syscall has entered yet, in which case isStackGrowth falls back to the
// bare StackBase/StackLimit window.
func (as *AddressSpace) SetEsp(esp uintptr) {
	as.esp.Store(esp)
}

// New constructs an address space backed by the given frame table and
// swap area, both shared system-wide resources. acc receives counts of
// this address space's page faults, evictions and swap traffic.
func New(tid defs.Tid_t, dir PageDirectory, frames *frame.Table, swapA *swap.Area, stackBase uintptr, acc *accnt.Accnt_t) *AddressSpace {
	if acc == nil {
		acc = &accnt.Accnt_t{}
	}
	return &AddressSpace{
		Dir:       dir,
		SPT:       sptable.New(64),
		frames:    frames,
		swapA:     swapA,
		tid:       tid,
		Acc:       acc,
		StackBase: stackBase,
	}
}

// Lock_pmap acquires the address space lock and marks that fault handling
// is in progress, matching the teacher's Vm_t.Lock_pmap.
func (as *AddressSpace) Lock_pmap() {
	as.mu.Lock()
	as.faultHeld = true
}

// Unlock_pmap releases the address space lock.
func (as *AddressSpace) Unlock_pmap() {
	as.faultHeld = false
	as.mu.Unlock()
}

func (as *AddressSpace) lockassertPmap() {
	if !as.faultHeld {
		panic("vm: pmap lock must be held")
	}
}

// ValidateUserPointer checks that [addr, addr+n) is backed by a mapping
// this address space knows about (resident, swapped, or lazily provable)
// before any syscall touches it, matching the original's pointer-
// validation pass ahead of every syscall argument dereference.
func (as *AddressSpace) ValidateUserPointer(addr uintptr, n int) defs.Err_t {
	if addr == 0 {
		return -defs.EFAULT
	}
	start := mem.Rounddown(int(addr))
	end := mem.Roundup(int(addr) + n)
	for p := start; p < end; p += mem.PGSIZE {
		if _, ok := as.SPT.Find(uintptr(p)); ok {
			continue
		}
		if as.isStackGrowth(uintptr(p)) {
			continue
		}
		return -defs.EFAULT
	}
	return 0
}

// isStackGrowth decides whether addr may be treated as legitimate stack
// growth rather than an invalid access, per spec.md §4.4 step 4: addr must
// fall within the bounded stack region below StackBase, and if a syscall
// has already recorded a user esp, addr must also lie no further than
// StackFaultSlack bytes below it (addr + StackFaultSlack >= esp). Callers
// resolving a concrete fault pass the raw faulting address so the 32-byte
// slack is measured precisely; callers pre-validating a page range pass
// the page-rounded address, matching the page-granularity check spec.md
// §4.5 describes for buffer pre-faulting.
func (as *AddressSpace) isStackGrowth(addr uintptr) bool {
	pageAddr := uintptr(mem.Rounddown(int(addr)))
	if pageAddr > as.StackBase || pageAddr <= as.StackBase-StackLimit {
		return false
	}
	esp := as.esp.Load()
	if esp == 0 {
		return true
	}
	return addr+StackFaultSlack >= esp
}

// ReadUser copies n bytes starting at a guest user address into a
// freshly allocated kernel buffer, faulting in any page that is not yet
// resident. It is the copy_from_user side of every syscall that reads a
// guest buffer (write(), the path name arguments), used instead of
// treating a user address as a real host pointer, since user addresses in
// this module are simulated rather than backed by the host's own address
// space.
func (as *AddressSpace) ReadUser(addr uintptr, n int) ([]byte, defs.Err_t) {
	out := make([]byte, n)
	cur := addr
	for off := 0; off < n; {
		if err := as.Fault(cur, false); err != 0 {
			return nil, err
		}
		page, ok := as.PageBytes(cur)
		if !ok {
			return nil, -defs.EFAULT
		}
		pageOff := int(cur) & mem.PGOFFSET
		chunk := util.Min(mem.PGSIZE-pageOff, n-off)
		copy(out[off:off+chunk], page[pageOff:pageOff+chunk])
		off += chunk
		cur += uintptr(chunk)
	}
	return out, 0
}

// WriteUser copies data into guest memory starting at a user address,
// faulting in (as a write fault) any page that is not yet resident. It is
// the copy_to_user side of every syscall that fills a guest buffer
// (read()).
func (as *AddressSpace) WriteUser(addr uintptr, data []byte) defs.Err_t {
	cur := addr
	for off := 0; off < len(data); {
		if err := as.Fault(cur, true); err != 0 {
			return err
		}
		page, ok := as.PageBytes(cur)
		if !ok {
			return -defs.EFAULT
		}
		pageOff := int(cur) & mem.PGOFFSET
		chunk := util.Min(mem.PGSIZE-pageOff, len(data)-off)
		copy(page[pageOff:pageOff+chunk], data[off:off+chunk])
		off += chunk
		cur += uintptr(chunk)
	}
	return 0
}

// Fault resolves a page fault at addr for the given access (write
// indicates a write fault). It implements spec.md §4.4's five-step
// resolution: locate or synthesize a descriptor, allocate a frame, fill
// it according to provenance, install the mapping, and return control.
func (as *AddressSpace) Fault(addr uintptr, write bool) defs.Err_t {
	pageAddr := uintptr(mem.Rounddown(int(addr)))
	as.Acc.PageFault()

	as.Lock_pmap()
	as.lockassertPmap()

	d, ok := as.SPT.Find(pageAddr)
	if !ok {
		if !as.isStackGrowth(addr) {
			as.Unlock_pmap()
			return -defs.EFAULT
		}
		var created bool
		d, created = sptable.InsertAnonymous(as.SPT, pageAddr)
		if !created {
			as.Unlock_pmap()
			return -defs.EFAULT
		}
	}

	if d.State&sptable.Loaded != 0 {
		// Resident already; a concurrent fault beat us to it, or this is
		// a write fault against a read-only mmap page gaining its first
		// write.
		if write && d.Kind == sptable.Mmap && !d.Dirty {
			d.Dirty = true
			as.Dir.SetWritable(pageAddr, true)
		}
		as.Unlock_pmap()
		return 0
	}
	if write && !d.Writable {
		as.Unlock_pmap()
		return -defs.EFAULT
	}

	// Release the address space lock before allocating: eviction may need
	// to take this very lock to evict one of this process's own other
	// pages, and Lock_pmap is not reentrant. Filling the new frame's
	// contents does not touch this address space's state either, so it is
	// safe to do unlocked.
	as.Unlock_pmap()

	ref, page, err := as.frames.Alloc(as.tid, pageAddr)
	if err != 0 {
		return err
	}
	as.frames.Pin(ref)

	fillErr := as.fillFrame(d, page)

	as.Lock_pmap()
	defer as.Unlock_pmap()

	if d.State&sptable.Loaded != 0 {
		// Someone else resolved this fault while we were unlocked.
		as.frames.Free(ref)
		return 0
	}
	if fillErr != 0 {
		as.frames.Free(ref)
		return fillErr
	}
	defer as.frames.Unpin(ref)

	writable := d.Writable
	if d.Kind == sptable.Mmap && !write {
		writable = false // stays read-only until a write fault sets Dirty
	}
	as.Dir.Install(pageAddr, page, writable)
	as.SPT.SetFrame(pageAddr, ref)
	if write && d.Kind == sptable.Mmap {
		d.Dirty = true
	}
	return 0
}

// fillFrame loads page's contents according to d's provenance: a swap
// slot read-back, a file-backed/mmap read with zero-fill tail, or a plain
// zero-fill for a fresh anonymous page.
func (as *AddressSpace) fillFrame(d *sptable.Descriptor, page []byte) defs.Err_t {
	switch {
	case d.State&sptable.Swapped != 0:
		if serr := as.swapA.SwapIn(d.SwapSlot, page); serr != nil {
			return -defs.ENOMEM
		}
		as.Acc.SwapIn()
	case d.Kind == sptable.FileBacked, d.Kind == sptable.Mmap:
		if d.ReadBytes > 0 {
			if _, rerr := d.File.ReadAt(page[:d.ReadBytes], int64(d.FileOffset)); rerr != nil {
				return -defs.EFAULT
			}
		}
		for i := d.ReadBytes; i < mem.PGSIZE; i++ {
			page[i] = 0
		}
	default:
		for i := range page {
			page[i] = 0
		}
	}
	return 0
}

// EvictPage implements frame.Owner for this address space: it is called
// by the shared frame table when one of this process's frames has been
// chosen as an eviction victim.
func (as *AddressSpace) EvictPage(userAddr uintptr, page []byte) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()

	d, ok := as.SPT.Find(userAddr)
	if !ok {
		ref, _ := as.frames.FindByPage(page)
		d, _ = as.SPT.InsertLightweight(userAddr, sptable.Anonymous, ref)
	}

	as.Dir.Remove(userAddr)
	as.Acc.Evict()

	if d.Kind == sptable.Mmap && d.Dirty {
		if _, err := d.File.WriteAt(page, int64(d.FileOffset)); err != nil {
			return false
		}
		d.State = 0
		d.Dirty = false
		return true
	}

	slot, ok := as.swapA.SwapOut(page)
	if !ok {
		return false
	}
	as.SPT.SetSwapped(userAddr, slot)
	as.Acc.SwapOut()
	return true
}

// PageBytes returns the resident page backing addr, if any. It is the
// read path callers outside this package use to inspect or write guest
// memory directly (used by mmap's write-fault scenario and by tests),
// since the frame table itself is not exported.
func (as *AddressSpace) PageBytes(addr uintptr) ([]byte, bool) {
	pageAddr := uintptr(mem.Rounddown(int(addr)))
	d, ok := as.SPT.Find(pageAddr)
	if !ok || d.State&sptable.Loaded == 0 {
		return nil, false
	}
	return as.frames.Page(d.FrameRef), true
}

// ReleaseDescriptor returns a removed descriptor's backing resource (a
// frame or a swap slot) to its shared pool, used after munmap has already
// deleted the descriptor from the supplemental page table. A dirty mmap
// page is written back first, matching munmap's write-back requirement
// for any page modified since it was mapped.
func (as *AddressSpace) ReleaseDescriptor(d *sptable.Descriptor) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	switch {
	case d.State&sptable.Loaded != 0:
		page := as.frames.Page(d.FrameRef)
		if d.Kind == sptable.Mmap && d.Dirty {
			if _, err := d.File.WriteAt(page, int64(d.FileOffset)); err != nil {
				return err
			}
		}
		as.Dir.Remove(d.UserAddr)
		as.frames.Free(d.FrameRef)
	case d.State&sptable.Swapped != 0:
		as.swapA.Free(d.SwapSlot)
	}
	return nil
}

func (as *AddressSpace) Accessed(userAddr uintptr) bool {
	return as.Dir.Accessed(userAddr)
}

func (as *AddressSpace) ClearAccessed(userAddr uintptr) {
	as.Dir.ClearAccessed(userAddr)
}

// Destroy tears down the address space, freeing every resident frame and
// reserved swap slot it still owns. Callers that track active mmap
// regions separately (procvm.Proc.Exit) are expected to unmap them first
// so their write-back already happened through ReleaseDescriptor; this
// pass still checks for a stray dirty mmap descriptor and writes it back
// before freeing, the same way EvictPage and ReleaseDescriptor do, so a
// page is never silently dropped regardless of teardown order.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, d := range as.SPT.Elems() {
		switch {
		case d.State&sptable.Loaded != 0:
			if d.Kind == sptable.Mmap && d.Dirty {
				page := as.frames.Page(d.FrameRef)
				d.File.WriteAt(page, int64(d.FileOffset))
			}
			as.frames.Free(d.FrameRef)
		case d.State&sptable.Swapped != 0:
			as.swapA.Free(d.SwapSlot)
		}
	}
	as.SPT.Destroy()
}
