// Package mem defines the page-size constants and the physical-frame
// allocator boundary. The real kernel's physical page allocator
// (get_page/free_page) is an external collaborator; PageAllocator is the
// interface this module expects it to satisfy, and HostFrameAllocator is a
// reference implementation backing every "physical" frame with real
// anonymous memory obtained from the host via golang.org/x/sys/unix.Mmap,
// in the spirit of the Physmem_t pool in the teacher's mem package.
package mem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE = 1 << PGSHIFT

// PGOFFSET masks the offset of an address within its page.
const PGOFFSET = PGSIZE - 1

// SECTOR_SIZE is the size of one swap-device sector.
const SECTOR_SIZE = 512

// SectorsPerPage is the number of sectors backing one page on the swap
// device.
const SectorsPerPage = PGSIZE / SECTOR_SIZE

// Pa_t is an opaque handle to a physical frame, analogous to the teacher's
// Pa_t physical address type. It carries no arithmetic meaning here; it is
// only a key into a PageAllocator's bookkeeping.
type Pa_t uintptr

// Rounddown rounds v down to the nearest multiple of PGSIZE.
func Rounddown(v int) int { return v &^ PGOFFSET }

// Roundup rounds v up to the nearest multiple of PGSIZE.
func Roundup(v int) int { return Rounddown(v + PGOFFSET) }

// PageAligned reports whether v is a multiple of PGSIZE.
func PageAligned(v int) bool { return v&PGOFFSET == 0 }

// PageAllocator abstracts physical page allocation, the role played by
// get_page/free_page in the original kernel.
type PageAllocator interface {
	// Alloc returns a zero-filled page's bytes and an opaque handle to
	// free it later. ok is false when physical memory is exhausted.
	Alloc() (page []byte, pa Pa_t, ok bool)
	// Free returns a previously allocated page to the allocator.
	Free(pa Pa_t)
}

// HostFrameAllocator satisfies PageAllocator by handing out real
// anonymous-mmap'd pages from the host, so a "physical frame" in this
// implementation is genuinely a distinct page of memory rather than a
// slice view into one big simulated array.
type HostFrameAllocator struct {
	mu     sync.Mutex
	byAddr map[Pa_t][]byte
	next   Pa_t
}

// NewHostFrameAllocator constructs an empty allocator.
func NewHostFrameAllocator() *HostFrameAllocator {
	return &HostFrameAllocator{byAddr: make(map[Pa_t][]byte)}
}

// Alloc mmaps one fresh anonymous page and zeroes it (mmap already returns
// zeroed pages on Linux, but we do not rely on OS-specific guarantees).
func (h *HostFrameAllocator) Alloc() ([]byte, Pa_t, bool) {
	b, err := unix.Mmap(-1, 0, PGSIZE, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, false
	}
	for i := range b {
		b[i] = 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	pa := h.next
	h.byAddr[pa] = b
	return b, pa, true
}

// Free unmaps the page backing pa. It panics if pa is not currently
// allocated, mirroring the teacher's XXXPANIC style for refcount
// underflow bugs: freeing an unknown frame is a kernel bug, not a
// recoverable condition.
func (h *HostFrameAllocator) Free(pa Pa_t) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.byAddr[pa]
	if !ok {
		panic(fmt.Sprintf("mem: free of unknown frame %#x", pa))
	}
	delete(h.byAddr, pa)
	_ = unix.Munmap(b)
}
