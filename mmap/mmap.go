// Package mmap implements the memory-mapped file regions of spec.md §4.3's
// Mmap provenance and the mmap/munmap syscalls' shared bookkeeping. A
// process may hold more than one concurrent mapping, keyed by base
// address, lifting the original's single-mapping-per-process restriction
// per SPEC_FULL.md §9.
package mmap

import (
	"sync"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/sptable"
)

// Region describes one active mapping.
type Region struct {
	Base   uintptr
	Length int
	File   *hostfs.File
	Pages  []uintptr
}

// Manager tracks every mapping active in one address space.
type Manager struct {
	mu      sync.Mutex
	regions map[uintptr]*Region
	spt     *sptable.Table
}

// New constructs an empty manager over the given supplemental page table.
func New(spt *sptable.Table) *Manager {
	return &Manager{regions: make(map[uintptr]*Region), spt: spt}
}

// Map establishes a new mapping of file starting at base, covering length
// bytes rounded up to a whole number of pages. It refuses to overlap any
// existing mapping or other descriptor already present in the
// supplemental page table, and rolls back every page it has already
// inserted if a later page in the same call fails.
func (m *Manager) Map(base uintptr, file *hostfs.File, length int) (*Region, defs.Err_t) {
	if length <= 0 || !mem.PageAligned(int(base)) || base == 0 {
		return nil, -defs.EINVAL
	}

	numPages := mem.Roundup(length) / mem.PGSIZE
	pages := make([]uintptr, numPages)
	for i := range pages {
		pages[i] = base + uintptr(i*mem.PGSIZE)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spt.Overlaps(pages) {
		return nil, -defs.EINVAL
	}

	inserted := make([]uintptr, 0, numPages)
	off := 0
	for _, addr := range pages {
		readBytes := length - off
		if readBytes > mem.PGSIZE {
			readBytes = mem.PGSIZE
		}
		if readBytes < 0 {
			readBytes = 0
		}
		if _, ok := sptable.InsertMmap(m.spt, addr, file, off, readBytes); !ok {
			for _, done := range inserted {
				m.spt.Delete(done)
			}
			return nil, -defs.EINVAL
		}
		inserted = append(inserted, addr)
		off += mem.PGSIZE
	}

	r := &Region{Base: base, Length: length, File: file, Pages: pages}
	m.regions[base] = r
	return r, 0
}

// Unmap tears down the mapping at base: it removes every page's descriptor
// from the supplemental page table and returns the removed descriptors.
// It writes nothing back itself. Writing back dirty pages and freeing the
// underlying frame or swap slot is the caller's responsibility (it
// requires the frame table/swap area and address-space lock this package
// does not hold); vm.AddressSpace.ReleaseDescriptor does both.
func (m *Manager) Unmap(base uintptr) ([]*sptable.Descriptor, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.regions[base]
	if !ok {
		return nil, -defs.EINVAL
	}
	delete(m.regions, base)

	out := make([]*sptable.Descriptor, 0, len(r.Pages))
	for _, addr := range r.Pages {
		d, ok := m.spt.Find(addr)
		if !ok {
			continue
		}
		out = append(out, d)
		m.spt.Delete(addr)
	}
	return out, 0
}

// Find returns the region whose base matches addr exactly, the form
// munmap's mapid argument takes in the original ABI.
func (m *Manager) Find(base uintptr) (*Region, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[base]
	return r, ok
}

// Bases returns the base address of every mapping still active in this
// manager, used by process exit to unmap everything a process never got
// around to calling munmap() on itself.
func (m *Manager) Bases() []uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uintptr, 0, len(m.regions))
	for base := range m.regions {
		out = append(out, base)
	}
	return out
}
