// Package sptable implements the per-process supplemental page table of
// spec.md §3/§4.3. It is a direct specialization of the teacher's
// hashtable.Hashtable_t (lock-striped buckets, lock-free Get via atomic
// pointer loads) to a fixed uintptr key — a page-aligned user virtual
// address — instead of the teacher's interface{} key, since every lookup
// on this path is keyed the same way and boxing costs were worth shedding.
package sptable

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/PintCoders/pintos/frame"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/swap"
)

// Kind records how a page's provenance should be resolved if it is not
// currently resident: what to zero-fill, what file range to read, or what
// swap slot to read back.
type Kind int

const (
	Anonymous Kind = iota
	FileBacked
	Mmap
)

// State is a small bitset, deliberately using distinct bits instead of the
// original's enum (which conflated "loaded" and "swapped" on the same
// value and could not represent a page that is neither).
type State uint8

const (
	Loaded  State = 1 << 0
	Swapped State = 1 << 1
)

// Descriptor is one supplemental page table entry.
type Descriptor struct {
	Kind     Kind
	State    State
	UserAddr uintptr

	FrameRef frame.Ref

	SwapSlot swap.Slot

	File       *hostfs.File
	FileOffset int
	ReadBytes  int
	ZeroBytes  int
	Writable   bool
	Dirty      bool
}

type elem struct {
	key   uintptr
	value *Descriptor
	next  *elem
}

type bucket struct {
	sync.RWMutex
	first *elem
}

// Table is the supplemental page table for a single process's address
// space.
type Table struct {
	buckets []*bucket
}

// New constructs an empty table with the given bucket count.
func New(size int) *Table {
	t := &Table{buckets: make([]*bucket, size)}
	for i := range t.buckets {
		t.buckets[i] = &bucket{}
	}
	return t
}

func loadnext(e **elem) *elem {
	p := atomic.LoadPointer((*unsafe.Pointer)(unsafe.Pointer(e)))
	return (*elem)(p)
}

func storenext(e **elem, n *elem) {
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Pointer(e)), unsafe.Pointer(n))
}

func keyhash(addr uintptr) uint32 {
	// FNV-1a over the address bytes, matching the teacher's hashtable use
	// of FNV for its string-keyed buckets.
	h := uint32(2166136261)
	for i := 0; i < 8; i++ {
		h ^= uint32((addr >> (uint(i) * 8)) & 0xff)
		h *= 16777619
	}
	return h
}

func (t *Table) bucketFor(addr uintptr) *bucket {
	return t.buckets[keyhash(addr)%uint32(len(t.buckets))]
}

// find is the lock-free read path shared by every public lookup.
func (t *Table) find(addr uintptr) (*Descriptor, bool) {
	b := t.bucketFor(addr)
	for e := loadnext(&b.first); e != nil; e = loadnext(&e.next) {
		if e.key == addr {
			return e.value, true
		}
	}
	return nil, false
}

// Find looks up the descriptor for a page-aligned user address.
func (t *Table) Find(addr uintptr) (*Descriptor, bool) {
	return t.find(addr)
}

func (t *Table) insert(d *Descriptor) bool {
	b := t.bucketFor(d.UserAddr)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == d.UserAddr {
			return false
		}
	}
	storenext(&b.first, &elem{key: d.UserAddr, value: d, next: b.first})
	return true
}

// InsertAnonymous records a lazily-zero-filled anonymous page (stack
// growth, or a fresh anonymous mapping) that has not yet been loaded.
func InsertAnonymous(t *Table, addr uintptr) (*Descriptor, bool) {
	d := &Descriptor{Kind: Anonymous, UserAddr: addr, Writable: true}
	return d, t.insert(d)
}

// InsertFileBacked records a lazily-loaded page of an executable segment,
// loaded on first fault from file at [off, off+readBytes) with the
// remainder zero-filled.
func InsertFileBacked(t *Table, addr uintptr, file *hostfs.File, off, readBytes, zeroBytes int, writable bool) (*Descriptor, bool) {
	d := &Descriptor{
		Kind: FileBacked, UserAddr: addr, File: file,
		FileOffset: off, ReadBytes: readBytes, ZeroBytes: zeroBytes, Writable: writable,
	}
	return d, t.insert(d)
}

// InsertMmap records one page of a memory-mapped file region. length is
// the number of file bytes backing this particular page (already clamped
// per page by the caller); the remainder of the page is zero-filled, so
// ReadBytes+ZeroBytes always equals PGSIZE, the same invariant
// InsertFileBacked maintains for an executable segment's final page.
// Unlike InsertFileBacked, a dirty mmap page must be written back to file
// rather than discarded; State starts unloaded and the page directory
// maps it read-only until the first write fault sets Dirty, per spec.md
// §9's resolution of the original's broken dirty-bit tracking.
func InsertMmap(t *Table, addr uintptr, file *hostfs.File, off, length int) (*Descriptor, bool) {
	d := &Descriptor{
		Kind: Mmap, UserAddr: addr, File: file,
		FileOffset: off, ReadBytes: length, ZeroBytes: mem.PGSIZE - length, Writable: true,
	}
	return d, t.insert(d)
}

// InsertLightweight records a descriptor for a page that has already been
// loaded into frame ref (used by eviction's locate-or-create step when the
// victim's page has no descriptor yet).
func (t *Table) InsertLightweight(addr uintptr, kind Kind, ref frame.Ref) (*Descriptor, bool) {
	d := &Descriptor{Kind: kind, UserAddr: addr, FrameRef: ref, State: Loaded, Writable: true}
	return d, t.insert(d)
}

// Delete removes addr's descriptor. It panics if addr has no descriptor,
// matching the teacher's Del on a non-existing key: callers must already
// know the page exists.
func (t *Table) Delete(addr uintptr) {
	b := t.bucketFor(addr)
	b.Lock()
	defer b.Unlock()
	var prev *elem
	for e := b.first; e != nil; e = e.next {
		if e.key == addr {
			if prev == nil {
				storenext(&b.first, e.next)
			} else {
				storenext(&prev.next, e.next)
			}
			return
		}
		prev = e
	}
	panic(fmt.Sprintf("sptable: delete of non-existing key %#x", addr))
}

// Overlaps reports whether any of the page addresses in addrs already has
// a descriptor, used by InsertMmap's caller to refuse a
// mapping that would collide with an existing mapping, per spec.md's mmap
// invariant.
func (t *Table) Overlaps(addrs []uintptr) bool {
	for _, a := range addrs {
		if _, ok := t.find(a); ok {
			return true
		}
	}
	return false
}

// SetFrame transitions addr's descriptor to resident in ref, clearing any
// swapped state.
func (t *Table) SetFrame(addr uintptr, ref frame.Ref) {
	d, ok := t.find(addr)
	if !ok {
		panic(fmt.Sprintf("sptable: set-frame of non-existing key %#x", addr))
	}
	d.FrameRef = ref
	d.State = Loaded
}

// SetSwapped transitions addr's descriptor to evicted at slot, clearing
// residency.
func (t *Table) SetSwapped(addr uintptr, slot swap.Slot) {
	d, ok := t.find(addr)
	if !ok {
		panic(fmt.Sprintf("sptable: set-swapped of non-existing key %#x", addr))
	}
	d.State = Swapped
	d.SwapSlot = slot
}

// Elems returns every descriptor currently in the table, used by process
// teardown to free frames and swap slots.
func (t *Table) Elems() []*Descriptor {
	out := make([]*Descriptor, 0)
	for _, b := range t.buckets {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			out = append(out, e.value)
		}
		b.RUnlock()
	}
	return out
}

// Destroy empties the table. Callers are responsible for freeing any
// frames/swap slots referenced by the descriptors (as returned by Elems)
// first.
func (t *Table) Destroy() {
	for _, b := range t.buckets {
		b.Lock()
		b.first = nil
		b.Unlock()
	}
}
