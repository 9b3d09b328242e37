// Package fdtable implements the per-process file descriptor table spec.md
// §3 describes, grounded on the teacher's fd package's Fd_t handle shape
// but scoped per-process rather than indexed through a global table, per
// SPEC_FULL.md §9's resolution of that design question.
package fdtable

import (
	"sync"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/hostfs"
)

// Entry is one open file descriptor.
type Entry struct {
	File *hostfs.File
}

// Table is one process's file descriptor table. fd 0 and 1 are reserved
// for stdin/stdout and never appear as keys; allocation starts at
// defs.FD_FIRST and increases monotonically, matching the original's
// fdarray allocation order.
type Table struct {
	mu    sync.Mutex
	next  int
	open  map[int]*Entry
	limit int
}

// New constructs an empty table allowing at most limit simultaneously open
// descriptors.
func New(limit int) *Table {
	return &Table{next: defs.FD_FIRST, open: make(map[int]*Entry), limit: limit}
}

// Insert allocates the next free fd for file and returns it.
func (t *Table) Insert(file *hostfs.File) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.open) >= t.limit {
		return 0, -defs.ENOMEM
	}
	fd := t.next
	t.next++
	t.open[fd] = &Entry{File: file}
	return fd, 0
}

// Get returns the entry for fd, or ok=false if fd is not open.
func (t *Table) Get(fd int) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.open[fd]
	return e, ok
}

// Remove closes and forgets fd. It reports EBADF if fd was not open.
func (t *Table) Remove(fd int) defs.Err_t {
	t.mu.Lock()
	e, ok := t.open[fd]
	if !ok {
		t.mu.Unlock()
		return -defs.EBADF
	}
	delete(t.open, fd)
	t.mu.Unlock()

	e.File.Close()
	return 0
}

// Destroy closes every still-open descriptor, used at process exit.
func (t *Table) Destroy() {
	t.mu.Lock()
	entries := make([]*Entry, 0, len(t.open))
	for fd, e := range t.open {
		entries = append(entries, e)
		delete(t.open, fd)
	}
	t.mu.Unlock()
	for _, e := range entries {
		e.File.Close()
	}
}
