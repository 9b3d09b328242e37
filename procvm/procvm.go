// Package procvm assembles the frame table, swap area, host filesystem and
// per-process virtual memory state into the single system a syscall
// dispatcher drives. It plays the role the teacher's proc package plays
// for thread/process bookkeeping, reduced to what this module's domain
// needs: no scheduler, no real threads, just the address-space and
// resource-accounting state a guest process owns.
package procvm

import (
	"sync"

	"github.com/PintCoders/pintos/accnt"
	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/fdtable"
	"github.com/PintCoders/pintos/frame"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/limits"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/mmap"
	"github.com/PintCoders/pintos/swap"
	"github.com/PintCoders/pintos/vm"
)

// DefaultStackBase is where a fresh process's user stack begins, growing
// downward. It is an arbitrary but page-aligned address far enough from
// zero that small pointer-arithmetic bugs in a guest don't wrap into it.
const DefaultStackBase = 0x40000000

// System is the shared state every process in one run of this module
// draws on: the frame table and swap area are genuinely shared resources,
// contended exactly as spec.md §5 describes, while the host filesystem is
// the external collaborator every process's fd table opens files against.
type System struct {
	Frames *frame.Table
	Swap   *swap.Area
	FS     *hostfs.FileSystem
	Limits *limits.System

	mu      sync.Mutex
	nextTid defs.Tid_t
	procs   map[defs.Tid_t]*Proc
}

// New constructs a system with the default resource limits, backed by fs
// for file storage and an in-memory device for swap.
func New(fs *hostfs.FileSystem) *System {
	lim := limits.Default()
	frames := frame.New(lim.Frames.Remaining(), mem.NewHostFrameAllocator())
	swapArea := swap.New(swap.NewMemDevice(lim.SwapSlots.Remaining()), lim.SwapSlots.Remaining(), lim.SwapSlots)
	return &System{
		Frames: frames,
		Swap:   swapArea,
		FS:     fs,
		Limits: lim,
		procs:  make(map[defs.Tid_t]*Proc),
	}
}

// Proc bundles one process's virtual memory, file descriptors, memory
// mappings and accounting.
type Proc struct {
	Tid   defs.Tid_t
	AS    *vm.AddressSpace
	FDs   *fdtable.Table
	Mmaps *mmap.Manager
	Acc   *accnt.Accnt_t

	sys        *System
	ExitStatus int
}

// NewProc allocates a tid and a fresh address space/fd table/mmap manager
// for a new process, and registers it with the frame table so eviction
// can reach it.
func (s *System) NewProc() *Proc {
	s.mu.Lock()
	s.nextTid++
	tid := s.nextTid
	s.mu.Unlock()

	acc := &accnt.Accnt_t{}
	dir := vm.NewSoftPageDirectory()
	as := vm.New(tid, dir, s.Frames, s.Swap, DefaultStackBase, acc)
	s.Frames.RegisterOwner(tid, as)

	p := &Proc{
		Tid:   tid,
		AS:    as,
		FDs:   fdtable.New(s.Limits.OpenFiles),
		Mmaps: mmap.New(as.SPT),
		Acc:   acc,
		sys:   s,
	}

	s.mu.Lock()
	s.procs[tid] = p
	s.mu.Unlock()
	return p
}

// Lookup returns the process with the given tid, used by wait() to find a
// child's accounting record.
func (s *System) Lookup(tid defs.Tid_t) (*Proc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[tid]
	return p, ok
}

// Exit tears a process's address space and file descriptors down and
// records status for a later wait() to observe. The process entry itself
// stays in its system's table until Reap removes it, since exit() and
// wait() are typically called from different goroutines in these tests
// and a reaped status would otherwise race the wait() that wants it.
//
// Per spec.md's syscall table, exit() must munmap any memory map the
// process still has active before it terminates, the same way an
// explicit munmap() call does (write back whatever is dirty, then free
// the frame or swap slot), rather than letting AS.Destroy silently drop
// unwritten changes.
func (p *Proc) Exit(status int) {
	p.ExitStatus = status
	for _, base := range p.Mmaps.Bases() {
		descs, merr := p.Mmaps.Unmap(base)
		if merr != 0 {
			continue
		}
		for _, d := range descs {
			p.AS.ReleaseDescriptor(d)
		}
	}
	p.AS.Destroy()
	p.FDs.Destroy()
	p.sys.Frames.UnregisterOwner(p.Tid)
}

// Reap removes tid from the system's process table, called once a parent
// has observed its exit status via wait().
func (s *System) Reap(tid defs.Tid_t) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, tid)
}
