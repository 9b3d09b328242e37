// Package accnt tracks per-process accounting, adapted from the teacher's
// accnt.Accnt_t: a mutex-protected record that accumulates over a
// process's lifetime and can be read out as a consistent snapshot. Wall
// clock usage is kept because it is ambient bookkeeping the teacher
// always carries; the virtual-memory-specific counters (faults,
// evictions, swap traffic) are this module's own addition, grounded on the
// same accumulate-and-snapshot shape.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Accnt_t accumulates one process's usage. Durations are measured in
// nanoseconds, matching the teacher's Userns/Sysns fields.
type Accnt_t struct {
	sync.Mutex
	Userns int64
	Sysns  int64

	PageFaults int64
	Evictions  int64
	SwapOuts   int64
	SwapIns    int64
}

func (a *Accnt_t) Utadd(delta int64)   { atomic.AddInt64(&a.Userns, delta) }
func (a *Accnt_t) Systadd(delta int64) { atomic.AddInt64(&a.Sysns, delta) }

// Now returns the current time in nanoseconds, matching the teacher's
// Accnt_t.Now used to timestamp the start of an accounted interval.
func (a *Accnt_t) Now() int64 { return time.Now().UnixNano() }

// Finish adds the time elapsed since start to system time, called when a
// syscall that was being accounted completes.
func (a *Accnt_t) Finish(start int64) {
	a.Systadd(a.Now() - start)
}

func (a *Accnt_t) PageFault()      { atomic.AddInt64(&a.PageFaults, 1) }
func (a *Accnt_t) Evict()          { atomic.AddInt64(&a.Evictions, 1) }
func (a *Accnt_t) SwapOut()        { atomic.AddInt64(&a.SwapOuts, 1) }
func (a *Accnt_t) SwapIn()         { atomic.AddInt64(&a.SwapIns, 1) }

// Snapshot is a consistent point-in-time copy of an Accnt_t, safe to read
// without the original's lock.
type Snapshot struct {
	Userns, Sysns                       int64
	PageFaults, Evictions               int64
	SwapOuts, SwapIns                   int64
}

// Fetch takes a consistent snapshot under lock, matching the teacher's
// Accnt_t.Fetch.
func (a *Accnt_t) Fetch() Snapshot {
	a.Lock()
	defer a.Unlock()
	return Snapshot{
		Userns: a.Userns, Sysns: a.Sysns,
		PageFaults: a.PageFaults, Evictions: a.Evictions,
		SwapOuts: a.SwapOuts, SwapIns: a.SwapIns,
	}
}

// Add merges n's counters into a, used when a child's accounting is
// folded into its parent at wait(), matching the teacher's Accnt_t.Add.
func (a *Accnt_t) Add(n *Accnt_t) {
	s := n.Fetch()
	a.Lock()
	defer a.Unlock()
	a.Userns += s.Userns
	a.Sysns += s.Sysns
	a.PageFaults += s.PageFaults
	a.Evictions += s.Evictions
	a.SwapOuts += s.SwapOuts
	a.SwapIns += s.SwapIns
}
