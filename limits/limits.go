// Package limits tracks system-wide resource counters, adapted from the
// teacher's Sysatomic_t/Syslimit_t pattern: frames and swap slots are
// give/take counters and open files have a fixed per-process ceiling,
// rather than unbounded slices, so exhaustion is a testable condition
// instead of an OOM crash discovered by accident.
package limits

import "sync/atomic"

// Counter is a resource limit that can be atomically given back and taken
// from. It starts at the capacity passed to New and saturates at zero.
type Counter struct {
	remaining int64
}

// New returns a Counter initialized to the given capacity.
func New(capacity int) *Counter {
	return &Counter{remaining: int64(capacity)}
}

// Take attempts to reserve n units, returning false without effect if doing
// so would drive the counter negative.
func (c *Counter) Take(n int) bool {
	if atomic.AddInt64(&c.remaining, -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64(&c.remaining, int64(n))
	return false
}

// Give releases n units back to the counter.
func (c *Counter) Give(n int) {
	atomic.AddInt64(&c.remaining, int64(n))
}

// Remaining reports the current number of free units.
func (c *Counter) Remaining() int {
	return int(atomic.LoadInt64(&c.remaining))
}

// System bundles the resource limits shared by every process in this
// module: total frames, total swap slots, and the per-process fd ceiling.
type System struct {
	Frames    *Counter
	SwapSlots *Counter
	OpenFiles int
}

// Default resource limits: 380 frames as in the teacher's FT_SIZE, a swap
// area of four times the frame count (a realistic over-provision for a
// single guest process), and a generous per-process fd ceiling.
func Default() *System {
	const ftSize = 380
	return &System{
		Frames:    New(ftSize),
		SwapSlots: New(ftSize * 4),
		OpenFiles: 1024,
	}
}
