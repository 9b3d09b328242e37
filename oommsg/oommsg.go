// Package oommsg carries the out-of-memory notification the frame table
// sends when it cannot satisfy an allocation even after running eviction,
// adapted from the teacher's oommsg package.
package oommsg

// OomCh is the default channel frame.Table reports exhaustion on when no
// test has overridden it via frame.Table.NotifyOOM.
var OomCh = make(chan Oommsg_t, 1)

// Oommsg_t is sent on OomCh when the frame table runs out of frames. Need
// is always 1 in this module: unlike the original, which sized a resume
// request by page count, a blocked allocator here wants exactly one frame.
type Oommsg_t struct {
	Need int
}
