// Package defs holds the constants and small value types shared across the
// virtual memory and syscall core: error codes, thread ids, and the syscall
// number table. It plays the role the teacher's defs package plays for the
// rest of biscuit, but scoped to this module's domain.
package defs

// Err_t is the kernel's errno-style return value, used instead of Go's
// error interface at the syscall boundary because the real ABI places an
// integer in a return register, not a wrapped error.
type Err_t int

// Sentinel error codes used throughout the vm/syscall core.
const (
	EFAULT  Err_t = 14
	ENOMEM  Err_t = 12
	ENOSPC  Err_t = 28
	EINVAL  Err_t = 22
	EBADF   Err_t = 9
	ENOSYS  Err_t = 38
	ENOENT  Err_t = 2
)

// Tid_t identifies the owning process/thread of a frame or page descriptor.
// The real scheduler and thread table are out of scope for this module;
// Tid_t is just the key the external collaborator would look thread state
// up by.
type Tid_t int

// Syscall numbers, matching the standard Pintos project 2/3 syscall set.
const (
	SYS_HALT = iota
	SYS_EXIT
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE
	SYS_MMAP
	SYS_MUNMAP
)

// Special, reserved file descriptors. fd=0 and fd=1 never appear in a
// process's file descriptor table.
const (
	FD_STDIN  = 0
	FD_STDOUT = 1
	FD_FIRST  = 3
)

// KilledExit is the exit status used whenever the kernel force-terminates a
// process: a bad user pointer, a bad syscall number, or failed eviction.
const KilledExit = -1
