// Package syscall implements the syscall dispatcher of spec.md §4.5: the
// table mapping syscall number to handler, and the argument/pointer
// validation every handler performs before touching guest memory or
// acting on a file descriptor. Real process creation and ELF loading are
// external collaborators this module does not implement (exec/wait are
// minimal stand-ins over procvm.System's process table, exactly as the
// host filesystem stands in for a real on-disk format); everything that is
// this module's concern — argument validation, fault-safe copies, fd
// lifecycle, mmap/munmap — is implemented in full.
package syscall

import (
	"io"
	"os"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/procvm"
)

// Dispatcher routes a syscall number plus its three raw arguments to the
// matching handler, bound to one process and the system it belongs to.
type Dispatcher struct {
	Sys    *procvm.System
	Proc   *procvm.Proc
	Stdout io.Writer
}

// Init constructs a dispatcher for proc within sys, matching the
// convention the teacher's subsystems use of an explicit Init entry point
// rather than package-level globals. Stdout defaults to os.Stdout; tests
// substitute a buffer to capture SYS_WRITE output.
func Init(sys *procvm.System, proc *procvm.Proc) *Dispatcher {
	return &Dispatcher{Sys: sys, Proc: proc, Stdout: os.Stdout}
}

// Args is the three-word argument vector read off the user stack at
// syscall entry, matching the original's esp-relative argument reads.
type Args [3]uintptr

// Dispatch executes syscall number num with args, returning the value to
// place in the return-value register and a kernel error code. A non-zero
// err is a kernel error code: -EFAULT (a bad user pointer) and -ENOSYS (an
// unrecognized syscall number) are the conditions the original kills the
// process for with exit status defs.KilledExit; other codes, such as
// -EBADF for a descriptor that is not open, report a failed call. Dispatch
// does not terminate the process itself; acting on err is left to the
// caller.
//
// esp is the user stack pointer the trap frame reported on entry. Per
// spec.md §4.5, it is recorded as this address space's current stack
// pointer (the reference point Fault's stack-growth slack window uses)
// and esp[0..3] is validated before num is dispatched at all; a bad esp
// kills the process exactly like a bad syscall argument pointer.
func (d *Dispatcher) Dispatch(num int, esp uintptr, a Args) (ret uintptr, err defs.Err_t) {
	d.Proc.AS.SetEsp(esp)
	if verr := d.Proc.AS.ValidateUserPointer(esp, 4); verr != 0 {
		return uintptr(defs.KilledExit), verr
	}
	switch num {
	case defs.SYS_HALT:
		return 0, 0
	case defs.SYS_EXIT:
		return d.sysExit(int(a[0]))
	case defs.SYS_EXEC:
		return d.sysExec(a[0])
	case defs.SYS_WAIT:
		return d.sysWait(defs.Tid_t(a[0]))
	case defs.SYS_CREATE:
		return d.sysCreate(a[0], int(a[1]))
	case defs.SYS_REMOVE:
		return d.sysRemove(a[0])
	case defs.SYS_OPEN:
		return d.sysOpen(a[0])
	case defs.SYS_FILESIZE:
		return d.sysFilesize(int(a[0]))
	case defs.SYS_READ:
		return d.sysRead(int(a[0]), a[1], int(a[2]))
	case defs.SYS_WRITE:
		return d.sysWrite(int(a[0]), a[1], int(a[2]))
	case defs.SYS_SEEK:
		return d.sysSeek(int(a[0]), int(a[1]))
	case defs.SYS_TELL:
		return d.sysTell(int(a[0]))
	case defs.SYS_CLOSE:
		return d.sysClose(int(a[0]))
	case defs.SYS_MMAP:
		return d.sysMmap(int(a[0]), a[1])
	case defs.SYS_MUNMAP:
		return d.sysMunmap(int(a[0]))
	default:
		return 0, -defs.ENOSYS
	}
}

// readUserString copies a NUL-terminated string out of guest memory one
// byte at a time via AddressSpace.ReadUser, which faults in pages as
// needed, so a string that runs off the end of a mapped region is caught
// by Fault returning EFAULT rather than read past it.
func (d *Dispatcher) readUserString(addr uintptr) (string, defs.Err_t) {
	buf := make([]byte, 0, 64)
	p := addr
	for {
		b, err := d.Proc.AS.ReadUser(p, 1)
		if err != 0 {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), 0
		}
		buf = append(buf, b[0])
		p++
		if len(buf) > 4096 {
			return "", -defs.EINVAL
		}
	}
}

func (d *Dispatcher) sysExit(status int) (uintptr, defs.Err_t) {
	d.Proc.Exit(status)
	return 0, 0
}

// sysExec is a bookkeeping stand-in for fork+exec: it allocates a new
// process under the same system and records it, without loading any
// actual executable image (the ELF loader is out of this module's scope,
// the same way the host filesystem's on-disk format is).
func (d *Dispatcher) sysExec(pathAddr uintptr) (uintptr, defs.Err_t) {
	if _, verr := d.readUserString(pathAddr); verr != 0 {
		return uintptr(defs.KilledExit), verr
	}
	child := d.Sys.NewProc()
	return uintptr(child.Tid), 0
}

// sysWait looks up a child's exit status and reaps its process-table
// entry. Without a real scheduler there is no blocking: the child is
// assumed to have already run to completion before wait() is called.
func (d *Dispatcher) sysWait(tid defs.Tid_t) (uintptr, defs.Err_t) {
	child, ok := d.Sys.Lookup(tid)
	if !ok {
		return uintptr(int(-1)), 0
	}
	status := child.ExitStatus
	d.Proc.Acc.Add(child.Acc)
	d.Sys.Reap(tid)
	return uintptr(status), 0
}

func (d *Dispatcher) sysCreate(nameAddr uintptr, size int) (uintptr, defs.Err_t) {
	name, verr := d.readUserString(nameAddr)
	if verr != 0 {
		return 0, verr
	}
	if size < 0 {
		return 0, -defs.EINVAL
	}
	ok, err := d.Sys.FS.Create(name, size)
	if err != nil || !ok {
		return 0, 0
	}
	return 1, 0
}

func (d *Dispatcher) sysRemove(nameAddr uintptr) (uintptr, defs.Err_t) {
	name, verr := d.readUserString(nameAddr)
	if verr != 0 {
		return 0, verr
	}
	if d.Sys.FS.Remove(name) {
		return 1, 0
	}
	return 0, 0
}

func (d *Dispatcher) sysOpen(nameAddr uintptr) (uintptr, defs.Err_t) {
	name, verr := d.readUserString(nameAddr)
	if verr != 0 {
		return uintptr(int(-1)), verr
	}
	f, err := d.Sys.FS.Open(name)
	if err != nil {
		return uintptr(int(-1)), 0
	}
	fd, ferr := d.Proc.FDs.Insert(f)
	if ferr != 0 {
		f.Close()
		return uintptr(int(-1)), 0
	}
	return uintptr(fd), 0
}

func (d *Dispatcher) sysFilesize(fd int) (uintptr, defs.Err_t) {
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return 0, -defs.EBADF
	}
	n, err := e.File.Size()
	if err != nil {
		return 0, 0
	}
	return uintptr(n), 0
}

func (d *Dispatcher) sysRead(fd int, bufAddr uintptr, n int) (uintptr, defs.Err_t) {
	if n < 0 {
		return 0, -defs.EINVAL
	}
	if verr := d.Proc.AS.ValidateUserPointer(bufAddr, n); verr != 0 {
		return uintptr(defs.KilledExit), verr
	}
	if fd == defs.FD_STDIN {
		return 0, 0
	}
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return uintptr(int(-1)), -defs.EBADF
	}
	buf := make([]byte, n)
	read, err := e.File.Read(buf)
	if err != nil && read == 0 {
		return uintptr(int(-1)), 0
	}
	if werr := d.Proc.AS.WriteUser(bufAddr, buf[:read]); werr != 0 {
		return uintptr(defs.KilledExit), werr
	}
	return uintptr(read), 0
}

func (d *Dispatcher) sysWrite(fd int, bufAddr uintptr, n int) (uintptr, defs.Err_t) {
	if n < 0 {
		return 0, -defs.EINVAL
	}
	if verr := d.Proc.AS.ValidateUserPointer(bufAddr, n); verr != 0 {
		return uintptr(defs.KilledExit), verr
	}
	src, rerr := d.Proc.AS.ReadUser(bufAddr, n)
	if rerr != 0 {
		return uintptr(defs.KilledExit), rerr
	}
	if fd == defs.FD_STDOUT {
		w, _ := d.Stdout.Write(src)
		return uintptr(w), 0
	}
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return 0, -defs.EBADF
	}
	written, err := e.File.Write(src)
	if err != nil && written == 0 {
		return 0, 0
	}
	return uintptr(written), 0
}

func (d *Dispatcher) sysSeek(fd, pos int) (uintptr, defs.Err_t) {
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return 0, -defs.EBADF
	}
	e.File.Seek(pos)
	return 0, 0
}

func (d *Dispatcher) sysTell(fd int) (uintptr, defs.Err_t) {
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return 0, -defs.EBADF
	}
	return uintptr(e.File.Tell()), 0
}

func (d *Dispatcher) sysClose(fd int) (uintptr, defs.Err_t) {
	if ferr := d.Proc.FDs.Remove(fd); ferr != 0 {
		return 0, ferr
	}
	return 0, 0
}

func (d *Dispatcher) sysMmap(fd int, addr uintptr) (uintptr, defs.Err_t) {
	e, ok := d.Proc.FDs.Get(fd)
	if !ok {
		return uintptr(int(-1)), 0
	}
	size, err := e.File.Size()
	if err != nil || size == 0 {
		return uintptr(int(-1)), 0
	}
	reopened, rerr := e.File.Reopen()
	if rerr != nil {
		return uintptr(int(-1)), 0
	}
	if _, merr := d.Proc.Mmaps.Map(addr, reopened, size); merr != 0 {
		reopened.Close()
		return uintptr(int(-1)), 0
	}
	return addr, 0
}

func (d *Dispatcher) sysMunmap(mapid int) (uintptr, defs.Err_t) {
	descs, merr := d.Proc.Mmaps.Unmap(uintptr(mapid))
	if merr != 0 {
		return 0, merr
	}
	for _, desc := range descs {
		if werr := d.Proc.AS.ReleaseDescriptor(desc); werr != nil {
			return 0, -defs.EFAULT
		}
	}
	return 0, 0
}
