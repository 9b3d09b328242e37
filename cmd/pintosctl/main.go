// Command pintosctl drives the virtual memory and syscall core outside of
// any real guest program, one subcommand per testable scenario in
// spec.md §8. It plays the role of a debug/diagnostic CLI the way the
// teacher's own tooling wraps kernel subsystems for manual exercise,
// built with the same github.com/spf13/cobra command tree shape the rest
// of the example pack's CLIs use.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PintCoders/pintos/defs"
	"github.com/PintCoders/pintos/hostfs"
	"github.com/PintCoders/pintos/mem"
	"github.com/PintCoders/pintos/procvm"
	"github.com/PintCoders/pintos/syscall"
)

func newSystem() (*procvm.System, error) {
	fs, err := hostfs.NewMem()
	if err != nil {
		return nil, err
	}
	return procvm.New(fs), nil
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pintosctl",
		Short: "exercise the virtual memory and syscall core end to end",
	}
	root.AddCommand(
		writeStdoutCmd(),
		badPointerCmd(),
		stackGrowthCmd(),
		swapCycleCmd(),
		mmapRoundtripCmd(),
		concurrentOpenCmd(),
	)
	return root
}

func writeStdoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-stdout",
		Short: "write a buffer to fd 1 through the syscall dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			proc := sys.NewProc()
			var out bytes.Buffer
			d := syscall.Init(sys, proc)
			d.Stdout = &out

			msg := []byte("hello from pintosctl\n")
			bufAddr := writeIntoStack(proc, msg)
			ret, serr := d.Dispatch(defs.SYS_WRITE, procvm.DefaultStackBase, syscall.Args{uintptr(defs.FD_STDOUT), bufAddr, uintptr(len(msg))})
			if serr != 0 {
				return fmt.Errorf("write syscall failed: err=%d", serr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes, captured: %q\n", ret, out.String())
			return nil
		},
	}
}

func badPointerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bad-pointer",
		Short: "demonstrate a syscall killed by an unmapped user pointer",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			proc := sys.NewProc()
			d := syscall.Init(sys, proc)
			_, serr := d.Dispatch(defs.SYS_WRITE, procvm.DefaultStackBase, syscall.Args{uintptr(defs.FD_STDOUT), 0xdeadbeef, 16})
			fmt.Fprintf(cmd.OutOrStdout(), "syscall result err=%d (expect EFAULT=%d)\n", serr, -defs.EFAULT)
			return nil
		},
	}
}

func stackGrowthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stack-growth",
		Short: "fault a page below the stack pointer and observe lazy growth",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			proc := sys.NewProc()
			growAddr := procvm.DefaultStackBase - uintptr(mem.PGSIZE)
			ferr := proc.AS.Fault(growAddr, true)
			fmt.Fprintf(cmd.OutOrStdout(), "fault result err=%d, frames in use=%d\n", ferr, sys.Frames.Used())
			return nil
		},
	}
}

func swapCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap-cycle",
		Short: "force eviction by allocating beyond the frame table's capacity, then fault the evicted page back in",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			proc := sys.NewProc()

			first := uintptr(procvm.DefaultStackBase)
			if ferr := proc.AS.Fault(first, true); ferr != 0 {
				return fmt.Errorf("initial fault failed: err=%d", ferr)
			}
			for i := 1; i < sys.Frames.Size(); i++ {
				addr := first - uintptr(i*mem.PGSIZE)
				if ferr := proc.AS.Fault(addr, true); ferr != 0 {
					return fmt.Errorf("fill fault %d failed: err=%d", i, ferr)
				}
			}
			overflow := first - uintptr(sys.Frames.Size()*mem.PGSIZE)
			if ferr := proc.AS.Fault(overflow, true); ferr != 0 {
				return fmt.Errorf("eviction-triggering fault failed: err=%d", ferr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swap slots reserved after eviction: %d\n", sys.Swap.Reserved())

			if ferr := proc.AS.Fault(first, true); ferr != 0 {
				return fmt.Errorf("refault of evicted page failed: err=%d", ferr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swap slots reserved after refault: %d\n", sys.Swap.Reserved())
			return nil
		},
	}
}

func mmapRoundtripCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mmap-roundtrip",
		Short: "map a file, write through the mapping, unmap, and verify the write landed on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			proc := sys.NewProc()
			d := syscall.Init(sys, proc)

			nameAddr := writeIntoStack(proc, append([]byte("data.bin"), 0))
			if _, serr := d.Dispatch(defs.SYS_CREATE, procvm.DefaultStackBase, syscall.Args{nameAddr, 64}); serr != 0 {
				return fmt.Errorf("create failed: err=%d", serr)
			}
			fdRet, serr := d.Dispatch(defs.SYS_OPEN, procvm.DefaultStackBase, syscall.Args{nameAddr, 0, 0})
			if serr != 0 {
				return fmt.Errorf("open failed: err=%d", serr)
			}
			fd := int(fdRet)

			mapBase := procvm.DefaultStackBase + uintptr(16*mem.PGSIZE)
			mapRet, serr := d.Dispatch(defs.SYS_MMAP, procvm.DefaultStackBase, syscall.Args{uintptr(fd), mapBase, 0})
			if serr != 0 {
				return fmt.Errorf("mmap failed: err=%d", serr)
			}

			if ferr := proc.AS.Fault(mapBase, true); ferr != 0 {
				return fmt.Errorf("write-fault into mapping failed: err=%d", ferr)
			}
			page, ok := proc.AS.PageBytes(mapBase)
			if !ok {
				return fmt.Errorf("mapped page not resident after fault")
			}
			copy(page, []byte("mmap roundtrip payload"))

			if _, serr := d.Dispatch(defs.SYS_MUNMAP, procvm.DefaultStackBase, syscall.Args{mapRet, 0, 0}); serr != 0 {
				return fmt.Errorf("munmap failed: err=%d", serr)
			}

			f, err := sys.FS.Open("data.bin")
			if err != nil {
				return err
			}
			defer f.Close()
			back := make([]byte, len("mmap roundtrip payload"))
			f.ReadAt(back, 0)
			fmt.Fprintf(cmd.OutOrStdout(), "file now contains: %q\n", string(back))
			return nil
		},
	}
}

func concurrentOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "concurrent-open",
		Short: "open the same file from two processes and verify independent seek positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := newSystem()
			if err != nil {
				return err
			}
			if _, err := sys.FS.Create("shared.bin", 32); err != nil {
				return err
			}

			p1 := sys.NewProc()
			p2 := sys.NewProc()
			d1 := syscall.Init(sys, p1)
			d2 := syscall.Init(sys, p2)

			nameAddr1 := writeIntoStack(p1, append([]byte("shared.bin"), 0))
			nameAddr2 := writeIntoStack(p2, append([]byte("shared.bin"), 0))

			fd1, serr := d1.Dispatch(defs.SYS_OPEN, procvm.DefaultStackBase, syscall.Args{nameAddr1, 0, 0})
			if serr != 0 {
				return fmt.Errorf("proc1 open failed: err=%d", serr)
			}
			fd2, serr := d2.Dispatch(defs.SYS_OPEN, procvm.DefaultStackBase, syscall.Args{nameAddr2, 0, 0})
			if serr != 0 {
				return fmt.Errorf("proc2 open failed: err=%d", serr)
			}

			d1.Dispatch(defs.SYS_SEEK, procvm.DefaultStackBase, syscall.Args{fd1, 10, 0})
			d2.Dispatch(defs.SYS_SEEK, procvm.DefaultStackBase, syscall.Args{fd2, 20, 0})

			t1, _ := d1.Dispatch(defs.SYS_TELL, procvm.DefaultStackBase, syscall.Args{fd1, 0, 0})
			t2, _ := d2.Dispatch(defs.SYS_TELL, procvm.DefaultStackBase, syscall.Args{fd2, 0, 0})
			fmt.Fprintf(cmd.OutOrStdout(), "proc1 tell=%d, proc2 tell=%d\n", t1, t2)
			return nil
		},
	}
}

// writeIntoStack faults in and writes data at a fixed scratch address
// below the default stack base, returning the address it was written at,
// so command handlers have guest-addressable memory to hand to syscalls
// without a real ELF-loaded argument stack.
func writeIntoStack(proc *procvm.Proc, data []byte) uintptr {
	addr := procvm.DefaultStackBase - uintptr(4*mem.PGSIZE)
	if ferr := proc.AS.Fault(addr, true); ferr != 0 {
		panic(fmt.Sprintf("scratch fault failed: err=%d", ferr))
	}
	page, ok := proc.AS.PageBytes(addr)
	if !ok {
		panic("scratch page not resident after fault")
	}
	copy(page, data)
	return addr
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
