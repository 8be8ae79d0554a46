// Command kernel is the boot entry point (spec §4.A/§4.K): bring up the
// physical frame allocator and kernel address space, wire the
// package-level seams that stand in for real assembly and MMIO, mount
// the virtio block device, load "initproc" off it, and hand off to the
// scheduler. Grounded on original_source/os/src/main.rs's rust_main
// shape (clear bookkeeping, init trap handling, load the first app,
// enable the timer, run tasks) substituting filesystem-based loading —
// this kernel has the later-chapter fs/osinode machinery the early
// loader.rs snapshot in original_source predates.
package main

import (
	"fmt"
	"os"

	"rvkernel/src/caller"
	"rvkernel/src/debugprof"
	"rvkernel/src/fs"
	"rvkernel/src/mem"
	"rvkernel/src/osinode"
	"rvkernel/src/pipe"
	"rvkernel/src/proc"
	"rvkernel/src/sbi"
	"rvkernel/src/stdio"
	"rvkernel/src/syscall"
	"rvkernel/src/trap"
	"rvkernel/src/virtio"
	"rvkernel/src/vm"
)

// kernelBase and kernelEnd bound the kernel image inside QEMU virt's RAM
// window; a real boot stub reports these from linker symbols (rCore's
// stext/ekernel). Fixed here the same way mem.MEMORY_END is fixed: this
// module has no linker script, so the image is assumed to occupy the
// 2 MiB starting at kernelBase, itself 2 MiB into RAM, and everything
// after kernelEnd is free for the frame allocator.
const (
	kernelBase mem.Pa_t = 0x80200000
	kernelEnd  mem.Pa_t = 0x80400000
)

// initProcName is the file the root directory must contain for the
// kernel to have anything to run, matching rCore's INIT_PROC_NAME.
const initProcName = "initproc"

func main() {
	mem.Phys_init(kernelEnd.Ppn(), mem.MEMORY_END.Ppn())

	trampolineFrame, err := mem.Physmem.Frame_new()
	if err != nil {
		fatal("kernel: allocate trampoline frame: %v", err)
	}
	trampolinePpn := trampolineFrame.Ppn

	kernelAs, err := vm.NewKernelSpace(kernelBase, kernelEnd, mem.MEMORY_END, trampolinePpn)
	if err != nil {
		fatal("kernel: build kernel address space: %v", err)
	}

	wireSeams(kernelAs, trampolinePpn)

	blockDev := virtio.Init()
	efs, err := fs.Open(blockDev)
	if err != nil {
		fatal("kernel: open filesystem: %v", err)
	}
	osinode.Init(efs)

	tcb, err := bootInitProc(kernelAs, trampolinePpn)
	if err != nil {
		fatal("kernel: load %s: %v", initProcName, err)
	}

	proc.RegisterTask(tcb)
	proc.AddReady(tcb)
	trap.SetInitTask(tcb)

	trap.Init()

	proc.RunNext()

	reportAndShutdown()
}

// wireSeams installs the Go-to-Go package wiring this module owns.
// sbi.sbiCall's ecall backing, trap.trapReturnFn's __restore jump, and
// virtio.Transport's MMIO register access are real-hardware-only: none
// has a pure-Go implementation, so a real boot stub must install them
// before this binary's code can run on actual hardware. This function
// wires everything that doesn't require one.
func wireSeams(kernelAs *vm.AddrSpace, trampolinePpn mem.Ppn_t) {
	pipe.Yield = proc.YieldCurrent
	stdio.Yield = proc.YieldCurrent

	proc.SetTrapReturn(func() {
		t := proc.Current()
		var userSatp uint64
		t.Borrow(func(in *proc.TaskInner) { userSatp = in.As.Token() })
		trap.TrapReturn(userSatp)
	})

	syscall.Init(kernelAs, trampolinePpn)
}

// bootInitProc opens initProcName off the mounted filesystem, builds the
// first task from its ELF image, and writes its initial trap context —
// the same two-step NewInitProc/AppInitContext+WriteContext sequence
// sysExecImpl uses for a running exec, since NewInitProc itself only
// builds the task, not the trap context a trampoline resumes into.
func bootInitProc(kernelAs *vm.AddrSpace, trampolinePpn mem.Ppn_t) (*proc.Tcb_t, error) {
	ino, operr := osinode.Open(initProcName, 0)
	if operr != 0 {
		return nil, fmt.Errorf("open: err %d", operr)
	}
	elfImage := ino.ReadAll()

	tcb, entry, err := proc.NewInitProc(kernelAs, elfImage, trampolinePpn)
	if err != nil {
		return nil, err
	}

	var as *vm.AddrSpace
	var trapCxPpn mem.Ppn_t
	var baseSize uint64
	tcb.Borrow(func(in *proc.TaskInner) {
		as = in.As
		trapCxPpn = in.TrapCxPpn
		baseSize = in.BaseSize
	})

	cx := trap.AppInitContext(entry, baseSize, kernelAs.Token(), tcb.KstackTop, 0)
	trap.WriteContext(as, trapCxPpn, cx)

	return tcb, nil
}

// reportAndShutdown writes a shutdown pprof profile of the trap
// counters and any surviving task accounting (spec §4.K instrumentation)
// before powering off, matching the teacher's habit of dumping
// stats.Stats2String on exit.
func reportAndShutdown() {
	if err := debugprof.Write(os.Stdout, trap.Counters); err != nil {
		fmt.Fprintf(os.Stderr, "kernel: write shutdown profile: %v\n", err)
	}
	sbi.Shutdown(false)
}

// fatal reports an unrecoverable boot failure with its call stack before
// powering off with the failure reason code. It is the only caller of
// caller.Callerdump; kernel-fatal conditions elsewhere are plain panics.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	caller.Callerdump(2)
	sbi.Shutdown(true)
}
