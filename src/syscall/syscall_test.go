package syscall

import (
	"testing"

	"rvkernel/src/defs"
	"rvkernel/src/fd"
	"rvkernel/src/mem"
	"rvkernel/src/proc"
	"rvkernel/src/stdio"
	"rvkernel/src/vm"
)

const scratchVa = 0x1_0000_0000

// buildTask constructs a task with a trap-context mapping, a scratch
// data page at scratchVa usable as a syscall argument buffer, and an
// stdio-backed fd table, bypassing NewInitProc's ELF requirement.
func buildTask(t *testing.T, poolPages int, pid proc.Pid_t) *proc.Tcb_t {
	t.Helper()
	mem.Phys_init(0, mem.Ppn_t(poolPages))

	as, err := vm.NewAddrSpace()
	if err != nil {
		t.Fatalf("new addr space: %v", err)
	}
	if err := as.InsertFramed(scratchVa, scratchVa+uint64(vm.PGSIZE), vm.PTE_R|vm.PTE_W); err != nil {
		t.Fatalf("insert scratch page: %v", err)
	}
	if err := as.InsertFramed(mem.TRAP_CONTEXT, mem.TRAMPOLINE, vm.PTE_R|vm.PTE_W); err != nil {
		t.Fatalf("insert trap context: %v", err)
	}
	pte, ok := as.Translate(mem.TRAP_CONTEXT)
	if !ok {
		t.Fatalf("expected trap context mapping")
	}

	fds := fd.NewFdtable()
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stdin{}, Perms: fd.FD_READ})
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stdout{}, Perms: fd.FD_WRITE})
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stderr{}, Perms: fd.FD_WRITE})

	kbot, ktop := mem.KernelStackPosition(int(pid))
	return proc.NewBareTask(pid, kbot, ktop, as, pte.Ppn(), fds)
}

func TestSysDupAndClose(t *testing.T) {
	task := buildTask(t, 64, 1)

	ret := sysDupImpl(task, 1)
	if ret < 0 {
		t.Fatalf("expected dup of stdout to succeed, got %d", ret)
	}
	newFd := int(ret)
	if newFd == 1 {
		t.Fatalf("expected a distinct fd number from dup")
	}

	if ret := sysCloseImpl(task, newFd); ret != 0 {
		t.Fatalf("expected close to succeed, got %d", ret)
	}
	if ret := sysCloseImpl(task, newFd); ret == 0 {
		t.Fatalf("expected closing an already-closed fd to fail")
	}
}

func TestSysPipeWriteThenRead(t *testing.T) {
	task := buildTask(t, 64, 2)

	if ret := sysPipeImpl(task, scratchVa); ret != 0 {
		t.Fatalf("pipe: %d", ret)
	}

	var as *vm.AddrSpace
	task.Borrow(func(in *proc.TaskInner) { as = in.As })
	fdBytes, cerr := vm.CopySized(as, scratchVa, 16)
	if cerr != 0 {
		t.Fatalf("copy fd pair: %v", cerr)
	}
	rfd := int(getUint64(fdBytes[0:8]))
	wfd := int(getUint64(fdBytes[8:16]))

	msg := []byte("hello")
	if werr := vm.CopyOut(as, scratchVa, msg); werr != 0 {
		t.Fatalf("stage write payload: %v", werr)
	}
	if n := sysWriteImpl(task, wfd, scratchVa, len(msg)); n != int64(len(msg)) {
		t.Fatalf("expected write to report %d bytes, got %d", len(msg), n)
	}

	readBackVa := scratchVa + 64
	if n := sysReadImpl(task, rfd, readBackVa, len(msg)); n != int64(len(msg)) {
		t.Fatalf("expected read to report %d bytes, got %d", len(msg), n)
	}
	got, gerr := vm.CopySized(as, readBackVa, len(msg))
	if gerr != 0 {
		t.Fatalf("copy back read result: %v", gerr)
	}
	if string(got) != "hello" {
		t.Fatalf("expected round-tripped %q, got %q", "hello", got)
	}
}

func TestSysSigactionRoundTripAndRejectsKernelHandled(t *testing.T) {
	task := buildTask(t, 64, 3)
	var as *vm.AddrSpace
	task.Borrow(func(in *proc.TaskInner) { as = in.As })

	act := defs.SigAction{Handler: 0x8000, Mask: defs.SigBit(defs.SIGINT)}
	if werr := vm.CopyOut(as, scratchVa, marshalSigAction(act)); werr != 0 {
		t.Fatalf("stage sigaction: %v", werr)
	}
	if ret := sysSigactionImpl(task, defs.SIGABRT, scratchVa, 0); ret != 0 {
		t.Fatalf("sigaction install: %d", ret)
	}

	var installed defs.SigAction
	task.Borrow(func(in *proc.TaskInner) { installed = in.SigActions[defs.SIGABRT] })
	if installed.Handler != 0x8000 || installed.Mask != defs.SigBit(defs.SIGINT) {
		t.Fatalf("expected installed action to match, got %+v", installed)
	}

	if ret := sysSigactionImpl(task, defs.SIGSTOP, scratchVa, 0); ret == 0 {
		t.Fatalf("expected sigaction on a kernel-handled signal to fail")
	}
}

func TestSysSigprocmaskReturnsOldMask(t *testing.T) {
	task := buildTask(t, 64, 4)

	old := sysSigprocmaskImpl(task, defs.SigSet(defs.SigBit(defs.SIGINT)))
	if old != 0 {
		t.Fatalf("expected initial mask 0, got %d", old)
	}
	old = sysSigprocmaskImpl(task, 0)
	if old != int64(defs.SigBit(defs.SIGINT)) {
		t.Fatalf("expected previous mask returned, got %d", old)
	}
}

func TestSysKillLooksUpByPid(t *testing.T) {
	task := buildTask(t, 64, 5)
	proc.RegisterTask(task)
	defer proc.UnregisterTask(task.Pid)

	if ret := sysKillImpl(task.Pid, defs.SIGINT); ret != 0 {
		t.Fatalf("expected kill to succeed, got %d", ret)
	}
	var pending bool
	task.Borrow(func(in *proc.TaskInner) { pending = in.Signals.Has(defs.SIGINT) })
	if !pending {
		t.Fatalf("expected SIGINT marked pending")
	}

	if ret := sysKillImpl(proc.Pid_t(999999), defs.SIGINT); ret == 0 {
		t.Fatalf("expected kill of an unknown pid to fail")
	}
}
