// Package proc implements task control blocks, the PID and kernel-stack
// allocators, the FIFO ready queue, and fork/exec/waitpid, spec §4.G —
// grounded throughout on rCore's task/{task,manager,processor,pid}.rs.
package proc

import (
	"fmt"

	"rvkernel/src/accnt"
	"rvkernel/src/defs"
	"rvkernel/src/fd"
	"rvkernel/src/mem"
	"rvkernel/src/stdio"
	"rvkernel/src/vm"
)

/// TaskStatus mirrors rCore's TaskStatus enum.
type TaskStatus int

const (
	Ready TaskStatus = iota
	Running
	Zombie
)

// TaskInner is everything about a task that mutates after creation,
// wrapped in an UpCell so every access goes through Borrow and a
// re-entrant access panics loudly instead of corrupting state, matching
// rCore's UPSafeCell<TaskControlBlockInner>.
type TaskInner struct {
	TaskCx         TaskContext
	Status         TaskStatus
	As             *vm.AddrSpace
	TrapCxPpn      mem.Ppn_t
	BaseSize       uint64
	Parent         *Tcb_t
	Children       []*Tcb_t
	ExitCode       int32
	Fds            *fd.Fdtable_t
	Signals        defs.SigSet
	SigMask        defs.SigSet
	HandlingSig    defs.SigNum
	HasHandlingSig bool
	SigTrapBackup  []byte
	SigActions     [defs.NSIG]defs.SigAction
	Killed         bool
	KilledBy       defs.SigNum
	Frozen         bool
}

/// Tcb_t is a task control block: the PID and kernel stack are immutable
/// for the task's lifetime; everything else lives behind the UpCell.
type Tcb_t struct {
	Pid       Pid_t
	KstackBot uint64
	KstackTop uint64
	Accnt     accnt.Accnt_t
	inner     *UpCell[TaskInner]
}

/// Borrow exposes the task's mutable inner state under the re-entrancy
/// guard.
func (t *Tcb_t) Borrow(f func(*TaskInner)) { t.inner.Borrow(f) }

/// NewInitProc builds the first task from an ELF image: allocates a PID,
/// a kernel stack range in the kernel address space, a fresh user address
/// space from the ELF, and a stdin/stdout/stderr fd table, matching
/// rCore's TaskControlBlock::new.
func NewInitProc(kernelAs *vm.AddrSpace, elfImage []byte, trampolinePpn mem.Ppn_t) (tcb *Tcb_t, entry uint64, err error) {
	as, userSp, entryPoint, err := vm.FromElf(elfImage, trampolinePpn)
	if err != nil {
		return nil, 0, err
	}
	entry = entryPoint

	pid, ok := PidAlloc()
	if !ok {
		return nil, 0, fmt.Errorf("proc: new init proc: %s", defs.EMFILE)
	}
	kbot, ktop := mem.KernelStackPosition(int(pid))
	if err := kernelAs.InsertFramed(kbot, ktop, vm.PTE_R|vm.PTE_W); err != nil {
		return nil, 0, err
	}

	pte, _ := as.Translate(mem.TRAP_CONTEXT)
	trapCxPpn := pte.Ppn()

	fds := fd.NewFdtable()
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stdin{}, Perms: fd.FD_READ})
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stdout{}, Perms: fd.FD_WRITE})
	fds.Alloc(&fd.Fd_t{Fops: stdio.Stderr{}, Perms: fd.FD_WRITE})

	inner := TaskInner{
		TaskCx:    GotoTrapReturn(ktop),
		Status:    Ready,
		As:        as,
		TrapCxPpn: trapCxPpn,
		BaseSize:  userSp,
		Fds:       fds,
	}
	for i := range inner.SigActions {
		inner.SigActions[i] = defs.DefaultSigAction()
	}

	tcb = &Tcb_t{
		Pid:       pid,
		KstackBot: kbot,
		KstackTop: ktop,
		inner:     NewUpCell(inner),
	}
	return tcb, entry, nil
}

/// NewBareTask builds a task directly from its components, bypassing
/// ELF loading; used by other packages' tests (trap, syscall) that need
/// a valid task without NewInitProc's binary image requirement.
func NewBareTask(pid Pid_t, kstackBot, kstackTop uint64, as *vm.AddrSpace, trapCxPpn mem.Ppn_t, fds *fd.Fdtable_t) *Tcb_t {
	inner := TaskInner{
		TaskCx:    GotoTrapReturn(kstackTop),
		Status:    Ready,
		As:        as,
		TrapCxPpn: trapCxPpn,
		Fds:       fds,
	}
	for i := range inner.SigActions {
		inner.SigActions[i] = defs.DefaultSigAction()
	}
	return &Tcb_t{
		Pid:       pid,
		KstackBot: kstackBot,
		KstackTop: kstackTop,
		inner:     NewUpCell(inner),
	}
}

/// IsZombie reports whether the task has exited and is awaiting reap.
func (t *Tcb_t) IsZombie() bool {
	var z bool
	t.Borrow(func(in *TaskInner) { z = in.Status == Zombie })
	return z
}

/// Drop releases the task's kernel stack mapping and PID once its parent
/// has reaped it, matching rCore's KernelStack/PidHandle Drop impls.
func (t *Tcb_t) Drop(kernelAs *vm.AddrSpace) {
	kernelAs.RemoveArea(vm.Vpn_t(t.KstackBot >> mem.PAGE_SIZE_BITS))
	PidDealloc(t.Pid)
}
