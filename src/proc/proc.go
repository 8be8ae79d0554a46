package proc

import (
	"encoding/binary"
	"fmt"

	"rvkernel/src/defs"
	"rvkernel/src/fd"
	"rvkernel/src/mem"
	"rvkernel/src/vm"
)

// Fork duplicates parent into a new child task: a copy-on-write-free full
// copy of the address space (vm.AddrSpace.Fork), a fresh PID and kernel
// stack, and a cloned fd table, matching rCore's
// TaskControlBlock::fork. The child's TrapContext still holds the
// parent's saved registers at this point; the caller (the syscall layer,
// which owns the TrapContext layout) is responsible for zeroing the
// child's return value register before it first runs.
func Fork(parent *Tcb_t, kernelAs *vm.AddrSpace) (child *Tcb_t, err error) {
	var childAs *vm.AddrSpace
	var baseSize uint64
	var fds *fd.Fdtable_t
	var forkErr error
	var cloneErr defs.Err_t

	parent.Borrow(func(in *TaskInner) {
		childAs, forkErr = in.As.Fork()
		if forkErr != nil {
			return
		}
		baseSize = in.BaseSize
		fds, cloneErr = in.Fds.Clone()
	})
	if forkErr != nil {
		return nil, forkErr
	}
	if cloneErr != 0 {
		return nil, fmt.Errorf("proc: fork fd clone: %s", cloneErr)
	}

	pid, ok := PidAlloc()
	if !ok {
		return nil, fmt.Errorf("proc: fork: %s", defs.EMFILE)
	}
	kbot, ktop := mem.KernelStackPosition(int(pid))
	if err := kernelAs.InsertFramed(kbot, ktop, vm.PTE_R|vm.PTE_W); err != nil {
		PidDealloc(pid)
		return nil, err
	}

	pte, _ := childAs.Translate(mem.TRAP_CONTEXT)

	inner := TaskInner{
		TaskCx:    GotoTrapReturn(ktop),
		Status:    Ready,
		As:        childAs,
		TrapCxPpn: pte.Ppn(),
		BaseSize:  baseSize,
		Parent:    parent,
		Fds:       fds,
	}
	for i := range inner.SigActions {
		inner.SigActions[i] = defs.DefaultSigAction()
	}

	child = &Tcb_t{
		Pid:       pid,
		KstackBot: kbot,
		KstackTop: ktop,
		inner:     NewUpCell(inner),
	}

	parent.Borrow(func(in *TaskInner) {
		in.Children = append(in.Children, child)
	})

	RegisterTask(child)
	AddReady(child)
	return child, nil
}

// Exec replaces t's address space and trap context with a freshly loaded
// ELF image, keeping its PID, kernel stack, and fd table, matching
// rCore's TaskControlBlock::exec. argv is pushed onto the new user stack
// in three stages per spec.md §4.G — raw bytes, then a descriptor array
// of (ptr, len) pairs, then a slice header pointing at that array — and
// argvPtr is the address of that header, for the caller to place in the
// fresh TrapContext's a0.
func Exec(t *Tcb_t, elfImage []byte, argv [][]byte, trampolinePpn mem.Ppn_t) (entry, sp, argvPtr uint64, err error) {
	as, userSp, ep, ferr := vm.FromElf(elfImage, trampolinePpn)
	if ferr != nil {
		return 0, 0, 0, ferr
	}
	sp = userSp

	ptrs := make([]uint64, len(argv))
	for i, arg := range argv {
		sp -= uint64(len(arg))
		if werr := vm.CopyOut(as, sp, arg); werr != 0 {
			return 0, 0, 0, fmt.Errorf("proc: exec argv bytes: %s", werr)
		}
		ptrs[i] = sp
	}
	sp -= sp % 8

	for i := len(argv) - 1; i >= 0; i-- {
		if werr := writeWord(as, &sp, uint64(len(argv[i]))); werr != 0 {
			return 0, 0, 0, fmt.Errorf("proc: exec argv descriptor: %s", werr)
		}
		if werr := writeWord(as, &sp, ptrs[i]); werr != 0 {
			return 0, 0, 0, fmt.Errorf("proc: exec argv descriptor: %s", werr)
		}
	}
	descPtr := sp

	if werr := writeWord(as, &sp, uint64(len(argv))); werr != 0 {
		return 0, 0, 0, fmt.Errorf("proc: exec argv header: %s", werr)
	}
	if werr := writeWord(as, &sp, descPtr); werr != 0 {
		return 0, 0, 0, fmt.Errorf("proc: exec argv header: %s", werr)
	}
	argvPtr = sp
	sp -= sp % 8

	pte, _ := as.Translate(mem.TRAP_CONTEXT)

	t.Borrow(func(in *TaskInner) {
		in.As = as
		in.TrapCxPpn = pte.Ppn()
		in.BaseSize = sp
	})
	return ep, sp, argvPtr, nil
}

// writeWord pushes one 8-byte word onto the user stack just below *sp,
// decrementing *sp in place.
func writeWord(as *vm.AddrSpace, sp *uint64, v uint64) defs.Err_t {
	*sp -= 8
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return vm.CopyOut(as, *sp, buf[:])
}

// WaitPid searches parent's children for a zombie matching pid (-1
// matches any child), matching the rCore/Linux waitpid convention
// documented for src/proc: returns (0, 0, -1) if parent has no
// matching child at all, (0, 0, -2) if a match exists but none has
// exited yet, or (the reaped child's pid, its exit code, 0) on success. On
// success the child is removed from parent's children, dropped, and
// unregistered.
func WaitPid(parent *Tcb_t, pid Pid_t, kernelAs *vm.AddrSpace) (foundPid Pid_t, exitCode int32, status int) {
	const (
		NoSuchChild = -1
		NotExited   = -2
		Found       = 0
	)

	var target *Tcb_t
	var targetIdx int
	var haveMatch bool

	parent.Borrow(func(in *TaskInner) {
		for i, c := range in.Children {
			if pid != -1 && c.Pid != pid {
				continue
			}
			haveMatch = true
			if c.IsZombie() {
				target = c
				targetIdx = i
				break
			}
		}
	})

	if target == nil {
		if haveMatch {
			return 0, 0, NotExited
		}
		return 0, 0, NoSuchChild
	}

	var code int32
	target.Borrow(func(in *TaskInner) { code = in.ExitCode })

	parent.Borrow(func(in *TaskInner) {
		in.Children = append(in.Children[:targetIdx], in.Children[targetIdx+1:]...)
	})

	reaped := target.Pid
	target.Drop(kernelAs)
	UnregisterTask(reaped)

	return reaped, code, Found
}
