// Package syscall implements spec.md §4.H's syscall table and installs
// itself into trap.DispatchSyscall at boot, grounded on
// original_source/os/src/syscall/{mod,fs,process}.rs.
package syscall

import (
	"rvkernel/src/defs"
	"rvkernel/src/fd"
	"rvkernel/src/mem"
	"rvkernel/src/osinode"
	"rvkernel/src/pipe"
	"rvkernel/src/proc"
	"rvkernel/src/stats"
	"rvkernel/src/trap"
	"rvkernel/src/vm"
)

// Operation numbers, per spec.md §4.H's "Linux RISC-V ABI subset".
const (
	sysDup         = 24
	sysOpen        = 56
	sysClose       = 57
	sysPipe        = 59
	sysRead        = 63
	sysWrite       = 64
	sysExit        = 93
	sysYield       = 124
	sysKill        = 129
	sysSigaction   = 134
	sysSigprocmask = 135
	sysSigreturn   = 139
	sysGetTime     = 169
	sysGetPid      = 172
	sysSbrk        = 214
	sysFork        = 220
	sysExec        = 221
	sysWaitPid     = 260
)

// kernelAs and trampolinePpn are fixed once at boot; every fork/exec
// needs the kernel address space to map a fresh kernel stack, and exec
// needs the trampoline's physical page to remap into the new address
// space, matching rCore's KERNEL_SPACE and TRAMPOLINE statics.
var (
	kernelAs      *vm.AddrSpace
	trampolinePpn mem.Ppn_t
)

/// Init records the kernel address space and trampoline page and wires
/// this package into trap.DispatchSyscall; called once at boot.
func Init(ka *vm.AddrSpace, tpn mem.Ppn_t) {
	kernelAs = ka
	trampolinePpn = tpn
	trap.DispatchSyscall = dispatch
}

// maxPathLen bounds CopyCString reads for open/exec path and argv
// strings; generous enough for any plausible shell command line.
const maxPathLen = 256

func dispatch(t *proc.Tcb_t, num uint64, args [3]uint64) int64 {
	switch num {
	case sysDup:
		return sysDupImpl(t, int(args[0]))
	case sysOpen:
		return sysOpenImpl(t, args[0], int(args[1]))
	case sysClose:
		return sysCloseImpl(t, int(args[0]))
	case sysPipe:
		return sysPipeImpl(t, args[0])
	case sysRead:
		return sysReadImpl(t, int(args[0]), args[1], int(args[2]))
	case sysWrite:
		return sysWriteImpl(t, int(args[0]), args[1], int(args[2]))
	case sysExit:
		sysExitImpl(t, int32(args[0]))
		return 0
	case sysYield:
		proc.YieldCurrent()
		return 0
	case sysKill:
		return sysKillImpl(proc.Pid_t(args[0]), defs.SigNum(args[1]))
	case sysSigaction:
		return sysSigactionImpl(t, defs.SigNum(args[0]), args[1], args[2])
	case sysSigprocmask:
		return sysSigprocmaskImpl(t, defs.SigSet(args[0]))
	case sysSigreturn:
		return int64(trap.SigReturn(t))
	case sysGetTime:
		return int64(stats.Now() / 1_000_000)
	case sysGetPid:
		return int64(t.Pid)
	case sysSbrk:
		return sysSbrkImpl(t, int64(args[0]))
	case sysFork:
		return sysForkImpl(t)
	case sysExec:
		return sysExecImpl(t, args[0], args[1])
	case sysWaitPid:
		return sysWaitPidImpl(t, proc.Pid_t(int64(args[0])), args[1])
	default:
		panic("syscall: unknown syscall number")
	}
}

func sysDupImpl(t *proc.Tcb_t, fdnum int) int64 {
	var ret int64
	t.Borrow(func(in *proc.TaskInner) {
		old := in.Fds.Get(fdnum)
		if old == nil {
			ret = int64(-defs.EBADF)
			return
		}
		nf, err := fd.Copyfd(old)
		if err != 0 {
			ret = int64(-defs.EGENERIC)
			return
		}
		nfdnum, aerr := in.Fds.Alloc(nf)
		if aerr != 0 {
			ret = int64(aerr)
			return
		}
		ret = int64(nfdnum)
	})
	return ret
}

func sysOpenImpl(t *proc.Tcb_t, pathVa uint64, flags int) int64 {
	var as *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) { as = in.As })
	path, err := vm.CopyCString(as, pathVa, maxPathLen)
	if err != 0 {
		return int64(-defs.EGENERIC)
	}
	ino, oerr := osinode.Open(path, flags)
	if oerr != 0 {
		return int64(-defs.EGENERIC)
	}
	perms := fd.FD_READ
	if flags&defs.O_WRONLY != 0 || flags&defs.O_RDWR != 0 {
		perms |= fd.FD_WRITE
	}
	var ret int64
	t.Borrow(func(in *proc.TaskInner) {
		fdnum, aerr := in.Fds.Alloc(&fd.Fd_t{Fops: ino, Perms: perms})
		if aerr != 0 {
			ret = int64(aerr)
			return
		}
		ret = int64(fdnum)
	})
	return ret
}

func sysCloseImpl(t *proc.Tcb_t, fdnum int) int64 {
	var ret int64
	t.Borrow(func(in *proc.TaskInner) {
		f := in.Fds.Get(fdnum)
		if f == nil {
			ret = int64(-defs.EGENERIC)
			return
		}
		in.Fds.Clear(fdnum)
		ret = int64(f.Fops.Close())
	})
	return ret
}

func sysPipeImpl(t *proc.Tcb_t, fdArrayVa uint64) int64 {
	r, w, perr := pipe.New()
	if perr != 0 {
		return int64(perr)
	}
	var rfd, wfd int
	var as *vm.AddrSpace
	var aerr defs.Err_t
	t.Borrow(func(in *proc.TaskInner) {
		as = in.As
		if rfd, aerr = in.Fds.Alloc(&fd.Fd_t{Fops: r, Perms: fd.FD_READ}); aerr != 0 {
			return
		}
		if wfd, aerr = in.Fds.Alloc(&fd.Fd_t{Fops: w, Perms: fd.FD_WRITE}); aerr != 0 {
			in.Fds.Clear(rfd)
			r.Close()
			return
		}
	})
	if aerr != 0 {
		return int64(aerr)
	}
	buf := make([]byte, 16)
	putUint64(buf[0:8], uint64(rfd))
	putUint64(buf[8:16], uint64(wfd))
	if err := vm.CopyOut(as, fdArrayVa, buf); err != 0 {
		return int64(-defs.EGENERIC)
	}
	return 0
}

func sysReadImpl(t *proc.Tcb_t, fdnum int, bufVa uint64, length int) int64 {
	var as *vm.AddrSpace
	var f *fd.Fd_t
	t.Borrow(func(in *proc.TaskInner) {
		as = in.As
		f = in.Fds.Get(fdnum)
	})
	if f == nil || !f.Fops.Readable() {
		return int64(-defs.EGENERIC)
	}
	ub := vm.NewUserBuf(as, bufVa, length)
	n, err := f.Fops.Read(ub)
	if err != 0 {
		return int64(-defs.EGENERIC)
	}
	return int64(n)
}

func sysWriteImpl(t *proc.Tcb_t, fdnum int, bufVa uint64, length int) int64 {
	var as *vm.AddrSpace
	var f *fd.Fd_t
	t.Borrow(func(in *proc.TaskInner) {
		as = in.As
		f = in.Fds.Get(fdnum)
	})
	if f == nil || !f.Fops.Writable() {
		return int64(-defs.EGENERIC)
	}
	ub := vm.NewUserBuf(as, bufVa, length)
	n, err := f.Fops.Write(ub)
	if err != 0 {
		return int64(-defs.EGENERIC)
	}
	return int64(n)
}

func sysExitImpl(t *proc.Tcb_t, code int32) {
	proc.ExitCurrent(code, trap.InitTask())
}

func sysKillImpl(pid proc.Pid_t, sig defs.SigNum) int64 {
	target, ok := proc.LookupTask(pid)
	if !ok {
		return int64(-defs.EGENERIC)
	}
	return int64(trap.Kill(target, sig))
}

// sigActionWireSize is the (handler uint64, mask uint64) layout
// sigaction's copy-in/out use for defs.SigAction, since
// a SigAction itself never needs to cross the user/kernel boundary
// except through this fixed encoding.
const sigActionWireSize = 16

func sysSigactionImpl(t *proc.Tcb_t, signum defs.SigNum, actVa, oldActVa uint64) int64 {
	if signum.KernelHandled() {
		return int64(-defs.EGENERIC)
	}
	var as *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) { as = in.As })

	if oldActVa != 0 {
		var old defs.SigAction
		t.Borrow(func(in *proc.TaskInner) { old = in.SigActions[signum] })
		if err := vm.CopyOut(as, oldActVa, marshalSigAction(old)); err != 0 {
			return int64(-defs.EGENERIC)
		}
	}
	if actVa != 0 {
		raw, err := vm.CopySized(as, actVa, sigActionWireSize)
		if err != 0 {
			return int64(-defs.EGENERIC)
		}
		act := unmarshalSigAction(raw)
		t.Borrow(func(in *proc.TaskInner) { in.SigActions[signum] = act })
	}
	return 0
}

func marshalSigAction(a defs.SigAction) []byte {
	buf := make([]byte, sigActionWireSize)
	putUint64(buf[0:8], uint64(a.Handler))
	putUint64(buf[8:16], uint64(a.Mask))
	return buf
}

func unmarshalSigAction(buf []byte) defs.SigAction {
	return defs.SigAction{
		Handler: uintptr(getUint64(buf[0:8])),
		Mask:    defs.SigSet(getUint64(buf[8:16])),
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func sysSigprocmaskImpl(t *proc.Tcb_t, mask defs.SigSet) int64 {
	var old defs.SigSet
	t.Borrow(func(in *proc.TaskInner) {
		old = in.SigMask
		in.SigMask = mask
	})
	return int64(old)
}

func sysSbrkImpl(t *proc.Tcb_t, delta int64) int64 {
	var as *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) { as = in.As })
	old, err := as.GrowBrk(delta)
	if err != nil {
		return int64(-defs.EGENERIC)
	}
	return int64(old)
}

func sysForkImpl(t *proc.Tcb_t) int64 {
	child, err := proc.Fork(t, kernelAs)
	if err != nil {
		return int64(-defs.EGENERIC)
	}
	// the child sees fork return 0: clear a0 in its copy of the trap context
	var childAs *vm.AddrSpace
	var childCxPpn mem.Ppn_t
	child.Borrow(func(in *proc.TaskInner) {
		childAs = in.As
		childCxPpn = in.TrapCxPpn
	})
	cx := trap.ReadContext(childAs, childCxPpn)
	cx.X[10] = 0
	trap.WriteContext(childAs, childCxPpn, cx)
	return int64(child.Pid)
}

func sysExecImpl(t *proc.Tcb_t, pathVa, argvVa uint64) int64 {
	var as *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) { as = in.As })

	path, perr := vm.CopyCString(as, pathVa, maxPathLen)
	if perr != 0 {
		return int64(-defs.EGENERIC)
	}

	var argv [][]byte
	if argvVa != 0 {
		for i := 0; ; i++ {
			ptrBuf, err := vm.CopySized(as, argvVa+uint64(i)*8, 8)
			if err != 0 {
				return int64(-defs.EGENERIC)
			}
			argPtr := getUint64(ptrBuf)
			if argPtr == 0 {
				break
			}
			arg, aerr := vm.CopyCString(as, argPtr, maxPathLen)
			if aerr != 0 {
				return int64(-defs.EGENERIC)
			}
			argv = append(argv, []byte(arg))
		}
	}

	ino, oerr := osinode.Open(path, 0)
	if oerr != 0 {
		return int64(-defs.EGENERIC)
	}
	elfImage := ino.ReadAll()

	entry, sp, argvPtr, eerr := proc.Exec(t, elfImage, argv, trampolinePpn)
	if eerr != nil {
		return int64(-defs.EGENERIC)
	}

	var newPpn mem.Ppn_t
	var newAs *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) {
		newPpn = in.TrapCxPpn
		newAs = in.As
	})

	cx := trap.AppInitContext(entry, sp, kernelAs.Token(), t.KstackTop, 0)
	cx.X[10] = argvPtr
	trap.WriteContext(newAs, newPpn, cx)
	return 0
}

func sysWaitPidImpl(t *proc.Tcb_t, pid proc.Pid_t, codeVa uint64) int64 {
	found, code, status := proc.WaitPid(t, pid, kernelAs)
	if status != 0 {
		return int64(status)
	}
	var as *vm.AddrSpace
	t.Borrow(func(in *proc.TaskInner) { as = in.As })
	if codeVa != 0 {
		buf := make([]byte, 4)
		buf[0] = byte(code)
		buf[1] = byte(code >> 8)
		buf[2] = byte(code >> 16)
		buf[3] = byte(code >> 24)
		if err := vm.CopyOut(as, codeVa, buf); err != 0 {
			return int64(-defs.EGENERIC)
		}
	}
	return int64(found)
}
