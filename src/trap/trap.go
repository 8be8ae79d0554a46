package trap

import (
	"fmt"

	"rvkernel/src/defs"
	"rvkernel/src/mem"
	"rvkernel/src/proc"
	"rvkernel/src/sbi"
	"rvkernel/src/stats"
	"rvkernel/src/vm"
)

// DispatchSyscall is installed by the syscall package at boot. The
// dependency runs trap -> syscall at the type level (syscall needs
// TrapContext/AppInitContext to build fork/exec's fresh context) so it
// can't also go syscall -> trap without a cycle; this var seam is the
// same pattern as proc.trapReturnFn and sbi.sbiCall.
var DispatchSyscall = func(t *proc.Tcb_t, num uint64, args [3]uint64) int64 {
	panic("trap: syscall dispatcher not installed")
}

// sysExecNum is spec.md §4.H's exec syscall number; exec is special-cased
// below because on success it replaces the trap context wholesale rather
// than returning a value through it.
const sysExecNum = 221

// initTask is the process new orphans are reparented onto when their
// parent exits, set once at boot by the code that fork-execs "init".
var initTask *proc.Tcb_t

/// SetInitTask records the init task for orphan reparenting.
func SetInitTask(t *proc.Tcb_t) { initTask = t }

/// InitTask returns the task new orphans are reparented onto.
func InitTask() *proc.Tcb_t { return initTask }

/// Counters are lightweight trap-path statistics feeding debugprof's
/// pprof export (spec §4.K).
var Counters struct {
	Syscalls        stats.Counter_t
	TimerInterrupts stats.Counter_t
	PageFaults      stats.Counter_t
	IllegalInsns    stats.Counter_t
}

// timerIntervalNS is the quantum between supervisor-timer interrupts; a
// fixed 10ms matches rCore's config::timer::TICKS_PER_SEC of 100.
const timerIntervalNS = 10_000_000

var nextTimerDeadline = func() uint64 { return stats.Now() + timerIntervalNS }

/// Init sets stvec to the kernel trap vector and arms the first timer
/// interrupt, matching rCore's trap::init + enable_timer_interrupt.
func Init() {
	SetKernelTrapEntry()
	sbi.SetTimer(nextTimerDeadline())
}

/// Dispatch handles one trap for the current task. cause and stval stand
/// in for what a real trampoline would have read from the scause/stval
/// CSRs before calling into Go (spec redesign note: the trampoline and
/// context-switch routine are the only two assembly surfaces and are
/// parameterised solely through the trap-context layout — nothing else
/// here pretends to read a CSR).
func Dispatch(cause Cause, stval uint64) {
	SetKernelTrapEntry()
	t := proc.Current()
	if t == nil {
		panic("trap: dispatch with no current task")
	}

	if cause.Interrupt {
		switch cause.Code {
		case IntSupervisorTimer:
			Counters.TimerInterrupts.Inc()
			sbi.SetTimer(nextTimerDeadline())
			proc.YieldCurrent()
		default:
			panic(fmt.Sprintf("trap: unsupported interrupt %d from kernel mode", cause.Code))
		}
		return
	}

	switch cause.Code {
	case ExcIllegalInstruction:
		Counters.IllegalInsns.Inc()
		raiseSignal(t, defs.SIGILL)
	case ExcLoadFault, ExcStoreFault, ExcInstructionFault,
		ExcLoadPageFault, ExcStorePageFault, ExcInstructionPageFault,
		ExcLoadMisaligned, ExcStoreMisaligned, ExcInstructionMisaligned:
		Counters.PageFaults.Inc()
		raiseSignal(t, defs.SIGSEGV)
	case ExcUserEnvCall:
		Counters.Syscalls.Inc()
		runSyscall(t)
	default:
		panic(fmt.Sprintf("trap: fatal trap from kernel mode, cause=%d stval=%#x", cause.Code, stval))
	}

	runSignalPipeline(t)
	waitWhileFrozen(t)

	if code, fatal := CheckFatal(t); fatal {
		proc.ExitCurrent(code, initTask)
		return
	}

	var userSatp uint64
	t.Borrow(func(in *proc.TaskInner) { userSatp = in.As.Token() })
	TrapReturn(userSatp)
}

// runSyscall reads a7/a0/a1/a2 from the task's trap context, dispatches,
// and writes the result back into a0, matching rCore's inline syscall
// handling in trap_handler (Exception::UserEnvCall).
func runSyscall(t *proc.Tcb_t) {
	var as *vm.AddrSpace
	var ppn mem.Ppn_t
	t.Borrow(func(in *proc.TaskInner) {
		as = in.As
		ppn = in.TrapCxPpn
	})

	cx := ReadContext(as, ppn)
	cx.Sepc += 4
	num := cx.X[17]
	args := [3]uint64{cx.X[10], cx.X[11], cx.X[12]}
	WriteContext(as, ppn, cx)

	ret := DispatchSyscall(t, num, args)

	// exec may have replaced the task's address space and trap-context
	// page entirely; re-resolve both before writing the return value. On
	// a successful exec, the new context's a0 already holds the argv
	// pointer exec set directly — writing ret (0) there would clobber it.
	t.Borrow(func(in *proc.TaskInner) {
		as = in.As
		ppn = in.TrapCxPpn
	})
	if num == sysExecNum && ret == 0 {
		return
	}
	cx = ReadContext(as, ppn)
	cx.X[10] = uint64(ret)
	WriteContext(as, ppn, cx)
}
