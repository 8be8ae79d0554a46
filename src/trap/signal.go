package trap

import (
	"rvkernel/src/defs"
	"rvkernel/src/proc"
)

/// Kill sets sig pending on target, failing if it's already pending,
/// matching spec.md §4.H's kill(pid, sig).
func Kill(target *proc.Tcb_t, sig defs.SigNum) defs.Err_t {
	var already bool
	target.Borrow(func(in *proc.TaskInner) {
		if in.Signals.Has(sig) {
			already = true
			return
		}
		in.Signals.Set(sig)
	})
	if already {
		return -defs.EGENERIC
	}
	return 0
}

// raiseSignal turns a CPU exception into a signal; unlike Kill it never
// fails, since SIGILL/SIGSEGV are always freshly raised here rather than
// user-requested.
func raiseSignal(t *proc.Tcb_t, sig defs.SigNum) {
	t.Borrow(func(in *proc.TaskInner) { in.Signals.Set(sig) })
}

// runSignalPipeline iterates signals 0..32 in ascending order, applying
// kernel-handled signals immediately and dispatching at most one user
// handler, matching spec.md §4.H exactly.
func runSignalPipeline(t *proc.Tcb_t) {
	t.Borrow(func(in *proc.TaskInner) {
		dispatchedHandler := false
		for n := defs.SigNum(0); n < defs.NSIG; n++ {
			if !in.Signals.Has(n) {
				continue
			}
			blocked := in.SigMask.Has(n)
			if in.HasHandlingSig {
				blocked = blocked || in.SigActions[in.HandlingSig].Mask.Has(n)
			}
			if blocked {
				continue
			}

			if n.KernelHandled() {
				switch n {
				case defs.SIGSTOP:
					in.Frozen = true
				case defs.SIGCONT:
					in.Frozen = false
				default:
					in.Killed = true
					in.KilledBy = n
				}
				in.Signals.Clear(n)
				continue
			}

			if dispatchedHandler {
				continue
			}
			act := in.SigActions[n]
			if act.Handler == 0 {
				// No handler installed: leave the bit pending rather than
				// clearing it, so an uncaught fatal signal (SEGV/ILL/INT/
				// ABRT/FPE) still shows up in CheckFatal below, matching
				// rCore's call_user_signal_handler no-handler branch.
				continue
			}
			cx := ReadContext(in.As, in.TrapCxPpn)
			in.SigTrapBackup = cx.Marshal()
			cx.Sepc = uint64(act.Handler)
			cx.X[10] = uint64(n)
			WriteContext(in.As, in.TrapCxPpn, cx)
			in.Signals.Clear(n)
			in.HandlingSig = n
			in.HasHandlingSig = true
			dispatchedHandler = true
		}
	})
}

/// SigReturn restores the backed-up trap context and clears the
/// handling slot, matching spec.md §4.H's sigreturn.
func SigReturn(t *proc.Tcb_t) defs.Err_t {
	var ret defs.Err_t
	t.Borrow(func(in *proc.TaskInner) {
		if !in.HasHandlingSig || in.SigTrapBackup == nil {
			ret = -defs.EGENERIC
			return
		}
		cx := UnmarshalTrapContext(in.SigTrapBackup)
		WriteContext(in.As, in.TrapCxPpn, cx)
		in.SigTrapBackup = nil
		in.HasHandlingSig = false
	})
	return ret
}

// fatalPriority lists the signals with a fatal default action, checked in
// the same order as config/src/signal.rs's SignalFlags::check_error.
var fatalPriority = []defs.SigNum{
	defs.SIGINT, defs.SIGILL, defs.SIGABRT, defs.SIGFPE, defs.SIGKILL, defs.SIGSEGV,
}

/// CheckFatal reports whether t carries a fatal signal while not frozen,
/// and if so the negative exit code it produces (spec §6/§7,
/// config/src/signal.rs's SignalFlags::check_error). A kernel-handled
/// fatal signal (SIGKILL/SIGDEF) is tracked through in.Killed/in.KilledBy,
/// since runSignalPipeline's kernel-handled branch clears its pending bit
/// the moment it applies the signal; every other fatal signal has no
/// handler to dispatch it, so it stays pending and is found by scanning
/// in.Signals directly, in check_error's priority order.
func CheckFatal(t *proc.Tcb_t) (code int32, fatal bool) {
	t.Borrow(func(in *proc.TaskInner) {
		if in.Frozen {
			return
		}
		if in.Killed {
			fatal = true
			if c, ok := defs.FatalCode(in.KilledBy); ok {
				code = int32(c)
			} else {
				code = -9
			}
			return
		}
		for _, n := range fatalPriority {
			if !in.Signals.Has(n) {
				continue
			}
			fatal = true
			c, _ := defs.FatalCode(n)
			code = int32(c)
			return
		}
	})
	return
}

// waitWhileFrozen spins the current task at the kernel level — yielding
// and rejoining the ready queue — until a CONT signal clears Frozen,
// matching spec.md §4.H's "loops through suspend_current_and_run_next
// until CONT clears it".
func waitWhileFrozen(t *proc.Tcb_t) {
	for {
		var frozen bool
		t.Borrow(func(in *proc.TaskInner) { frozen = in.Frozen })
		if !frozen {
			return
		}
		proc.YieldCurrent()
	}
}
