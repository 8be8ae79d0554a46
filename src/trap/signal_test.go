package trap

import (
	"testing"

	"rvkernel/src/defs"
	"rvkernel/src/proc"
)

func TestKillRejectsAlreadyPending(t *testing.T) {
	task := buildTestTask(t, 64, 10)
	if err := Kill(task, defs.SIGINT); err != 0 {
		t.Fatalf("expected first kill to succeed, got %v", err)
	}
	if err := Kill(task, defs.SIGINT); err == 0 {
		t.Fatalf("expected second kill of a pending signal to fail")
	}
}

func TestRunSignalPipelineStopAndCont(t *testing.T) {
	task := buildTestTask(t, 64, 11)

	Kill(task, defs.SIGSTOP)
	runSignalPipeline(task)
	var frozen bool
	task.Borrow(func(in *proc.TaskInner) { frozen = in.Frozen })
	if !frozen {
		t.Fatalf("expected SIGSTOP to freeze the task")
	}

	Kill(task, defs.SIGCONT)
	runSignalPipeline(task)
	task.Borrow(func(in *proc.TaskInner) { frozen = in.Frozen })
	if frozen {
		t.Fatalf("expected SIGCONT to clear Frozen")
	}
}

func TestRunSignalPipelineSigkillKillsWithCode(t *testing.T) {
	task := buildTestTask(t, 64, 12)

	// SIGKILL is kernel-handled (spec §4.H): it always kills regardless
	// of any installed handler, unlike the catchable signals.
	Kill(task, defs.SIGKILL)
	runSignalPipeline(task)

	code, fatal := CheckFatal(task)
	if !fatal {
		t.Fatalf("expected task marked fatal after SIGKILL")
	}
	if code != -9 {
		t.Fatalf("expected exit code -9 for SIGKILL, got %d", code)
	}
}

func TestRunSignalPipelineUncaughtCatchableSignalIsFatal(t *testing.T) {
	task := buildTestTask(t, 64, 16)

	// SIGSEGV is catchable, not kernel-handled; with no handler installed
	// the pipeline leaves it pending rather than clearing it, so
	// CheckFatal finds it and reports SIGSEGV's fatal exit code, matching
	// config/src/signal.rs's SignalFlags::check_error.
	Kill(task, defs.SIGSEGV)
	runSignalPipeline(task)

	code, fatal := CheckFatal(task)
	if !fatal {
		t.Fatalf("expected uncaught SIGSEGV with no handler to be fatal")
	}
	if code != -11 {
		t.Fatalf("expected exit code -11 for SIGSEGV, got %d", code)
	}
	var pending bool
	task.Borrow(func(in *proc.TaskInner) { pending = in.Signals.Has(defs.SIGSEGV) })
	if !pending {
		t.Fatalf("expected SIGSEGV to stay pending since no handler claimed it")
	}
}

func TestCheckFatalFalseWhileFrozen(t *testing.T) {
	task := buildTestTask(t, 64, 13)
	task.Borrow(func(in *proc.TaskInner) {
		in.Killed = true
		in.KilledBy = defs.SIGSEGV
		in.Frozen = true
	})
	if _, fatal := CheckFatal(task); fatal {
		t.Fatalf("expected CheckFatal false while frozen")
	}
}

func TestSignalHandlerDispatchAndSigReturn(t *testing.T) {
	task := buildTestTask(t, 64, 14)

	task.Borrow(func(in *proc.TaskInner) {
		in.SigActions[defs.SIGINT] = defs.SigAction{Handler: 0x4000}
	})

	var beforeSepc uint64
	task.Borrow(func(in *proc.TaskInner) {
		beforeSepc = ReadContext(in.As, in.TrapCxPpn).Sepc
	})

	Kill(task, defs.SIGINT)
	runSignalPipeline(task)

	var handling bool
	var handlingSig defs.SigNum
	var sepc uint64
	task.Borrow(func(in *proc.TaskInner) {
		handling = in.HasHandlingSig
		handlingSig = in.HandlingSig
		sepc = ReadContext(in.As, in.TrapCxPpn).Sepc
	})
	if !handling || handlingSig != defs.SIGINT {
		t.Fatalf("expected SIGINT handler dispatched")
	}
	if sepc != 0x4000 {
		t.Fatalf("expected sepc redirected to handler, got %#x", sepc)
	}

	if err := SigReturn(task); err != 0 {
		t.Fatalf("sigreturn: %v", err)
	}
	task.Borrow(func(in *proc.TaskInner) {
		handling = in.HasHandlingSig
		sepc = ReadContext(in.As, in.TrapCxPpn).Sepc
	})
	if handling {
		t.Fatalf("expected HasHandlingSig cleared after sigreturn")
	}
	if sepc != beforeSepc {
		t.Fatalf("expected sepc restored to %#x, got %#x", beforeSepc, sepc)
	}
}

func TestWaitWhileFrozenReturnsWhenNotFrozen(t *testing.T) {
	task := buildTestTask(t, 64, 15)
	task.Borrow(func(in *proc.TaskInner) { in.Frozen = false })
	waitWhileFrozen(task)
}
