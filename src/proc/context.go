package proc

// TaskContext holds exactly the state __switch must save/restore across
// a context switch: the return address, stack pointer, and the 12
// callee-saved s-registers (spec §4.G). Everything else — trap context,
// user pc/sp, satp — is restored on the way back to user mode through
// the trampoline, not here, matching rCore's TaskContext/switch.rs.
type TaskContext struct {
	Ra uint64
	Sp uint64
	S  [12]uint64
}

/// GotoTrapReturn builds the initial TaskContext for a brand new task:
/// its first "resumption" goes to trapReturn with the given kernel stack
/// top as sp, matching rCore's TaskContext::goto_trap_return.
func GotoTrapReturn(kstackTop uint64) TaskContext {
	return TaskContext{Ra: trapReturnAddr(), Sp: kstackTop}
}

// trapReturnAddr resolves the entry point __switch returns into for a
// freshly created task. A Go build has no code address to point at, so
// any nonzero Ra stands for trapReturnFn; Ra 0 marks the idle context.
// trapReturnFn does nothing until SetTrapReturn installs the real path.
var trapReturnFn = func() {}

func trapReturnAddr() uint64 { return 1 }

/// SetTrapReturn installs the function __switch's Ra should resume into
/// for brand-new tasks; called once during boot by cmd/kernel's wireSeams
/// to avoid an import cycle (proc must not import trap, trap imports proc).
func SetTrapReturn(f func()) { trapReturnFn = f }

// contextSwitch is the machine-specific primitive: save the outgoing
// context, load the incoming one, and resume — one function body in
// assembly in the real kernel (callee-saved regs + sp, then `ret`), kept
// as a replaceable seam here exactly like sbi.sbiCall, since no inline
// RISC-V assembly can live in a plain Go source file.
var contextSwitch = func(outgoing, incoming *TaskContext) {
	if incoming.Ra == 0 {
		return
	}
	trapReturnFn()
}

/// Switch saves the current hart's context into from and resumes
/// execution at to, matching rCore's __switch(current_task_cx_ptr,
/// next_task_cx_ptr).
func Switch(from, to *TaskContext) {
	contextSwitch(from, to)
}
