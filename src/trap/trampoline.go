package trap

import "rvkernel/src/mem"

// Two assembly surfaces live at a fixed VA mapped into every address
// space (spec §9): __alltraps saves all 32 general registers plus
// sstatus/sepc into the trap-context page, loads the kernel satp, loads
// sp from the trap context's kernel-stack field, and jumps to
// trap_handler; __restore reverses it. Neither can be written in a plain
// Go source file, so both are replaceable seams exactly like
// sbi.sbiCall and proc.contextSwitch — boot code installs the real jump
// once a bootstrap assembly stub exists.

var inKernelTrap = true

/// SetKernelTrapEntry mirrors set_kernel_trap_entry: any trap taken while
/// already in the kernel is fatal except a supervisor timer.
func SetKernelTrapEntry() { inKernelTrap = true }

/// SetUserTrapEntry mirrors set_user_trap_entry: stvec points at the
/// trampoline so the next user trap re-enters through __alltraps.
func SetUserTrapEntry() { inKernelTrap = false }

/// InKernelTrap reports which of the two trap vectors is currently
/// installed.
func InKernelTrap() bool { return inKernelTrap }

// trapReturnFn is the __restore jump: fence.i, then jr to the
// trampoline's restore entry with a0 = trap context VA, a1 = user satp.
var trapReturnFn = func(trapCxVA, userSatp uint64) {}

/// SetTrapReturnFn installs the real jump primitive. Nothing in this
/// module calls it; without it trapReturnFn does nothing.
func SetTrapReturnFn(f func(trapCxVA, userSatp uint64)) { trapReturnFn = f }

/// TrapReturn hands control back to user mode via the trampoline,
/// matching rCore's trap_return: switch stvec back to the trampoline,
/// then jump through __restore.
func TrapReturn(userSatp uint64) {
	SetUserTrapEntry()
	trapReturnFn(mem.TRAP_CONTEXT, userSatp)
}
