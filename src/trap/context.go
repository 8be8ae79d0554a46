// Package trap implements the user/kernel trap boundary spec §4.H: the
// trap-context layout, the trampoline seam standing in for __alltraps/
// __restore, scause/stval dispatch, and the signal pipeline. Grounded
// throughout on rCore's trap/{context,mod}.rs.
package trap

import (
	"bytes"
	"encoding/binary"
)

// TrapContext is the CPU-state snapshot saved on user→kernel entry and
// restored on exit: 32 general registers, sstatus, sepc, plus the three
// kernel bookkeeping fields __alltraps needs to get back into supervisor
// mode — matching rCore's #[repr(C)] TrapContext exactly so its field
// order would match a real trampoline's hand-written offsets.
type TrapContext struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

const sstatusSPP = uint64(1) << 8

/// SetSp sets the saved user stack pointer (x2).
func (tc *TrapContext) SetSp(sp uint64) { tc.X[2] = sp }

/// AppInitContext builds a brand new task's first trap context: sepc at
/// the ELF entry, sp at the top of the user stack, SPP cleared (previous
/// privilege = user) and the kernel bookkeeping fields latched so the
/// trampoline can find its way back into the kernel, matching rCore's
/// TrapContext::app_init_context.
func AppInitContext(entry, sp, kernelSatp, kernelSp, trapHandler uint64) TrapContext {
	cx := TrapContext{
		Sstatus:     0 &^ sstatusSPP,
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		TrapHandler: trapHandler,
	}
	cx.SetSp(sp)
	return cx
}

const trapContextSize = 32*8 + 8*4

/// Marshal serializes the context to bytes, used to stash a backup copy
/// in TaskInner.SigTrapBackup across a signal handler dispatch.
func (tc *TrapContext) Marshal() []byte {
	buf := make([]byte, 0, trapContextSize)
	b := bytes.NewBuffer(buf)
	binary.Write(b, binary.LittleEndian, tc)
	return b.Bytes()
}

/// UnmarshalTrapContext reverses Marshal.
func UnmarshalTrapContext(data []byte) TrapContext {
	var tc TrapContext
	binary.Read(bytes.NewReader(data), binary.LittleEndian, &tc)
	return tc
}
