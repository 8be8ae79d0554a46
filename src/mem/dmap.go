package mem

// Kernel memory layout constants, spec §2/§4.A/§4.C. These replace the
// x86 direct-map bookkeeping the teacher's dmap.go held (VREC/VDIRECT
// recursive-mapping slots have no Sv39 equivalent); the numbers themselves
// come from rCore's config/src/lib.rs.

/// KERNEL_STACK_SIZE is the size in bytes of one task's kernel-mode stack.
const KERNEL_STACK_SIZE = 8 * 4096

/// PAGE_SIZE_BITS is PGSHIFT restated for callers that only import mem for
/// layout constants.
const PAGE_SIZE_BITS = PGSHIFT

/// MEMORY_END is the physical address one past the last byte of RAM QEMU
/// `virt` gives the kernel (spec §2): 8 MiB starting at 0x8000_0000.
const MEMORY_END Pa_t = 0x80800000

/// TRAMPOLINE is the top virtual page of every address space, kernel and
/// user alike, mapped to the same physical trampoline code page so a trap
/// can switch satp without the instruction stream moving out from under
/// the program counter (spec §4.C).
const TRAMPOLINE uint64 = 0xffffffff << PAGE_SIZE_BITS

/// TRAP_CONTEXT is the virtual page directly below TRAMPOLINE, holding a
/// task's saved TrapContext while it runs in user mode (spec §4.C).
const TRAP_CONTEXT uint64 = TRAMPOLINE - uint64(PGSIZE)

/// USER_STACK_SIZE is the size in bytes of one task's user-mode stack.
const USER_STACK_SIZE = 2 * 4096

/// KernelStackPosition returns the [bottom, top) virtual address range
/// reserved for task appId's kernel stack, guard-paged one page below
/// TRAMPOLINE per slot (spec §4.C/§4.G).
func KernelStackPosition(appId int) (bottom, top uint64) {
	top = TRAMPOLINE - uint64(appId)*(uint64(KERNEL_STACK_SIZE)+uint64(PGSIZE))
	bottom = top - uint64(KERNEL_STACK_SIZE)
	return
}
