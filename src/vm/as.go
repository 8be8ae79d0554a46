package vm

import (
	"debug/elf"
	"fmt"
	"sync"

	"rvkernel/src/mem"
)

/// AreaKind distinguishes an identity-mapped kernel area from a framed
/// (independently allocated, per-page) area, mirroring rCore
/// memory_set.rs's MapType::{Identical,Framed}.
type AreaKind int

const (
	Identical AreaKind = iota
	Framed
)

/// MemoryArea is one contiguous, page-aligned range of an address space
/// sharing a map type and permission bits (spec §4.C).
type MemoryArea struct {
	VpnStart Vpn_t
	VpnEnd   Vpn_t
	Kind     AreaKind
	Perm     mem.Pa_t // PTE_R|PTE_W|PTE_X|PTE_U, PTE_V added on map
	frames   map[Vpn_t]*mem.Frame_t
}

func NewArea(start, end uint64, kind AreaKind, perm mem.Pa_t) *MemoryArea {
	return &MemoryArea{
		VpnStart: Vpn_t(start >> PGSHIFT),
		VpnEnd:   Vpn_t((end + uint64(PGSIZE) - 1) >> PGSHIFT),
		Kind:     kind,
		Perm:     perm,
		frames:   make(map[Vpn_t]*mem.Frame_t),
	}
}

func (a *MemoryArea) mapOne(pt *PageTable, vpn Vpn_t) error {
	var ppn mem.Ppn_t
	switch a.Kind {
	case Identical:
		ppn = mem.Ppn_t(vpn)
	case Framed:
		f, err := mem.Physmem.Frame_new()
		if err != nil {
			return err
		}
		a.frames[vpn] = f
		ppn = f.Ppn
	}
	return pt.Map(vpn, ppn, a.Perm)
}

func (a *MemoryArea) mapAll(pt *PageTable) error {
	for vpn := a.VpnStart; vpn < a.VpnEnd; vpn++ {
		if err := a.mapOne(pt, vpn); err != nil {
			return err
		}
	}
	return nil
}

func (a *MemoryArea) unmapAll(pt *PageTable) {
	for vpn := a.VpnStart; vpn < a.VpnEnd; vpn++ {
		pt.Unmap(vpn)
		if f, ok := a.frames[vpn]; ok {
			f.Free()
			delete(a.frames, vpn)
		}
	}
}

// copyDataInto writes data (already page-chunked by the caller) across
// the area's already-mapped Framed pages, one page at a time. Only
// meaningful for Framed areas.
func (a *MemoryArea) copyDataInto(data []byte) {
	vpn := a.VpnStart
	start := 0
	for start < len(data) {
		f := a.frames[vpn]
		n := copy(f.Bytes()[:], data[start:])
		start += n
		vpn++
	}
}

func (a *MemoryArea) clone() *MemoryArea {
	na := &MemoryArea{
		VpnStart: a.VpnStart,
		VpnEnd:   a.VpnEnd,
		Kind:     a.Kind,
		Perm:     a.Perm,
		frames:   make(map[Vpn_t]*mem.Frame_t),
	}
	return na
}

// AddrSpace is a process's (or the kernel's) full virtual address space:
// a page table plus the set of MemoryAreas mapped into it. Eager/byte-copy
// fork only (spec §4.C Non-goals: no copy-on-write).
type AddrSpace struct {
	mu    sync.Mutex
	Pt    *PageTable
	areas []*MemoryArea
}

func NewAddrSpace() (*AddrSpace, error) {
	pt, err := NewPageTable()
	if err != nil {
		return nil, err
	}
	return &AddrSpace{Pt: pt}, nil
}

/// Token returns the satp value that activates this address space.
func (as *AddrSpace) Token() uint64 {
	return as.Pt.Token()
}

/// PushArea maps a new area, optionally seeding it with initial bytes
/// (e.g. an ELF segment's file contents), per rCore memory_set.rs's
/// push().
func (as *AddrSpace) PushArea(a *MemoryArea, data []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	if err := a.mapAll(as.Pt); err != nil {
		return err
	}
	if data != nil {
		a.copyDataInto(data)
	}
	as.areas = append(as.areas, a)
	return nil
}

/// InsertFramed is the common case of PushArea: a zero-filled, framed,
/// permission-tagged region with no seed data (anonymous mappings —
/// stacks, heap growth).
func (as *AddrSpace) InsertFramed(start, end uint64, perm mem.Pa_t) error {
	return as.PushArea(NewArea(start, end, Framed, perm), nil)
}

/// RemoveArea unmaps and frees every page of the area starting at vpn, if
/// one exists, mirroring rCore's remove_area_with_start_vpn.
func (as *AddrSpace) RemoveArea(vpnStart Vpn_t) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	for i, a := range as.areas {
		if a.VpnStart == vpnStart {
			a.unmapAll(as.Pt)
			as.areas = append(as.areas[:i], as.areas[i+1:]...)
			return true
		}
	}
	return false
}

/// GrowBrk extends (delta > 0) or shrinks (delta < 0) the last area —
/// the heap-growth page FromElf appends above the user stack — by delta
/// bytes, mapping or unmapping whole pages as needed, and returns the
/// break address from before the change. The upstream tutorial this
/// kernel follows leaves sys_sbrk unimplemented; spec.md's syscall table
/// still lists sbrk=214, so it's implemented here against that
/// dedicated area instead.
func (as *AddrSpace) GrowBrk(delta int64) (oldBrk uint64, err error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	if len(as.areas) == 0 {
		return 0, fmt.Errorf("vm: no heap area")
	}
	a := as.areas[len(as.areas)-1]
	oldBrk = uint64(a.VpnEnd) << PGSHIFT
	if delta == 0 {
		return oldBrk, nil
	}
	newEnd := int64(oldBrk) + delta
	if newEnd < int64(uint64(a.VpnStart)<<PGSHIFT) {
		return 0, fmt.Errorf("vm: brk below area start")
	}
	newVpnEnd := Vpn_t((uint64(newEnd) + uint64(PGSIZE) - 1) >> PGSHIFT)
	if newVpnEnd > a.VpnEnd {
		for vpn := a.VpnEnd; vpn < newVpnEnd; vpn++ {
			if err := a.mapOne(as.Pt, vpn); err != nil {
				return 0, err
			}
		}
	} else if newVpnEnd < a.VpnEnd {
		for vpn := newVpnEnd; vpn < a.VpnEnd; vpn++ {
			as.Pt.Unmap(vpn)
			if f, ok := a.frames[vpn]; ok {
				f.Free()
				delete(a.frames, vpn)
			}
		}
	}
	a.VpnEnd = newVpnEnd
	return oldBrk, nil
}

/// LastArea returns the highest-addressed area (the heap/brk area in
/// practice), used by sbrk.
func (as *AddrSpace) LastArea() *MemoryArea {
	as.mu.Lock()
	defer as.mu.Unlock()
	if len(as.areas) == 0 {
		return nil
	}
	return as.areas[len(as.areas)-1]
}

// NewKernelSpace builds the single identity-mapped kernel address space
// (spec §4.C): every physical page of RAM, plus the kernel image's
// sections with their natural permissions, plus the trampoline. Kernel
// stacks are not mapped here; proc inserts one per task as it creates
// the task. Mirrors rCore memory_set.rs's new_kernel().
func NewKernelSpace(kernelStart, kernelEnd, memEnd mem.Pa_t, trampolinePpn mem.Ppn_t) (*AddrSpace, error) {
	as, err := NewAddrSpace()
	if err != nil {
		return nil, err
	}
	// .text/.rodata/.data/.bss/the rest of physical memory are each
	// identity mapped with permissions matching their content; a single
	// kernel has no notion of read-only/no-exec sections for Go's own
	// runtime, so the subsystem instead partitions strictly by the image
	// boundary the boot stub reports versus remaining RAM.
	if err := as.PushArea(NewArea(uint64(kernelStart), uint64(kernelEnd), Identical, PTE_R|PTE_W|PTE_X), nil); err != nil {
		return nil, err
	}
	if err := as.PushArea(NewArea(uint64(kernelEnd), uint64(memEnd), Identical, PTE_R|PTE_W), nil); err != nil {
		return nil, err
	}
	if err := as.Pt.Map(Vpn_t(uint64(mem.TRAMPOLINE)>>PGSHIFT), trampolinePpn, PTE_R|PTE_X); err != nil {
		return nil, err
	}
	return as, nil
}

// FromElf builds a fresh user address space from an ELF image, returning
// the space, the user stack top, and the entry point — rCore
// memory_set.rs's from_elf(). Non-PT_LOAD segments are skipped. An
// unmapped guard gap separates the highest segment from the user stack,
// and the program break area sits directly above the stack. The
// trap-context page is inserted before the break area, so that area
// stays last for GrowBrk, and the trampoline is mapped last, matching
// the teacher's convention of mapping code/data before control structures.
func FromElf(image []byte, trampolinePpn mem.Ppn_t) (as *AddrSpace, userStackTop uint64, entry uint64, err error) {
	f, ferr := elf.NewFile(sliceReader{image})
	if ferr != nil {
		return nil, 0, 0, fmt.Errorf("vm: bad elf: %w", ferr)
	}
	as, err = NewAddrSpace()
	if err != nil {
		return nil, 0, 0, err
	}
	var maxEnd uint64
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		perm := PTE_U
		if prog.Flags&elf.PF_R != 0 {
			perm |= PTE_R
		}
		if prog.Flags&elf.PF_W != 0 {
			perm |= PTE_W
		}
		if prog.Flags&elf.PF_X != 0 {
			perm |= PTE_X
		}
		data := make([]byte, prog.Filesz)
		if _, rerr := prog.ReadAt(data, 0); rerr != nil {
			return nil, 0, 0, fmt.Errorf("vm: reading segment: %w", rerr)
		}
		area := NewArea(prog.Vaddr, prog.Vaddr+prog.Memsz, Framed, perm)
		if err := as.PushArea(area, data); err != nil {
			return nil, 0, 0, err
		}
		if end := prog.Vaddr + prog.Memsz; end > maxEnd {
			maxEnd = end
		}
	}
	// one guard page, then the user stack, matching rCore's layout.
	stackBottom := (maxEnd/uint64(PGSIZE) + 2) * uint64(PGSIZE)
	stackTop := stackBottom + uint64(mem.USER_STACK_SIZE)
	if err := as.InsertFramed(stackBottom, stackTop, PTE_R|PTE_W|PTE_U); err != nil {
		return nil, 0, 0, err
	}
	if err := as.InsertFramed(mem.TRAP_CONTEXT, mem.TRAMPOLINE, PTE_R|PTE_W); err != nil {
		return nil, 0, 0, err
	}
	// the heap-growth area for sbrk starts as a single empty page right
	// above the stack so LastArea always has something to extend.
	if err := as.InsertFramed(stackTop, stackTop+uint64(PGSIZE), PTE_R|PTE_W|PTE_U); err != nil {
		return nil, 0, 0, err
	}
	if err := as.Pt.Map(Vpn_t(uint64(mem.TRAMPOLINE)>>PGSHIFT), trampolinePpn, PTE_R|PTE_X); err != nil {
		return nil, 0, 0, err
	}
	return as, stackTop, f.Entry, nil
}

// Fork performs an eager (non-COW) copy of as: a new page table, new
// frames for every Framed area, byte-for-byte duplicated contents. This
// is spec §4.C's explicit Non-goal choice — simpler and slower than
// copy-on-write, which is exactly the tradeoff rCore's own os/src/mm
// documents taking for its educational fork().
func (as *AddrSpace) Fork() (*AddrSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	child, err := NewAddrSpace()
	if err != nil {
		return nil, err
	}
	for _, a := range as.areas {
		na := a.clone()
		if err := na.mapAll(child.Pt); err != nil {
			return nil, err
		}
		for vpn := a.VpnStart; vpn < a.VpnEnd; vpn++ {
			src, ok := a.frames[vpn]
			if !ok {
				continue
			}
			dst := na.frames[vpn]
			*dst.Bytes() = *src.Bytes()
		}
		child.areas = append(child.areas, na)
	}
	return child, nil
}

/// Recycle unmaps and frees every area's frames. Called when a task
/// becomes a zombie (spec §4.G) so its memory is reclaimed before its
/// TCB is reaped by waitpid.
func (as *AddrSpace) Recycle() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, a := range as.areas {
		a.unmapAll(as.Pt)
	}
	as.areas = nil
}

/// Translate looks up the PTE for a virtual address within this space.
func (as *AddrSpace) Translate(va uint64) (Pte_t, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.Pt.Translate(Vpn_t(va >> PGSHIFT))
}

type sliceReader struct{ b []byte }

func (s sliceReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.b)) {
		return 0, fmt.Errorf("vm: out of range")
	}
	n := copy(p, s.b[off:])
	if n < len(p) {
		return n, fmt.Errorf("vm: short read")
	}
	return n, nil
}
