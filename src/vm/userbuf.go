package vm

import (
	"rvkernel/src/defs"
	"rvkernel/src/mem"
)

// UserBuf streams bytes to or from a range of user virtual memory,
// straddling page boundaries one page at a time — the same shape as the
// teacher's Userbuf_t._tx loop, rewritten against AddrSpace.Translate
// instead of Vm_t.Userdmap8_inner since there is no copy-on-write fault
// path to trigger here (spec §4.C has no Non-goal on eager mapping, but
// it does exclude COW, so every user page a task can see is already
// resident).
type UserBuf struct {
	as  *AddrSpace
	va  uint64
	len int
	off int
}

func NewUserBuf(as *AddrSpace, va uint64, length int) *UserBuf {
	return &UserBuf{as: as, va: va, len: length}
}

func (ub *UserBuf) Remain() int { return ub.len - ub.off }

/// Totalsz reports the buffer's original length, satisfying
/// fdops.Userio_i.
func (ub *UserBuf) Totalsz() int { return ub.len }

/// Uioread copies from user memory into dst, satisfying fdops.Userio_i
/// (the teacher's Userio_i contract: "read" means drain the user
/// buffer into the caller's slice).
func (ub *UserBuf) Uioread(dst []uint8) (int, defs.Err_t) { return ub.ReadOut(dst) }

/// Uiowrite copies src into user memory, satisfying fdops.Userio_i.
func (ub *UserBuf) Uiowrite(src []uint8) (int, defs.Err_t) { return ub.WriteIn(src) }

// pageSlice returns the mapped kernel-side slice backing one page of
// user memory starting at va, honouring the in-page offset, erroring if
// unmapped or if write is requested against a read-only page.
func (ub *UserBuf) pageSlice(va uint64, write bool) ([]byte, defs.Err_t) {
	pte, ok := ub.as.Translate(va)
	if !ok {
		return nil, -defs.EFAULT
	}
	if write && !pte.Writable() {
		return nil, -defs.EFAULT
	}
	off := va & uint64(PGSIZE-1)
	pg := framePage(ub.as, pte.Ppn())
	if pg == nil {
		return nil, -defs.EFAULT
	}
	return pg[off:], 0
}

// framePage resolves a leaf PPN to its byte storage by scanning the
// owning area's frame map; leaf frames aren't directory frames so they
// don't live in PageTable.dirs.
func framePage(as *AddrSpace, ppn mem.Ppn_t) []byte {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, a := range as.areas {
		for _, f := range a.frames {
			if f.Ppn == ppn {
				b := f.Bytes()
				return b[:]
			}
		}
	}
	return nil
}

/// FramePage exposes framePage to other packages that need raw access to
/// a resident physical page by PPN — the trap package's signal pipeline
/// uses it to read/write a task's trap-context page directly, since that
/// page has no Go struct overlay (spec §4.H's trap context is CPU state,
/// not kernel-owned memory).
func (as *AddrSpace) FramePage(ppn mem.Ppn_t) []byte {
	return framePage(as, ppn)
}

// tx copies min(len(buf), Remain()) bytes between buf and user memory,
// advancing ub.off, a page slice at a time.
func (ub *UserBuf) tx(buf []byte, write bool) (int, defs.Err_t) {
	done := 0
	for len(buf) > 0 && ub.off < ub.len {
		va := ub.va + uint64(ub.off)
		pg, err := ub.pageSlice(va, write)
		if err != 0 {
			return done, err
		}
		n := len(buf)
		if rem := ub.len - ub.off; n > rem {
			n = rem
		}
		if n > len(pg) {
			n = len(pg)
		}
		if write {
			copy(pg, buf[:n])
		} else {
			copy(buf, pg[:n])
		}
		buf = buf[n:]
		ub.off += n
		done += n
	}
	return done, 0
}

/// ReadOut copies from user memory into dst.
func (ub *UserBuf) ReadOut(dst []byte) (int, defs.Err_t) { return ub.tx(dst, false) }

/// WriteIn copies src into user memory.
func (ub *UserBuf) WriteIn(src []byte) (int, defs.Err_t) { return ub.tx(src, true) }

/// CopyCString reads a NUL-terminated string from user memory starting
/// at va, up to lenmax bytes, matching rCore's translated_str semantics.
func CopyCString(as *AddrSpace, va uint64, lenmax int) (string, defs.Err_t) {
	var out []byte
	for i := 0; i < lenmax; i++ {
		pte, ok := as.Translate(va + uint64(i))
		if !ok {
			return "", -defs.EFAULT
		}
		pg := framePage(as, pte.Ppn())
		if pg == nil {
			return "", -defs.EFAULT
		}
		c := pg[(va+uint64(i))&uint64(PGSIZE-1)]
		if c == 0 {
			return string(out), 0
		}
		out = append(out, c)
	}
	return "", -defs.ENAMETOOLONG
}

/// CopySized copies exactly n bytes out of user memory at va into a
/// freshly allocated slice (rCore's translated_byte_buffer over a single
/// contiguous run).
func CopySized(as *AddrSpace, va uint64, n int) ([]byte, defs.Err_t) {
	buf := make([]byte, n)
	ub := NewUserBuf(as, va, n)
	got, err := ub.ReadOut(buf)
	if err != 0 {
		return nil, err
	}
	if got != n {
		return nil, -defs.EFAULT
	}
	return buf, 0
}

/// CopyOut writes src into user memory at va.
func CopyOut(as *AddrSpace, va uint64, src []byte) defs.Err_t {
	ub := NewUserBuf(as, va, len(src))
	n, err := ub.WriteIn(src)
	if err != 0 {
		return err
	}
	if n != len(src) {
		return -defs.EFAULT
	}
	return 0
}
