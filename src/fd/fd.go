package fd

import "rvkernel/src/defs"
import "rvkernel/src/fdops"
import "rvkernel/src/limits"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// Fd_t represents an open file descriptor.
type Fd_t struct {
	// Fops is an interface implemented via a pointer receiver, thus Fops
	// is a reference, not a value.
	Fops  fdops.Fdops_i /// descriptor operations
	Perms int           /// permission bits
}

/// Copyfd duplicates an open file descriptor by reopening it.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	err := nfd.Fops.Reopen()
	if err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Fdtable_t is a per-process slice of open descriptors indexed by fd
/// number, lowest-free-slot allocation, mirroring rCore's
/// TaskControlBlockInner.fd_table/alloc_fd.
type Fdtable_t struct {
	fds []*Fd_t
}

/// NewFdtable builds an empty table.
func NewFdtable() *Fdtable_t {
	return &Fdtable_t{}
}

/// Alloc claims the lowest free fd number for f and returns it, failing
/// with -defs.EMFILE once limits.Syslimit.Openfds's system-wide ceiling
/// is exhausted (spec.md's `limits` module, §2).
func (t *Fdtable_t) Alloc(f *Fd_t) (int, defs.Err_t) {
	if !limits.Syslimit.Openfds.Take() {
		return 0, -defs.EMFILE
	}
	for i, e := range t.fds {
		if e == nil {
			t.fds[i] = f
			return i, 0
		}
	}
	t.fds = append(t.fds, f)
	return len(t.fds) - 1, 0
}

/// Get returns the descriptor at fdnum, or nil if it isn't open.
func (t *Fdtable_t) Get(fdnum int) *Fd_t {
	if fdnum < 0 || fdnum >= len(t.fds) {
		return nil
	}
	return t.fds[fdnum]
}

/// Set installs f at a specific fd number, growing the table if needed;
/// used by dup2.
func (t *Fdtable_t) Set(fdnum int, f *Fd_t) {
	for fdnum >= len(t.fds) {
		t.fds = append(t.fds, nil)
	}
	t.fds[fdnum] = f
}

/// Clear removes the descriptor at fdnum without closing it, giving its
/// slot back to the system-wide open-fd ceiling.
func (t *Fdtable_t) Clear(fdnum int) {
	if fdnum >= 0 && fdnum < len(t.fds) && t.fds[fdnum] != nil {
		t.fds[fdnum] = nil
		limits.Syslimit.Openfds.Give()
	}
}

/// Clone duplicates every open descriptor (reopening each one) into a
/// fresh table, used by fork. Each duplicate draws its own unit from
/// limits.Syslimit.Openfds, since the child's table is a distinct set of
/// open files system-wide; a mid-way failure gives back every unit this
/// call claimed.
func (t *Fdtable_t) Clone() (*Fdtable_t, defs.Err_t) {
	nt := &Fdtable_t{fds: make([]*Fd_t, len(t.fds))}
	claimed := 0
	for i, e := range t.fds {
		if e == nil {
			continue
		}
		if !limits.Syslimit.Openfds.Take() {
			nt.giveBack(claimed)
			return nil, -defs.EMFILE
		}
		claimed++
		nfd, err := Copyfd(e)
		if err != 0 {
			nt.giveBack(claimed)
			return nil, err
		}
		nt.fds[i] = nfd
	}
	return nt, 0
}

func (t *Fdtable_t) giveBack(n int) {
	for i := 0; i < n; i++ {
		limits.Syslimit.Openfds.Give()
	}
}

/// CloseAll closes every open descriptor and gives its slot back to the
/// system-wide ceiling, used on process exit.
func (t *Fdtable_t) CloseAll() {
	for _, e := range t.fds {
		if e != nil {
			e.Fops.Close()
			limits.Syslimit.Openfds.Give()
		}
	}
}
