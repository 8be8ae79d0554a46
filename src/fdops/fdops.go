// Package fdops defines the interfaces the file-descriptor layer (fd,
// pipe, stdio, and the inode-backed file in fs) all implement, so that
// syscall dispatch never has to know which concrete kind of descriptor
// it holds (spec §4.F).
package fdops

import "rvkernel/src/defs"

/// Userio_i abstracts a user-supplied buffer so file implementations
/// never touch an AddrSpace directly; the trap layer's copy-in/copy-out
/// plumbing is the only thing that implements it.
type Userio_i interface {
	/// Uioread copies into dst, returning the number of bytes copied.
	Uioread(dst []uint8) (int, defs.Err_t)
	/// Uiowrite copies from src, returning the number of bytes copied.
	Uiowrite(src []uint8) (int, defs.Err_t)
	/// Remain reports how many bytes are still unconsumed.
	Remain() int
	/// Totalsz reports the buffer's original size.
	Totalsz() int
}

/// Fdops_i is the operation set every open file descriptor implements:
/// inode-backed files, pipe endpoints, and the three stdio streams
/// (spec §4.F).
type Fdops_i interface {
	/// Readable reports whether Read is a valid operation on this fd.
	Readable() bool
	/// Writable reports whether Write is a valid operation on this fd.
	Writable() bool
	/// Read copies data into dst, returning bytes read.
	Read(dst Userio_i) (int, defs.Err_t)
	/// Write copies data from src, returning bytes written.
	Write(src Userio_i) (int, defs.Err_t)
	/// Close releases any resources the descriptor holds. Safe to call
	/// more than once.
	Close() defs.Err_t
	/// Reopen bumps whatever reference count backs the descriptor, used
	/// when duplicating an fd (dup2, fork).
	Reopen() defs.Err_t
}
