package proc

// UpCell is the single-threaded interior-mutability cell spec §5/§9
// calls for: a kernel running on one hart at a time never needs a real
// lock, but it does need to catch an accidental re-entrant borrow (a trap
// handler calling back into code that borrows the same cell). Modeled on
// the teacher's sync.Mutex-guarded structs (e.g. accnt.Accnt_t), narrowed
// with a generic to any single owned value and a borrowed flag instead of
// a real mutex, since a real mutex would hide a reentrancy bug behind a
// deadlock instead of a clean panic.
type UpCell[T any] struct {
	val      T
	borrowed bool
}

/// NewUpCell wraps val.
func NewUpCell[T any](val T) *UpCell[T] {
	return &UpCell[T]{val: val}
}

/// Borrow calls f with an exclusive pointer to the wrapped value,
/// panicking if a borrow is already in progress.
func (c *UpCell[T]) Borrow(f func(*T)) {
	if c.borrowed {
		panic("proc: re-entrant UpCell borrow")
	}
	c.borrowed = true
	defer func() { c.borrowed = false }()
	f(&c.val)
}

/// BorrowRet is Borrow for functions that return a value.
func BorrowRet[T any, R any](c *UpCell[T], f func(*T) R) R {
	var ret R
	c.Borrow(func(v *T) { ret = f(v) })
	return ret
}
