package defs

/// Err_t is a negative-valued kernel error code. Zero means success.
type Err_t int

/// Error codes returned to user space. The magnitudes don't matter beyond
/// being distinct and negative; only -1 (generic failure) and, for
/// waitpid, -2 (child exists but isn't a zombie yet) are part of the
/// syscall ABI described in the spec. The rest are kernel-internal detail
/// used to pick a distinct os.Error-ish string for logging.
const (
	EPERM    Err_t = 1
	ENOENT   Err_t = 2
	ESRCH    Err_t = 3
	EIO      Err_t = 5
	EBADF    Err_t = 9
	ENOMEM   Err_t = 12
	EFAULT   Err_t = 14
	EEXIST   Err_t = 17
	ENOTDIR  Err_t = 20
	EISDIR   Err_t = 21
	EINVAL   Err_t = 22
	ENOSPC   Err_t = 28
	EMFILE   Err_t = 24
	ENAMETOOLONG Err_t = 36
	ENOSYS   Err_t = 38
	ENOHEAP  Err_t = 39
)

/// generic user-visible failure code from spec.md §7.
const EGENERIC Err_t = 1

/// waitpid's "child exists but is still running" sentinel.
const EAGAIN_CHILD Err_t = 2

func (e Err_t) String() string {
	switch e {
	case 0:
		return "ok"
	case EPERM:
		return "permission denied"
	case ENOENT:
		return "no such file"
	case ESRCH:
		return "no such process"
	case EIO:
		return "i/o error"
	case EBADF:
		return "bad file descriptor"
	case ENOMEM:
		return "out of memory"
	case EFAULT:
		return "bad address"
	case EEXIST:
		return "already exists"
	case EINVAL:
		return "invalid argument"
	case ENOSPC:
		return "no space left"
	case EMFILE:
		return "too many open files"
	case ENAMETOOLONG:
		return "name too long"
	case ENOSYS:
		return "unknown syscall"
	case ENOHEAP:
		return "kernel heap exhausted"
	default:
		return "unknown error"
	}
}
