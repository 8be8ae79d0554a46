package defs

/// Open-flag bits, per spec.md §6. Absent bits mean O_RDONLY.
const (
	O_WRONLY int = 1 << 0
	O_RDWR   int = 1 << 1
	O_CREAT  int = 1 << 9
	O_TRUNC  int = 1 << 10
)

/// Pid_t identifies a process.
type Pid_t int

/// Tid_t identifies a kernel thread of control. The kernel is single
/// threaded per task, so Tid_t and Pid_t currently coincide, but keeping
/// the distinct type matches the teacher's convention and leaves room for
/// the Non-goal (SMP) to grow into it without a rename.
type Tid_t int

/// Syscall numbers, the Linux RISC-V ABI subset named in spec.md §4.H.
const (
	SYS_DUP        = 24
	SYS_OPEN       = 56
	SYS_CLOSE      = 57
	SYS_PIPE       = 59
	SYS_READ       = 63
	SYS_WRITE      = 64
	SYS_EXIT       = 93
	SYS_YIELD      = 124
	SYS_KILL       = 129
	SYS_SIGACTION  = 134
	SYS_SIGPROCMASK = 135
	SYS_SIGRETURN  = 139
	SYS_GET_TIME   = 169
	SYS_GETPID     = 172
	SYS_SBRK       = 214
	SYS_FORK       = 220
	SYS_EXEC       = 221
	SYS_WAITPID    = 260
)
