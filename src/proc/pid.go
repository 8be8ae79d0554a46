package proc

import (
	"sync"

	"rvkernel/src/limits"
)

/// Pid_t is a process identifier, spec §4.G's PID allocator.
type Pid_t int

type pidAllocator struct {
	mu       sync.Mutex
	current  Pid_t
	recycled []Pid_t
}

var pidAlloc = &pidAllocator{}

// alloc returns the next free PID, preferring a recycled one over
// bumping the counter, the same bump-or-recycle discipline as
// mem.Physmem_t's frame allocator (spec §4.A/§4.G).
func (p *pidAllocator) alloc() Pid_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.recycled); n > 0 {
		pid := p.recycled[n-1]
		p.recycled = p.recycled[:n-1]
		return pid
	}
	p.current++
	return p.current
}

func (p *pidAllocator) dealloc(pid Pid_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recycled = append(p.recycled, pid)
}

/// PidAlloc claims a fresh PID, failing once limits.Syslimit.Sysprocs's
/// system-wide process ceiling is exhausted (spec.md's `limits` module,
/// §2).
func PidAlloc() (Pid_t, bool) {
	if !limits.Syslimit.Sysprocs.Take() {
		return 0, false
	}
	return pidAlloc.alloc(), true
}

/// PidDealloc returns pid to the recycle pool once its task is reaped,
/// giving its unit back to the process ceiling.
func PidDealloc(pid Pid_t) {
	pidAlloc.dealloc(pid)
	limits.Syslimit.Sysprocs.Give()
}
