// Package limits tracks the system-wide resource ceilings this kernel
// enforces (spec §4.D/§4.G): processes, pipes, and open file descriptors,
// plus the block cache's fixed slot count, which is recorded here but not
// checked. Network/futex/route/ARP ceilings from the teacher's version
// are dropped — there is no networking in this kernel.
package limits

import (
	"sync/atomic"
	"unsafe"
)

/// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

/// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	// live process count, checked by proc.PidAlloc/PidDealloc
	Sysprocs Sysatomic_t
	// the block cache's fixed slot count (spec §4.D: exactly 16);
	// fs.CACHE_SIZE is sized to match but isn't itself a running count,
	// so this stays a plain ceiling rather than a Sysatomic_t.
	CacheBlocks int
	// open pipes system-wide
	Pipes Sysatomic_t
	// open file descriptors, summed across all processes
	Openfds Sysatomic_t
}

/// Syslimit describes the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs:    1024,
		CacheBlocks: 16,
		Pipes:       4096,
		Openfds:     16384,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount. It returns
/// true on success, leaving the limit unchanged on failure.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
