// Package stats holds lightweight counters feeding debugprof's pprof
// export (spec §4.K, the added instrumentation subsystem). Counting is
// gated behind a compile-time flag exactly like the teacher's version,
// minus its dependency on a forked-runtime Rdtsc() hook that doesn't
// exist in stock Go — time.Now() stands in for a cycle counter.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"
)

const Stats = true
const Timing = true

/// Now returns a wall-clock timestamp in nanoseconds, this kernel's stand-in
/// for the teacher's Rdtsc() cycle counter.
func Now() uint64 {
	if !Timing {
		return 0
	}
	return uint64(time.Now().UnixNano())
}

/// Counter_t is a statistical counter.
type Counter_t int64

/// Cycles_t holds an elapsed-time accumulator, in nanoseconds.
type Cycles_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

/// Add adds the nanoseconds elapsed since start to the accumulator.
func (c *Cycles_t) Add(start uint64) {
	if Timing {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, int64(Now()-start))
	}
}

/// Stats2String converts a struct of counters to a printable string;
/// debugprof.CounterFields performs the same walk for profile building.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
