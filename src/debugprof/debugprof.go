// Package debugprof assembles a pprof-format profile out of the
// kernel's trap-path counters and per-task CPU accounting on shutdown
// (spec §4.K, instrumentation added beyond the distilled spec), feeding
// `github.com/google/pprof/profile` — the teacher's own dependency,
// used there for their compiler's profiling and reused here for kernel
// instrumentation.
package debugprof

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/google/pprof/profile"

	"rvkernel/src/proc"
	"rvkernel/src/stats"
)

// Three sample "dimensions" share one profile: an event count (from
// stats.Counter_t fields), and per-task user/system nanoseconds (from
// accnt.Accnt_t). A sample not relevant to a dimension carries 0 there
// rather than splitting into three separate profiles.
var sampleTypes = []*profile.ValueType{
	{Type: "count", Unit: "count"},
	{Type: "usertime", Unit: "nanoseconds"},
	{Type: "systime", Unit: "nanoseconds"},
}

const (
	dimCount = iota
	dimUser
	dimSys
	numDims
)

/// CounterField names one stats.Counter_t field and its current value,
/// the profile-building counterpart of stats.Stats2String's reflect walk.
type CounterField struct {
	Name  string
	Value int64
}

/// CounterFields walks st (e.g. trap.Counters) the same way
/// stats.Stats2String does, returning every Counter_t field found by
/// name, instead of a formatted string.
func CounterFields(st interface{}) []CounterField {
	v := reflect.ValueOf(st)
	var out []CounterField
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if !strings.HasSuffix(f.Type().String(), "Counter_t") {
			continue
		}
		out = append(out, CounterField{
			Name:  v.Type().Field(i).Name,
			Value: int64(f.Interface().(stats.Counter_t)),
		})
	}
	return out
}

type idGen struct{ next uint64 }

func (g *idGen) alloc() uint64 {
	g.next++
	return g.next
}

func locationFor(p *profile.Profile, ids *idGen, name string) *profile.Location {
	fn := &profile.Function{ID: ids.alloc(), Name: name}
	loc := &profile.Location{ID: ids.alloc(), Line: []profile.Line{{Function: fn}}}
	p.Function = append(p.Function, fn)
	p.Location = append(p.Location, loc)
	return loc
}

func zeroValue() []int64 { return make([]int64, numDims) }

/// Build assembles a profile.Profile from a counters struct (trap.Counters'
/// shape) and every task proc.AllTasks returns, one sample per counter
/// field and one pair of samples (user/sys) per live task.
func Build(counters interface{}) *profile.Profile {
	p := &profile.Profile{
		SampleType: sampleTypes,
		PeriodType: &profile.ValueType{Type: "count", Unit: "count"},
		Period:     1,
		TimeNanos:  int64(stats.Now()),
	}
	ids := &idGen{}

	for _, c := range CounterFields(counters) {
		loc := locationFor(p, ids, "counter:"+c.Name)
		val := zeroValue()
		val[dimCount] = c.Value
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    val,
		})
	}

	for _, t := range proc.AllTasks() {
		var userns, sysns int64
		var pid proc.Pid_t
		t.Borrow(func(in *proc.TaskInner) {
			userns = in.Accnt.Userns
			sysns = in.Accnt.Sysns
		})
		pid = t.Pid

		loc := locationFor(p, ids, fmt.Sprintf("task:pid=%d", pid))
		val := zeroValue()
		val[dimUser] = userns
		val[dimSys] = sysns
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    val,
			Label:    map[string][]string{"pid": {fmt.Sprint(pid)}},
		})
	}

	return p
}

/// Write assembles and serializes a profile to w in pprof's gzip-compressed
/// wire format, the shutdown-time counterpart of the teacher's
/// stats.Stats2String debug dump.
func Write(w io.Writer, counters interface{}) error {
	return Build(counters).Write(w)
}
