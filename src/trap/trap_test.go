package trap

import (
	"testing"

	"rvkernel/src/proc"
)

func TestSetInitTaskRoundTrip(t *testing.T) {
	task := buildTestTask(t, 32, 20)
	defer SetInitTask(nil)

	SetInitTask(task)
	if InitTask() != task {
		t.Fatalf("expected InitTask to return the task just set")
	}
}

func TestDispatchSyscallPanicsWhenUnset(t *testing.T) {
	saved := DispatchSyscall
	defer func() { DispatchSyscall = saved }()
	DispatchSyscall = func(t *proc.Tcb_t, num uint64, args [3]uint64) int64 {
		panic("trap: syscall dispatcher not installed")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic from unset dispatcher")
		}
	}()
	DispatchSyscall(nil, 0, [3]uint64{})
}

func TestCountersIncrement(t *testing.T) {
	before := Counters.Syscalls
	Counters.Syscalls.Inc()
	if Counters.Syscalls != before+1 {
		t.Fatalf("expected Syscalls counter to increment")
	}
}
