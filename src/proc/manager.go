package proc

import (
	"hash/fnv"
	"sync"

	"rvkernel/src/hashtable"
)

// taskManager is the FIFO ready queue (the global PID→task map is
// pidTable below), matching rCore's TaskManager in task/manager.rs, split from Processor
// (current-task tracking lives there) the same way rCore splits the two
// concerns across manager.rs/processor.rs.
type taskManager struct {
	mu    sync.Mutex
	ready []*Tcb_t
}

var manager = &taskManager{}

/// AddReady appends t to the back of the ready queue.
func AddReady(t *Tcb_t) {
	manager.mu.Lock()
	manager.ready = append(manager.ready, t)
	manager.mu.Unlock()
}

/// FetchReady pops the front of the ready queue, or returns nil if empty.
func FetchReady() *Tcb_t {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if len(manager.ready) == 0 {
		return nil
	}
	t := manager.ready[0]
	manager.ready = manager.ready[1:]
	return t
}

func pidHash(p Pid_t) uint32 {
	h := fnv.New32a()
	h.Write([]byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)})
	return h.Sum32()
}

var pidTable = hashtable.New[Pid_t, *Tcb_t](256, pidHash)

/// RegisterTask makes t findable by PID (used by waitpid and signal
/// delivery).
func RegisterTask(t *Tcb_t) {
	if !pidTable.Set(t.Pid, t) {
		panic("proc: duplicate pid registered")
	}
}

/// UnregisterTask removes t's PID mapping once it's fully reaped.
func UnregisterTask(pid Pid_t) {
	pidTable.Del(pid)
}

/// LookupTask finds the task with the given PID, if still registered.
func LookupTask(pid Pid_t) (*Tcb_t, bool) {
	return pidTable.Get(pid)
}

/// AllTasks returns every currently-registered task, used by debugprof
/// to walk live per-task accounting when assembling a shutdown profile.
func AllTasks() []*Tcb_t {
	pairs := pidTable.Elems()
	tasks := make([]*Tcb_t, len(pairs))
	for i, p := range pairs {
		tasks[i] = p.Val
	}
	return tasks
}
