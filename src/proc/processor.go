package proc

// Processor tracks the single hart's current task and its idle control
// flow, matching rCore's Processor in task/processor.rs — one instance
// since this kernel is single-hart by Non-goal.
type processor struct {
	current  *Tcb_t
	idleTask TaskContext
}

var proc0 = &processor{}

/// Current returns the task presently running on this hart, or nil if
/// idle.
func Current() *Tcb_t { return proc0.current }

/// RunNext pops the next ready task and switches into it, looping back
/// to the idle context when that task yields or exits. Called from the
/// idle loop once at boot and thereafter whenever the running task blocks
/// or is preempted, matching rCore's run_tasks.
func RunNext() {
	for {
		t := FetchReady()
		if t == nil {
			return
		}
		var taskCx *TaskContext
		t.Borrow(func(in *TaskInner) {
			in.Status = Running
			taskCx = &in.TaskCx
		})
		proc0.current = t
		Switch(&proc0.idleTask, taskCx)
		proc0.current = nil
	}
}

/// YieldCurrent puts the current task back on the ready queue and
/// returns control to the idle loop, matching rCore's
/// suspend_current_and_run_next.
func YieldCurrent() {
	t := proc0.current
	if t == nil {
		return
	}
	var taskCx *TaskContext
	t.Borrow(func(in *TaskInner) {
		in.Status = Ready
		taskCx = &in.TaskCx
	})
	proc0.current = nil
	AddReady(t)
	Switch(taskCx, &proc0.idleTask)
}

/// ExitCurrent marks the current task a zombie with the given exit code,
/// reparents its children to the init task, and returns control to the
/// idle loop without ever resuming — matching rCore's
/// exit_current_and_run_next.
func ExitCurrent(exitCode int32, initTask *Tcb_t) {
	t := proc0.current
	if t == nil {
		return
	}
	var taskCx *TaskContext
	t.Borrow(func(in *TaskInner) {
		in.Status = Zombie
		in.ExitCode = exitCode
		in.Fds.CloseAll()
		for _, child := range in.Children {
			child.Borrow(func(cin *TaskInner) { cin.Parent = initTask })
			if initTask != nil {
				initTask.Borrow(func(iin *TaskInner) {
					iin.Children = append(iin.Children, child)
				})
			}
		}
		in.Children = nil
		taskCx = &in.TaskCx
	})
	proc0.current = nil
	Switch(taskCx, &proc0.idleTask)
}
