package task

import (
	"fmt"
	"sync/atomic"
)

type (
	// ID uniquely identifies a Task within its Scheduler. IDs start at 1.
	ID uint64

	// Task is a unit of cooperatively scheduled execution.
	//
	// Each task is backed by a goroutine, which is parked on the task's
	// resume channel whenever the task is not running. At any time a task is
	// owned by at most one of: the ready queue, the sleep queue, a wait
	// queue. The single exception is a timed wait, where the task is linked
	// into both its wait queue and the sleep queue, until one claims it.
	Task struct {
		body  func()
		sched *Scheduler

		// saved context: the parked goroutine waits on resume
		resume chan struct{}
		exited chan struct{}

		// wait queue links
		waitq          *WaitQueue
		wqPrev, wqNext *Task

		// sleep queue entry, also set for timed waits
		timer *timerEntry

		name  string
		id    ID
		state atomic.Uint32

		inReady  bool
		timedOut bool
		main     bool
	}

	// TaskInfo is a point-in-time description of a task.
	TaskInfo struct {
		Name  string
		ID    ID
		State State
	}
)

// ID returns the task's identifier.
func (x *Task) ID() ID {
	return x.id
}

// Name returns the task's name.
func (x *Task) Name() string {
	return x.name
}

// State returns the task's current state. It is safe to call from any
// goroutine, though the result may be stale.
func (x *Task) State() State {
	return State(x.state.Load())
}

// String implements fmt.Stringer.
func (x *Task) String() string {
	if x == nil {
		return `task <nil>`
	}
	return fmt.Sprintf(`task %d (%s)`, x.id, x.name)
}

// Done returns a channel that is closed once the task has terminated.
func (x *Task) Done() <-chan struct{} {
	return x.exited
}

func (x *Task) setState(state State) {
	x.state.Store(uint32(state))
}

func (x *Task) info() TaskInfo {
	return TaskInfo{Name: x.name, ID: x.id, State: x.State()}
}

// checkUnlinked panics if the task is linked into any scheduler structure.
func (x *Task) checkUnlinked(op string) {
	switch {
	case x.inReady:
		panic(invariantf(`%s: %s is in the ready queue`, op, x))
	case x.waitq != nil:
		panic(invariantf(`%s: %s is in wait queue %q`, op, x, x.waitq.name))
	case x.timer != nil:
		panic(invariantf(`%s: %s is in the sleep queue`, op, x))
	}
}
