package task

import (
	"time"

	"github.com/joeycumines/go-taskcore/irq"
)

// WaitQueue is a FIFO of tasks blocked on a condition. The condition itself
// is shared state, protected by disabling interrupts, and evaluated by the
// waiter with interrupts disabled, which makes checking it and blocking
// atomic with respect to notifications (including those from interrupt
// handlers).
//
// Notifying wakes waiters in the order they blocked. A woken waiter is not
// guaranteed that its condition still holds, as another task may run first,
// so conditions are always rechecked, see WaitUntil.
//
// Instances must be initialized using Scheduler.NewWaitQueue.
type WaitQueue struct {
	// Prevent copying
	_ [0]func()

	sched      *Scheduler
	head, tail *Task
	name       string
	n          int
}

// NewWaitQueue initializes a new, empty, WaitQueue. The name is used for
// diagnostics only.
func (s *Scheduler) NewWaitQueue(name string) *WaitQueue {
	return &WaitQueue{sched: s, name: name}
}

// Name returns the name given to NewWaitQueue.
func (x *WaitQueue) Name() string {
	return x.name
}

// Len returns the number of blocked tasks. It must be called from a task, or
// while the scheduler is not running.
func (x *WaitQueue) Len() int {
	g := irq.Save(x.sched.cpu)
	defer g.Restore()
	return x.n
}

// Wait blocks the current task until it is notified. Interrupts are enabled
// when it returns. If the scheduler is stopping, Wait returns immediately.
func (x *WaitQueue) Wait() {
	cur := x.sched.suspendable(`wait`)
	g := irq.Save(x.sched.cpu)
	if !x.sched.stopping {
		x.block(cur)
	}
	g.Restore()
}

// WaitUntil blocks the current task until cond returns true. The condition is
// evaluated with interrupts disabled, first before blocking, then again each
// time the task is woken. Interrupts are enabled when it returns.
//
// If the scheduler is stopping, WaitUntil returns without cond necessarily
// being true, and the task will be unwound at its next suspension point.
func (x *WaitQueue) WaitUntil(cond func() bool) {
	if cond == nil {
		panic(`task: nil condition`)
	}
	cur := x.sched.suspendable(`wait`)
	g := irq.Save(x.sched.cpu)
	for !x.sched.stopping && !cond() {
		x.block(cur)
	}
	g.Restore()
}

// WaitTimeout blocks the current task until it is notified, or timeout
// elapses, reporting true in the latter case. A non-positive timeout reports
// true without blocking.
func (x *WaitQueue) WaitTimeout(timeout time.Duration) (timedOut bool) {
	s := x.sched
	cur := s.suspendable(`wait`)
	g := irq.Save(s.cpu)
	defer g.Restore()
	if s.stopping || timeout <= 0 {
		return true
	}
	x.blockTimeout(cur, deadlineAfter(s.clock.Now(), timeout))
	return s.stopping || cur.timedOut
}

// WaitTimeoutUntil is WaitUntil with a relative timeout. It reports true if
// the timeout elapsed before cond was observed to be true. Exactly one of
// notify or timeout wakes each wait.
func (x *WaitQueue) WaitTimeoutUntil(timeout time.Duration, cond func() bool) (timedOut bool) {
	if cond == nil {
		panic(`task: nil condition`)
	}
	s := x.sched
	cur := s.suspendable(`wait`)
	g := irq.Save(s.cpu)
	defer g.Restore()
	deadline := deadlineAfter(s.clock.Now(), timeout)
	cur.timedOut = false
	for {
		if s.stopping {
			return true
		}
		if cond() {
			return false
		}
		if cur.timedOut || s.clock.Now() >= deadline {
			return true
		}
		x.blockTimeout(cur, deadline)
	}
}

// NotifyOne wakes the longest blocked task, if any, reporting whether a task
// was woken. If resched is true, the caller then yields to the woken task
// (or, in interrupt context, at the next opportunity, if preemption is
// enabled).
func (x *WaitQueue) NotifyOne(resched bool) bool {
	g := irq.Save(x.sched.cpu)
	defer g.Restore()
	t := x.head
	if t == nil {
		return false
	}
	x.sched.wake(t)
	if resched {
		x.sched.reschedAfterWake()
	}
	return true
}

// NotifyAll wakes every blocked task, in the order they blocked, returning
// the number woken. See also NotifyOne.
func (x *WaitQueue) NotifyAll(resched bool) int {
	g := irq.Save(x.sched.cpu)
	defer g.Restore()
	var n int
	for x.head != nil {
		x.sched.wake(x.head)
		n++
	}
	if n != 0 && resched {
		x.sched.reschedAfterWake()
	}
	return n
}

// NotifyTask wakes t, if it is blocked on this queue, reporting whether it
// was. See also NotifyOne.
func (x *WaitQueue) NotifyTask(resched bool, t *Task) bool {
	g := irq.Save(x.sched.cpu)
	defer g.Restore()
	if t == nil || t.waitq != x {
		return false
	}
	x.sched.wake(t)
	if resched {
		x.sched.reschedAfterWake()
	}
	return true
}

// block suspends cur on x, without a timeout.
func (x *WaitQueue) block(cur *Task) {
	cur.setState(StateWaiting)
	x.push(cur)
	x.sched.resched(cur)
}

// blockTimeout suspends cur on both x and the sleep queue, until either
// claims it. The timer sets timedOut when it wins.
func (x *WaitQueue) blockTimeout(cur *Task, deadline time.Duration) {
	cur.timedOut = false
	cur.setState(StateWaiting)
	x.push(cur)
	x.sched.sleepers.add(cur, deadline)
	x.sched.resched(cur)
}

func (x *WaitQueue) push(t *Task) {
	t.checkUnlinked(`wait queue push`)
	t.waitq = x
	t.wqPrev = x.tail
	t.wqNext = nil
	if x.tail != nil {
		x.tail.wqNext = t
	} else {
		x.head = t
	}
	x.tail = t
	x.n++
}

func (x *WaitQueue) remove(t *Task) {
	if t.waitq != x {
		panic(invariantf(`wait queue %q remove: %s not queued`, x.name, t))
	}
	if t.wqPrev != nil {
		t.wqPrev.wqNext = t.wqNext
	} else {
		x.head = t.wqNext
	}
	if t.wqNext != nil {
		t.wqNext.wqPrev = t.wqPrev
	} else {
		x.tail = t.wqPrev
	}
	t.waitq, t.wqPrev, t.wqNext = nil, nil, nil
	x.n--
}
