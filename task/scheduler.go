package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-taskcore/clock"
	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/logiface"
	"golang.org/x/exp/slices"
)

type (
	// Scheduler runs tasks on a single logical CPU.
	//
	// The ready queue, the sleep queue and every wait queue are mutated only
	// with the CPU's interrupts disabled, which is sufficient mutual exclusion
	// given there is only one CPU. Interrupts are enabled whenever task code
	// runs. Instances must be initialized using the New factory.
	Scheduler struct {
		// Prevent copying
		_ [0]func()

		logger  *logiface.Logger[logiface.Event]
		limiter *catrate.Limiter
		cpu     *irq.CPU
		clock   clock.Clock
		driver  clock.Driver
		ctx     context.Context

		// halt is closed by the task goroutine that stopped the scheduler,
		// once it has finished, handing control back to Run
		halt   chan struct{}
		haltBy *Task
		err    error

		current  *Task
		tasks    map[ID]*Task
		ready    readyQueue
		sleepers timerQueue

		stats     stats
		lastTick  time.Duration
		lifecycle lifecycleState
		nextID    ID

		stopping          bool
		needResched       bool
		preempt           bool
		deadlockDetection bool
	}

	// Stats is a snapshot of scheduler counters.
	Stats struct {
		Spawned  uint64
		Exited   uint64
		Switches uint64
		Yields   uint64
		Ticks    uint64
		Wakeups  uint64
		Timeouts uint64
		Idles    uint64
	}

	stats struct {
		spawned  atomic.Uint64
		exited   atomic.Uint64
		switches atomic.Uint64
		yields   atomic.Uint64
		ticks    atomic.Uint64
		wakeups  atomic.Uint64
		timeouts atomic.Uint64
		idles    atomic.Uint64
	}
)

// New initializes a new Scheduler. It does not start anything, see Run.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		logger:            cfg.logger,
		limiter:           cfg.limiter,
		cpu:               cfg.cpu,
		clock:             cfg.clock,
		driver:            cfg.driver,
		ctx:               context.Background(),
		tasks:             make(map[ID]*Task),
		ready:             newReadyQueue(),
		preempt:           cfg.preempt,
		deadlockDetection: cfg.deadlockDetection,
	}, nil
}

// Run boots the scheduler, running main as a task, and blocks until main
// returns. Any tasks still alive at that point are unwound: each is resumed
// one final time, and exits via runtime.Goexit, running its deferred calls.
//
// Run also stops, unwinding every task, if ctx is canceled (observed at
// scheduling points, and while idle), if a task panics (*PanicError), or if
// a deadlock is detected (ErrDeadlock).
//
// A Scheduler may only be run once.
func (s *Scheduler) Run(ctx context.Context, main func()) error {
	if ctx == nil {
		panic(`task: nil context`)
	}
	if main == nil {
		panic(`task: nil main`)
	}

	if !s.lifecycle.TryTransition(lifecycleIdle, lifecycleRunning) {
		if s.lifecycle.Load() == lifecycleTerminated {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}
	defer s.lifecycle.Store(lifecycleTerminated)

	s.ctx = ctx
	s.halt = make(chan struct{})

	// boot runs with interrupts disabled, until the first switch
	g := irq.Save(s.cpu)

	s.cpu.Register(irq.LineTimer, s.onTick)
	if s.preempt {
		s.cpu.SetReturnHook(s.preemptHook)
	}

	t := s.spawn(`main`, main)
	t.main = true

	s.lastTick = s.clock.Now()
	if s.driver != nil {
		s.driver.Start(s.raiseTick)
	}

	s.logger.Info().
		Int(`tasks`, len(s.tasks)).
		Bool(`preempt`, s.preempt).
		Log(`scheduler started`)

	s.install(s.ready.pop())
	<-s.halt

	if s.driver != nil {
		s.driver.Stop()
	}
	unwound := s.unwind()
	s.current = nil

	if s.preempt {
		s.cpu.SetReturnHook(nil)
	}
	s.cpu.Register(irq.LineTimer, nil)

	s.logger.Info().
		Err(s.err).
		Int(`unwound`, unwound).
		Uint64(`switches`, s.stats.switches.Load()).
		Log(`scheduler stopped`)

	g.Restore()

	return s.err
}

func (s *Scheduler) raiseTick() {
	s.cpu.Raise(irq.LineTimer)
}

// stop marks the scheduler as stopping, recording the first error. It must
// be called by the current task, which becomes responsible for closing halt,
// once it has exited.
func (s *Scheduler) stop(err error) {
	if s.stopping {
		return
	}
	s.stopping = true
	s.err = err
	s.haltBy = s.current
}

// unwind terminates every remaining task, in ID order, including tasks
// spawned by deferred calls during the unwind itself.
func (s *Scheduler) unwind() (n int) {
	for len(s.tasks) != 0 {
		ids := make([]ID, 0, len(s.tasks))
		for id := range s.tasks {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			t, ok := s.tasks[id]
			if !ok {
				continue
			}
			s.current = t
			t.resume <- struct{}{}
			<-t.exited
			n++
		}
	}
	return n
}

// pickNext returns the next task to run, idling while nothing is ready. It
// returns nil if the scheduler was stopped, in which case the caller is
// responsible for halting.
func (s *Scheduler) pickNext() *Task {
	for {
		if err := s.ctx.Err(); err != nil {
			s.stop(err)
			return nil
		}
		if t := s.ready.pop(); t != nil {
			return t
		}
		// a pending interrupt may still make a task ready
		if s.deadlockDetection && s.sleepers.Len() == 0 && !s.cpu.Pending() {
			if b := s.warning(warnDeadlock); b != nil {
				b.Int(`tasks`, len(s.tasks)).Log(`all tasks blocked`)
			}
			s.stop(ErrDeadlock)
			return nil
		}
		s.stats.idles.Add(1)
		if b := s.logger.Trace(); b.Enabled() {
			if deadline, ok := s.sleepers.next(); ok {
				b = b.Dur(`next_deadline`, deadline)
			}
			b.Int(`sleepers`, s.sleepers.Len()).Log(`idle`)
		}
		if !s.cpu.WaitForInterrupt(s.ctx.Done()) {
			s.stop(s.ctx.Err())
			return nil
		}
	}
}

// Spawn creates a new task running body, appending it to the tail of the
// ready queue. It may be called from a task, or prior to Run. Spawning on a
// terminated scheduler panics.
func (s *Scheduler) Spawn(body func()) *Task {
	return s.SpawnNamed(``, body)
}

// SpawnNamed is Spawn, with a name for the task. An empty name defaults to
// "task-<id>".
func (s *Scheduler) SpawnNamed(name string, body func()) *Task {
	if body == nil {
		panic(`task: nil body`)
	}
	if s.lifecycle.Load() == lifecycleTerminated {
		panic(fmt.Errorf(`task: spawn: %w`, ErrTerminated))
	}
	g := irq.Save(s.cpu)
	t := s.spawn(name, body)
	g.Restore()
	return t
}

func (s *Scheduler) spawn(name string, body func()) *Task {
	s.nextID++
	t := &Task{
		body:   body,
		sched:  s,
		resume: make(chan struct{}, 1),
		exited: make(chan struct{}),
		name:   name,
		id:     s.nextID,
	}
	if t.name == `` {
		t.name = fmt.Sprintf(`task-%d`, t.id)
	}
	s.tasks[t.id] = t
	s.stats.spawned.Add(1)
	t.setState(StateReady)
	s.ready.push(t)
	go t.run()
	s.logger.Debug().
		Uint64(`task`, uint64(t.id)).
		Str(`name`, t.name).
		Log(`task spawned`)
	return t
}

// Current returns the running task, or nil if called outside of a task.
func (s *Scheduler) Current() *Task {
	return s.current
}

// YieldNow moves the current task to the tail of the ready queue, and
// switches to the head. It is a no-op if no other task is ready.
// Interrupts are enabled when it returns.
func (s *Scheduler) YieldNow() {
	cur := s.suspendable(`yield`)
	g := irq.Save(s.cpu)
	if !s.stopping {
		s.yieldLocked(cur)
	}
	g.Restore()
}

func (s *Scheduler) yieldLocked(cur *Task) {
	s.stats.yields.Add(1)
	if s.ready.Len() == 0 && s.ctx.Err() == nil {
		return
	}
	cur.setState(StateReady)
	s.ready.push(cur)
	s.resched(cur)
}

// suspendable validates the context of a suspension point, returning the
// current task.
func (s *Scheduler) suspendable(op string) *Task {
	if s.cpu.InInterrupt() {
		panic(fmt.Errorf(`task: %s: %w`, op, ErrBlockInInterrupt))
	}
	cur := s.current
	if cur == nil {
		panic(fmt.Errorf(`task: %s: %w`, op, ErrNotInTask))
	}
	return cur
}

// makeReady appends t to the ready queue. t must be unlinked.
func (s *Scheduler) makeReady(t *Task) {
	t.setState(StateReady)
	s.ready.push(t)
}

// wake claims a blocked task from every structure holding it, and makes it
// ready. For a timed wait, whichever of notify or timeout gets here first
// wins, the other will no longer find the task.
func (s *Scheduler) wake(t *Task) {
	if t.waitq != nil {
		t.waitq.remove(t)
	}
	if t.timer != nil {
		s.sleepers.remove(t.timer)
	}
	s.stats.wakeups.Add(1)
	s.logger.Trace().
		Uint64(`task`, uint64(t.id)).
		Bool(`timeout`, t.timedOut).
		Log(`task woken`)
	s.makeReady(t)
}

// reschedAfterWake implements the resched flag of the notify methods.
func (s *Scheduler) reschedAfterWake() {
	if s.stopping {
		return
	}
	if s.cpu.InInterrupt() {
		s.needResched = true
		return
	}
	if cur := s.current; cur != nil {
		s.yieldLocked(cur)
	}
}

// preemptHook is the CPU's return-from-interrupt hook, if preemption is
// enabled.
func (s *Scheduler) preemptHook() {
	if !s.needResched || s.stopping || s.current == nil || s.cpu.InInterrupt() {
		return
	}
	s.needResched = false
	s.YieldNow()
}

// CPU returns the CPU the scheduler runs on.
func (s *Scheduler) CPU() *irq.CPU {
	return s.cpu
}

// Now returns the scheduler's current monotonic instant.
func (s *Scheduler) Now() time.Duration {
	return s.clock.Now()
}

// Running reports whether Run is in progress.
func (s *Scheduler) Running() bool {
	return s.lifecycle.Load() == lifecycleRunning
}

// Terminated reports whether Run has completed.
func (s *Scheduler) Terminated() bool {
	return s.lifecycle.Load() == lifecycleTerminated
}

// Stats returns a snapshot of the scheduler's counters. It is safe to call
// from any goroutine.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Spawned:  s.stats.spawned.Load(),
		Exited:   s.stats.exited.Load(),
		Switches: s.stats.switches.Load(),
		Yields:   s.stats.yields.Load(),
		Ticks:    s.stats.ticks.Load(),
		Wakeups:  s.stats.wakeups.Load(),
		Timeouts: s.stats.timeouts.Load(),
		Idles:    s.stats.idles.Load(),
	}
}

// Tasks returns a snapshot of all live tasks, ordered by ID. It must be
// called from a task, or while the scheduler is not running.
func (s *Scheduler) Tasks() []TaskInfo {
	g := irq.Save(s.cpu)
	defer g.Restore()
	infos := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		infos = append(infos, t.info())
	}
	slices.SortFunc(infos, func(a, b TaskInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return infos
}

// ReadyLen returns the number of tasks in the ready queue. It must be called
// from a task, or while the scheduler is not running.
func (s *Scheduler) ReadyLen() int {
	g := irq.Save(s.cpu)
	defer g.Restore()
	return s.ready.Len()
}
