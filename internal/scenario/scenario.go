// Package scenario implements the interrupt state acceptance scenarios: a
// yield storm, a sleep storm, and a wait queue rendezvous. Each checks that
// task code always runs with interrupts enabled, across every kind of
// suspension point.
//
// Scenarios run as the body of a task, and report failure by panicking,
// which stops the scheduler with a *task.PanicError.
package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joeycumines/go-taskcore/internal/irqassert"
	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/go-taskcore/task"
)

// Scenario is a named scenario.
type Scenario struct {
	Run  func(s *task.Scheduler, cfg Config)
	Name string
}

// All returns every scenario, in the order they are run by default.
func All() []Scenario {
	return []Scenario{
		{Name: `yield`, Run: YieldStorm},
		{Name: `sleep`, Run: SleepStorm},
		{Name: `wait`, Run: WaitQueueRendezvous},
	}
}

// Lookup resolves scenarios by name, preserving the given order. No names
// selects All.
func Lookup(names ...string) ([]Scenario, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}
	scenarios := make([]Scenario, 0, len(names))
Outer:
	for _, name := range names {
		for _, v := range all {
			if v.Name == name {
				scenarios = append(scenarios, v)
				continue Outer
			}
		}
		valid := make([]string, len(all))
		for i, v := range all {
			valid[i] = v.Name
		}
		return nil, fmt.Errorf(`scenario: unknown scenario %q (valid: %s)`, name, strings.Join(valid, `, `))
	}
	return scenarios, nil
}

// Run runs the scenarios in sequence, as the main task of a new scheduler,
// configured with opts. The scheduler logs to cfg.Logger, unless opts
// specifies otherwise.
func Run(ctx context.Context, cfg Config, scenarios []Scenario, opts ...task.Option) error {
	cfg = cfg.withDefaults()
	s, err := task.New(append([]task.Option{task.WithLogger(cfg.Logger)}, opts...)...)
	if err != nil {
		return err
	}
	return s.Run(ctx, func() {
		for _, v := range scenarios {
			start := s.Now()
			cfg.Logger.Info().
				Str(`scenario`, v.Name).
				Int(`tasks`, cfg.Tasks).
				Log(`scenario started`)
			v.Run(s, cfg)
			cfg.Logger.Info().
				Str(`scenario`, v.Name).
				Dur(`elapsed`, s.Now()-start).
				Log(`scenario passed`)
		}
	})
}

// YieldStorm spawns cfg.Tasks tasks, each of which yields cfg.Times times,
// then waits for them all to finish, by yielding.
func YieldStorm(s *task.Scheduler, cfg Config) {
	cfg = cfg.withDefaults()
	var finished int
	for i := 0; i < cfg.Tasks; i++ {
		s.SpawnNamed(fmt.Sprintf(`yield-%d`, i), func() {
			irqassert.Enabled(s)
			for j := 0; j < cfg.Times; j++ {
				irqassert.Enabled(s)
				s.YieldNow()
				irqassert.EnabledAndDisabled(s)
			}
			irq.Do(s.CPU(), func() { finished++ })
		})
	}
	for load(s, &finished) < cfg.Tasks {
		s.YieldNow()
		irqassert.EnabledAndDisabled(s)
	}
}

// SleepStorm sleeps once, then runs a background task that sleeps briefly
// many times, alongside cfg.Tasks tasks that each sleep for a long time,
// several times. Every sleep is checked to end no earlier than its deadline,
// and no later than cfg.MaxLateness after it.
func SleepStorm(s *task.Scheduler, cfg Config) {
	cfg = cfg.withDefaults()

	irqassert.Enabled(s)
	sleepChecked(s, cfg, cfg.LongSleep)
	irqassert.EnabledAndDisabled(s)

	background := s.SpawnNamed(`sleep-background`, func() {
		for i := 0; i < cfg.ShortSleeps; i++ {
			irqassert.Enabled(s)
			sleepChecked(s, cfg, cfg.ShortSleep)
			irqassert.EnabledAndDisabled(s)
		}
	})

	var finished int
	for i := 0; i < cfg.Tasks; i++ {
		s.SpawnNamed(fmt.Sprintf(`sleep-%d`, i), func() {
			irqassert.Enabled(s)
			for j := 0; j < cfg.Rounds; j++ {
				sleepChecked(s, cfg, cfg.LongSleep)
				irqassert.EnabledAndDisabled(s)
			}
			irq.Do(s.CPU(), func() { finished++ })
		})
	}

	for load(s, &finished) < cfg.Tasks {
		s.Sleep(cfg.Poll)
	}
	for !done(background) {
		s.Sleep(cfg.Poll)
	}
}

// WaitQueueRendezvous spawns cfg.Tasks tasks, which each perform a timed
// wait that always times out, then check in with the main task, via a shared
// counter, before blocking until released. The main task waits for every
// task to check in, releases them all at once, then waits for every task to
// check out again.
func WaitQueueRendezvous(s *task.Scheduler, cfg Config) {
	cfg = cfg.withDefaults()

	var (
		rendezvous = s.NewWaitQueue(`wq1`)
		release    = s.NewWaitQueue(`wq2`)
		timer      = s.NewWaitQueue(`wq3`)
		counter    int
		released   bool
	)

	for i := 0; i < cfg.Tasks; i++ {
		s.SpawnNamed(fmt.Sprintf(`waiter-%d`, i), func() {
			irqassert.Enabled(s)

			// nothing notifies this queue, making it a sleep
			if !timer.WaitTimeoutUntil(cfg.WaitTimeout, func() bool { return false }) {
				panic(fmt.Sprintf(`Task id = %v timed wait on %s did not time out`, s.Current().ID(), timer.Name()))
			}
			irqassert.EnabledAndDisabled(s)

			irq.Do(s.CPU(), func() { counter++ })
			rendezvous.NotifyOne(true)
			irqassert.Enabled(s)

			release.WaitUntil(func() bool { return released })
			irqassert.EnabledAndDisabled(s)

			irq.Do(s.CPU(), func() { counter-- })
			rendezvous.NotifyOne(true)
		})
	}

	irqassert.Enabled(s)
	rendezvous.WaitUntil(func() bool { return counter == cfg.Tasks })
	irqassert.EnabledAndDisabled(s)
	if n := load(s, &counter); n != cfg.Tasks {
		panic(fmt.Sprintf(`expected counter %d, got %d`, cfg.Tasks, n))
	}

	irq.Do(s.CPU(), func() { released = true })
	release.NotifyAll(true)

	irqassert.Enabled(s)
	rendezvous.WaitUntil(func() bool { return counter == 0 })
	irqassert.EnabledAndDisabled(s)
	if n := load(s, &counter); n != 0 {
		panic(fmt.Sprintf(`expected counter 0, got %d`, n))
	}
}

// sleepChecked sleeps for d, then checks the wake time.
func sleepChecked(s *task.Scheduler, cfg Config, d time.Duration) {
	deadline := s.Now() + d
	s.Sleep(d)
	switch late := s.Now() - deadline; {
	case late < 0:
		panic(fmt.Sprintf(`Task id = %v woke %s early`, s.Current().ID(), -late))
	case late > cfg.MaxLateness:
		panic(fmt.Sprintf(`Task id = %v woke %s late`, s.Current().ID(), late))
	}
}

// load reads a counter shared with other tasks.
func load(s *task.Scheduler, v *int) (n int) {
	irq.Do(s.CPU(), func() { n = *v })
	return n
}

func done(t *task.Task) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}
