package task

import (
	"math"
	"time"

	"github.com/joeycumines/go-taskcore/irq"
)

// Sleep suspends the current task for at least d, measured by the
// scheduler's clock, with a resolution of one tick. A non-positive d is
// equivalent to YieldNow.
func (s *Scheduler) Sleep(d time.Duration) {
	s.SleepUntil(deadlineAfter(s.clock.Now(), d))
}

// SleepUntil suspends the current task until the scheduler's clock reaches
// deadline. A deadline that has already passed is equivalent to YieldNow.
func (s *Scheduler) SleepUntil(deadline time.Duration) {
	cur := s.suspendable(`sleep`)
	g := irq.Save(s.cpu)
	if !s.stopping {
		if deadline <= s.clock.Now() {
			s.yieldLocked(cur)
		} else {
			cur.setState(StateSleeping)
			s.sleepers.add(cur, deadline)
			s.resched(cur)
		}
	}
	g.Restore()
}

// deadlineAfter returns now+d, saturating at the latest representable
// instant, so very large durations (e.g. math.MaxInt64) never expire.
func deadlineAfter(now, d time.Duration) time.Duration {
	if d > 0 && now+d < now {
		return math.MaxInt64
	}
	return now + d
}

// onTick is the timer interrupt handler. It wakes every task whose deadline
// has passed, earliest deadline first.
func (s *Scheduler) onTick(irq.Line) {
	s.stats.ticks.Add(1)
	now := s.clock.Now()

	if s.driver != nil {
		if gap := now - s.lastTick; s.lastTick != 0 && gap > 2*s.driver.Period() {
			if b := s.warning(warnTickOverrun); b != nil {
				b.Dur(`gap`, gap).
					Dur(`period`, s.driver.Period()).
					Log(`timer ticks were delayed or coalesced`)
			}
		}
	}
	s.lastTick = now

	for e := s.sleepers.popExpired(now); e != nil; e = s.sleepers.popExpired(now) {
		t := e.task
		if t.waitq != nil {
			t.timedOut = true
			s.stats.timeouts.Add(1)
		}
		s.wake(t)
	}

	if s.preempt && s.current != nil {
		s.needResched = true
	}
}
