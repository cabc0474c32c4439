package task

import (
	"github.com/joeycumines/logiface"
)

// Warning kinds, also used as rate limiter categories.
const (
	warnTickOverrun = `tick-overrun`
	warnDeadlock    = `deadlock`
)

// warning returns a builder for a warning of the given kind, or nil if the
// kind is currently rate limited (or logging is disabled).
func (s *Scheduler) warning(kind string) *logiface.Builder[logiface.Event] {
	b := s.logger.Warning()
	if !b.Enabled() {
		return nil
	}
	if _, ok := s.limiter.Allow(kind); !ok {
		b.Release()
		return nil
	}
	return b.Str(`kind`, kind)
}

func (s *Scheduler) traceSwitch(prev, next *Task) {
	s.logger.Trace().
		Uint64(`from`, uint64(prev.id)).
		Uint64(`to`, uint64(next.id)).
		Log(`context switch`)
}
