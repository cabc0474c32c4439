// Package irqassert provides assertions on the interrupt state of the
// running task, for use by test harnesses. Failed assertions panic, which
// the scheduler reports as a *task.PanicError.
package irqassert

import (
	"fmt"

	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/go-taskcore/task"
)

// Enabled panics if interrupts are disabled.
func Enabled(s *task.Scheduler) {
	if !s.CPU().Enabled() {
		panic(fmt.Sprintf(`Task id = %v IRQs should be enabled!`, taskID(s)))
	}
}

// Disabled panics if interrupts are enabled.
func Disabled(s *task.Scheduler) {
	if s.CPU().Enabled() {
		panic(fmt.Sprintf(`Task id = %v IRQs should be disabled!`, taskID(s)))
	}
}

// EnabledAndDisabled asserts interrupts are enabled, then disables them,
// asserts they are disabled, and enables them again.
func EnabledAndDisabled(s *task.Scheduler) {
	Enabled(s)
	g := irq.Save(s.CPU())
	Disabled(s)
	g.Restore()
}

func taskID(s *task.Scheduler) any {
	if t := s.Current(); t != nil {
		return t.ID()
	}
	return `<none>`
}
