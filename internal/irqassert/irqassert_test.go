package irqassert

import (
	"context"
	"errors"
	"testing"

	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/go-taskcore/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler(t *testing.T) *task.Scheduler {
	t.Helper()
	s, err := task.New(task.WithTickDriver(nil))
	require.NoError(t, err)
	return s
}

func TestOutsideTask(t *testing.T) {
	s := newScheduler(t)
	// a new CPU starts with interrupts disabled
	assert.PanicsWithValue(t, `Task id = <none> IRQs should be enabled!`, func() { Enabled(s) })
	assert.NotPanics(t, func() { Disabled(s) })
	s.CPU().Enable()
	assert.NotPanics(t, func() { EnabledAndDisabled(s) })
	assert.True(t, s.CPU().Enabled())
}

func TestInTask(t *testing.T) {
	s := newScheduler(t)
	err := s.Run(context.Background(), func() {
		Enabled(s)
		EnabledAndDisabled(s)
		s.YieldNow()
		EnabledAndDisabled(s)
		irq.Do(s.CPU(), func() { Disabled(s) })
		Enabled(s)
	})
	require.NoError(t, err)
}

func TestInTask_failure(t *testing.T) {
	s := newScheduler(t)
	err := s.Run(context.Background(), func() {
		irq.Do(s.CPU(), func() { Enabled(s) })
	})
	var panicErr *task.PanicError
	require.True(t, errors.As(err, &panicErr), err)
	assert.Equal(t, `Task id = 1 IRQs should be enabled!`, panicErr.Value)
}
