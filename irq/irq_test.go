package irq

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCPU_startsDisabled(t *testing.T) {
	c := NewCPU()
	assert.False(t, c.Enabled())
	assert.False(t, c.Pending())
	assert.False(t, c.InInterrupt())
}

func TestSave_restoresPriorState(t *testing.T) {
	for _, tc := range [...]struct {
		name    string
		initial bool
	}{
		{`enabled`, true},
		{`disabled`, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCPU()
			if tc.initial {
				c.Enable()
			}
			g := Save(c)
			assert.False(t, c.Enabled())
			assert.Equal(t, tc.initial, g.WasEnabled())
			g.Restore()
			assert.Equal(t, tc.initial, c.Enabled())
		})
	}
}

func TestSave_nested(t *testing.T) {
	c := NewCPU()
	c.Enable()
	outer := Save(c)
	inner := Save(c)
	inner.Restore()
	assert.False(t, c.Enabled(), `inner restore must not re-enable`)
	outer.Restore()
	assert.True(t, c.Enabled())
}

func TestDo_restoresOnEveryExitPath(t *testing.T) {
	t.Run(`return`, func(t *testing.T) {
		c := NewCPU()
		c.Enable()
		var inside bool
		Do(c, func() { inside = c.Enabled() })
		assert.False(t, inside)
		assert.True(t, c.Enabled())
	})

	t.Run(`panic`, func(t *testing.T) {
		c := NewCPU()
		c.Enable()
		func() {
			defer func() { _ = recover() }()
			Do(c, func() { panic(`boom`) })
		}()
		assert.True(t, c.Enabled())
	})

	t.Run(`goexit`, func(t *testing.T) {
		c := NewCPU()
		c.Enable()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			Do(c, runtime.Goexit)
		}()
		wg.Wait()
		assert.True(t, c.Enabled())
	})
}

func TestCPU_Enable_takesPending(t *testing.T) {
	c := NewCPU()
	var (
		lines       []Line
		enabledSeen []bool
		depthSeen   []bool
	)
	handler := func(line Line) {
		lines = append(lines, line)
		enabledSeen = append(enabledSeen, c.Enabled())
		depthSeen = append(depthSeen, c.InInterrupt())
	}
	c.Register(LineTimer, handler)
	c.Register(5, handler)
	var hookEnabled []bool
	c.SetReturnHook(func() { hookEnabled = append(hookEnabled, c.Enabled()) })

	c.Raise(5)
	c.Raise(LineTimer)
	assert.True(t, c.Pending())
	assert.Empty(t, lines, `must not be taken while masked`)

	c.Enable()
	assert.Equal(t, []Line{LineTimer, 5}, lines)
	assert.Equal(t, []bool{false, false}, enabledSeen)
	assert.Equal(t, []bool{true, true}, depthSeen)
	assert.Equal(t, []bool{true}, hookEnabled)
	assert.True(t, c.Enabled())
	assert.False(t, c.Pending())
	assert.False(t, c.InInterrupt())
	assert.Equal(t, uint64(2), c.Taken())
}

func TestCPU_Raise_coalesces(t *testing.T) {
	c := NewCPU()
	var n int
	c.Register(LineTimer, func(Line) { n++ })
	c.Raise(LineTimer)
	c.Raise(LineTimer)
	c.Raise(LineTimer)
	c.Enable()
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(2), c.Coalesced())
}

func TestCPU_spurious(t *testing.T) {
	c := NewCPU()
	c.Raise(7)
	c.Enable()
	assert.Equal(t, uint64(1), c.Spurious())
	assert.Equal(t, uint64(1), c.Taken())
}

func TestCPU_lineOutOfRange(t *testing.T) {
	c := NewCPU()
	assert.Panics(t, func() { c.Raise(MaxLines) })
	assert.Panics(t, func() { c.Register(MaxLines, nil) })
}

func TestCPU_WaitForInterrupt(t *testing.T) {
	c := NewCPU()
	taken := make(chan bool, 1)
	c.Register(LineTimer, func(Line) { taken <- c.Enabled() })

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Raise(LineTimer)
	}()

	require.True(t, c.WaitForInterrupt(nil))
	assert.False(t, <-taken)
	assert.False(t, c.Enabled(), `idle must not unmask`)
}

func TestCPU_WaitForInterrupt_done(t *testing.T) {
	c := NewCPU()
	done := make(chan struct{})
	close(done)
	assert.False(t, c.WaitForInterrupt(done))
}

func TestCPU_WaitForInterrupt_enabledPanics(t *testing.T) {
	c := NewCPU()
	c.Enable()
	assert.Panics(t, func() { c.WaitForInterrupt(nil) })
}

func TestCPU_handlerNotReentered(t *testing.T) {
	c := NewCPU()
	var calls int
	c.Register(LineTimer, func(Line) {
		calls++
		// a handler raising its own line, then restoring a guard, must not
		// recurse into dispatch
		c.Raise(LineTimer)
		g := Save(c)
		g.Restore()
	})
	c.Raise(LineTimer)
	c.Enable()
	assert.Equal(t, 1, calls)
	assert.True(t, c.Pending())
}
