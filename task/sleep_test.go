package task

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-taskcore/irq"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SleepUntil_order(t *testing.T) {
	s, clk := newTestScheduler(t)
	type wake struct {
		name     string
		deadline time.Duration
		at       time.Duration
	}
	var wakes []wake
	err := s.Run(context.Background(), func() {
		base := s.Now()
		for _, v := range []struct {
			name   string
			offset time.Duration
		}{
			{`a`, 30 * time.Millisecond},
			{`b`, 10 * time.Millisecond},
			{`c`, 20 * time.Millisecond},
			{`d`, 10 * time.Millisecond},
		} {
			s.SpawnNamed(v.name, func() {
				deadline := base + v.offset
				s.SleepUntil(deadline)
				wakes = append(wakes, wake{v.name, deadline, s.Now()})
			})
		}
		s.YieldNow()
		assert.Equal(t, 4, s.sleepers.Len())

		defer manualTicks(s, clk, time.Millisecond*5)()
		s.SleepUntil(base + 100*time.Millisecond)
		assert.GreaterOrEqual(t, s.Now(), base+100*time.Millisecond)
	})
	require.NoError(t, err)
	require.Len(t, wakes, 4)
	var names []string
	for _, w := range wakes {
		names = append(names, w.name)
		assert.GreaterOrEqual(t, w.at, w.deadline, w.name)
	}
	assert.Equal(t, []string{`b`, `d`, `c`, `a`}, names)
	assert.Equal(t, uint64(5), s.Stats().Wakeups)
	assert.Zero(t, s.Stats().Timeouts)
}

func TestDeadlineAfter(t *testing.T) {
	for _, tc := range []struct {
		now, d, expected time.Duration
	}{
		{time.Second, time.Second, 2 * time.Second},
		{time.Second, -2 * time.Second, -time.Second},
		{time.Second, math.MaxInt64, math.MaxInt64},
		{math.MaxInt64 - 1, 2, math.MaxInt64},
		{0, math.MaxInt64, math.MaxInt64},
	} {
		assert.Equal(t, tc.expected, deadlineAfter(tc.now, tc.d), `%s + %s`, tc.now, tc.d)
	}
}

func TestScheduler_Sleep_maxDuration(t *testing.T) {
	s, clk := newTestScheduler(t)
	clk.Set(time.Second)
	var woke bool
	err := s.Run(context.Background(), func() {
		sleeper := s.SpawnNamed(`forever`, func() {
			s.Sleep(math.MaxInt64)
			woke = true
		})
		s.YieldNow()
		assert.Equal(t, StateSleeping, sleeper.State())
		deadline, ok := s.sleepers.next()
		assert.True(t, ok)
		assert.Equal(t, time.Duration(math.MaxInt64), deadline)

		clk.Advance(time.Hour)
		s.CPU().Raise(irq.LineTimer)
		takeInterrupts(s)
		assert.Equal(t, StateSleeping, sleeper.State())
		assert.Equal(t, 1, s.sleepers.Len())
	})
	require.NoError(t, err)
	assert.False(t, woke)
	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Zero(t, stats.Wakeups)
	assert.Equal(t, uint64(1), stats.Yields)
}

func TestScheduler_Sleep_zeroYields(t *testing.T) {
	s, clk := newTestScheduler(t)
	clk.Set(time.Second)
	var order []string
	err := s.Run(context.Background(), func() {
		s.Spawn(func() { order = append(order, `other`) })
		order = append(order, `before`)
		s.Sleep(0)
		order = append(order, `after`)
		// deadline already passed
		s.SleepUntil(time.Millisecond)
		s.Sleep(-time.Second)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`before`, `other`, `after`}, order)
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Yields)
	assert.Zero(t, stats.Ticks)
	assert.Zero(t, stats.Wakeups)
}

func TestScheduler_tickWakesBehindReadyTasks(t *testing.T) {
	s, clk := newTestScheduler(t)
	var order []string
	err := s.Run(context.Background(), func() {
		s.SpawnNamed(`sleeper`, func() {
			s.Sleep(time.Millisecond)
			order = append(order, `sleeper`)
		})
		s.YieldNow()
		s.SpawnNamed(`ready`, func() { order = append(order, `ready`) })
		clk.Advance(time.Millisecond)
		s.CPU().Raise(irq.LineTimer)
		takeInterrupts(s)
		s.YieldNow()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`ready`, `sleeper`}, order)
}

type fakeDriver struct {
	fire    func()
	period  time.Duration
	stopped bool
}

func (x *fakeDriver) Start(fire func())     { x.fire = fire }
func (x *fakeDriver) Stop()                 { x.stopped = true }
func (x *fakeDriver) Period() time.Duration { return x.period }

func TestScheduler_tickOverrunWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelInformational),
	).Logger()
	limiter := catrate.NewLimiter(map[time.Duration]int{time.Hour: 1})

	s, clk := newTestScheduler(t,
		WithLogger(logger),
		WithWarningLimiter(limiter),
	)
	driver := &fakeDriver{period: 10 * time.Millisecond}
	s.driver = driver
	clk.Set(time.Second)

	err := s.Run(context.Background(), func() {
		for _, gap := range []time.Duration{
			10 * time.Millisecond,
			50 * time.Millisecond, // warns
			15 * time.Millisecond,
			80 * time.Millisecond, // rate limited
		} {
			clk.Advance(gap)
			driver.fire()
			takeInterrupts(s)
		}
	})
	require.NoError(t, err)
	assert.True(t, driver.stopped)
	assert.Equal(t, uint64(4), s.Stats().Ticks)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"kind":"tick-overrun"`), out)
	assert.Contains(t, out, `"msg":"scheduler started"`)
	assert.Contains(t, out, `"msg":"scheduler stopped"`)
	assert.NotContains(t, out, `"msg":"task spawned"`)
}
