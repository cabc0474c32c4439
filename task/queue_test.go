package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRing_invalidSize(t *testing.T) {
	for _, size := range []int{0, -1, 3, 12} {
		assert.Panics(t, func() { newRing[int](size) }, size)
	}
}

func TestRing_growsPreservingOrder(t *testing.T) {
	r := newRing[int](4)
	// offset the read index, so the growth has to unwrap
	for i := 0; i < 3; i++ {
		r.PushBack(-1)
		_, ok := r.PopFront()
		require.True(t, ok)
	}
	for i := 0; i < 11; i++ {
		r.PushBack(i)
	}
	assert.Len(t, r.s, 16)
	assert.Equal(t, 11, r.Len())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, r.Slice())
	for i := 0; i < 11; i++ {
		v, ok := r.PopFront()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := r.PopFront()
	assert.False(t, ok)
	assert.Nil(t, r.Slice())
	assert.Zero(t, r.Len())
}

func TestReadyQueue_rejectsLinkedTask(t *testing.T) {
	q := newReadyQueue()
	a := &Task{id: 1, name: `a`}
	q.push(a)
	err := recoverError(func() { q.push(a) })
	assert.True(t, errors.Is(err, ErrInvariant), err)
	assert.Same(t, a, q.pop())
	assert.Nil(t, q.pop())
	assert.False(t, a.inReady)
}

func TestTimerQueue_order(t *testing.T) {
	var q timerQueue
	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = &Task{id: ID(i + 1)}
	}
	q.add(tasks[0], 30)
	q.add(tasks[1], 10)
	q.add(tasks[2], 20)
	q.add(tasks[3], 10)
	q.add(tasks[4], 40)

	next, ok := q.next()
	require.True(t, ok)
	assert.Equal(t, time.Duration(10), next)

	// remove from the middle, the way a notify claims a timed waiter
	q.remove(tasks[2].timer)
	assert.Nil(t, tasks[2].timer)
	assert.Equal(t, 4, q.Len())

	assert.Nil(t, q.popExpired(9))

	var woken []ID
	for e := q.popExpired(30); e != nil; e = q.popExpired(30) {
		assert.Nil(t, e.task.timer)
		woken = append(woken, e.task.id)
	}
	assert.Equal(t, []ID{2, 4, 1}, woken)
	assert.Equal(t, 1, q.Len())

	err := recoverError(func() { q.add(tasks[4], 50) })
	assert.True(t, errors.Is(err, ErrInvariant), err)

	e := tasks[4].timer
	q.remove(e)
	err = recoverError(func() { q.remove(e) })
	assert.True(t, errors.Is(err, ErrInvariant), err)

	_, ok = q.next()
	assert.False(t, ok)
}
