package task

// ring is a growable FIFO ring buffer, with a power of 2 capacity.
// The read and write offsets are free-running, and masked on access.
type ring[E any] struct {
	s    []E
	r, w uint
}

func newRing[E any](size int) *ring[E] {
	if size <= 0 || size&(size-1) != 0 {
		panic(`task: ring: size must be a power of 2`)
	}
	return &ring[E]{s: make([]E, size)}
}

func (x *ring[E]) mask(val uint) uint {
	return val & (uint(len(x.s)) - 1)
}

func (x *ring[E]) bounds() (i1, l1, l2 int) {
	if x.r == x.w {
		return
	}
	i1 = int(x.mask(x.r))
	l1 = int(x.mask(x.w))
	if l1 <= i1 {
		l2 = l1
		l1 = len(x.s)
	}
	return
}

func (x *ring[E]) Len() int {
	return int(x.w - x.r)
}

func (x *ring[E]) Slice() (b []E) {
	if l := x.Len(); l != 0 {
		b = make([]E, l)
		i1, l1, l2 := x.bounds()
		copy(b, x.s[i1:l1])
		copy(b[l1-i1:], x.s[:l2])
	}
	return b
}

func (x *ring[E]) PushBack(value E) {
	if x.Len() == len(x.s) {
		// full: double the buffer, unwrapping in the process
		s := make([]E, uint(len(x.s))<<1)
		if len(s) == 0 {
			panic(`task: ring: push: overflow`)
		}
		n := copy(s, x.Slice())
		x.s = s
		x.r = 0
		x.w = uint(n)
	}
	x.s[x.mask(x.w)] = value
	x.w++
}

func (x *ring[E]) PopFront() (value E, ok bool) {
	if x.r == x.w {
		return
	}
	i := x.mask(x.r)
	value, ok = x.s[i], true
	var zero E
	x.s[i] = zero // release the reference
	x.r++
	return
}

// readyQueue is the FIFO of runnable tasks.
type readyQueue struct {
	ring *ring[*Task]
}

func newReadyQueue() readyQueue {
	return readyQueue{ring: newRing[*Task](16)}
}

func (x *readyQueue) Len() int {
	return x.ring.Len()
}

func (x *readyQueue) push(t *Task) {
	t.checkUnlinked(`ready queue push`)
	t.inReady = true
	x.ring.PushBack(t)
}

func (x *readyQueue) pop() *Task {
	t, ok := x.ring.PopFront()
	if !ok {
		return nil
	}
	if !t.inReady {
		panic(invariantf(`ready queue pop: %s not marked ready`, t))
	}
	t.inReady = false
	return t
}
