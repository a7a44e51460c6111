package cablelink

import "sync"

// responseBuffer is an unbounded FIFO between the coordinator loop and the
// stream consumer. The loop must never block on a slow consumer (a blocked
// loop would stall lifecycle handling), and a subscription stream has no
// natural end, so the buffer grows instead of dropping or applying
// backpressure.
type responseBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf    []Response
	head   int
	tail   int
	count  int
	closed bool
}

func newResponseBuffer(initialCapacity int) *responseBuffer {
	if initialCapacity < 1 {
		initialCapacity = 16
	}
	b := &responseBuffer{
		buf: make([]Response, initialCapacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// push appends a response. Returns false once the buffer is closed.
func (b *responseBuffer) push(r Response) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count == len(b.buf) {
		b.grow()
	}

	b.buf[b.tail] = r
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++

	b.cond.Signal()
	return true
}

// next blocks until a response is available or the buffer is closed and
// drained. The second return is false only in the closed-and-drained case.
func (b *responseBuffer) next() (Response, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		return Response{}, false
	}

	r := b.buf[b.head]
	b.buf[b.head] = Response{} // drop references for GC
	b.head = (b.head + 1) % len(b.buf)
	b.count--

	return r, true
}

// close wakes all waiters. Already-buffered responses remain readable.
func (b *responseBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

func (b *responseBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// grow doubles capacity, unwrapping the ring. Caller holds the lock.
func (b *responseBuffer) grow() {
	next := make([]Response, len(b.buf)*2)
	if b.head < b.tail {
		copy(next, b.buf[b.head:b.tail])
	} else {
		n := copy(next, b.buf[b.head:])
		copy(next[n:], b.buf[:b.tail])
	}
	b.buf = next
	b.head = 0
	b.tail = b.count
}
