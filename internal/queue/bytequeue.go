// Package queue implements ByteQueue, the growable (unbounded)
// single-producer / single-consumer FIFO of owned byte buffers that sits between a
// FetchWorker and the NdjsonStream reading from it.
package queue

import "sync"

// bufPool reuses the row buffers the transcoder fills via GetBuf and the
// NDJSON stream hands back via PutBuf once drained, the same sync.Pool shape the teacher codebase uses for its
// own hot-path allocations (row maps, bytes.Buffer, tuple-id slices).
var bufPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

// GetBuf returns a pooled []byte with at least the requested capacity and
// zero length.
func GetBuf(capHint int) []byte {
	b := bufPool.Get().([]byte)
	if cap(b) < capHint {
		return make([]byte, 0, capHint)
	}
	return b[:0]
}

// PutBuf returns a buffer obtained from GetBuf to the pool. The caller
// must not use buf after calling PutBuf.
func PutBuf(buf []byte) {
	bufPool.Put(buf[:0]) //nolint:staticcheck // intentional reset-then-pool
}

// ByteQueue is a FIFO of owned byte buffers. Exactly one goroutine may
// call Push (the FetchWorker) and exactly one may call Pop (the
// NdjsonStream reader); the mutex exists to publish the head/tail update
// safely across that goroutine boundary, not to support contended
// multi-producer/multi-consumer use.
type ByteQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  [][]byte
	head int
	tail int

	closed bool
}

// New returns an empty ByteQueue with a small initial ring capacity; the
// ring doubles on overflow.
func New() *ByteQueue {
	q := &ByteQueue{buf: make([][]byte, 8)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *ByteQueue) len() int {
	if q.tail >= q.head {
		return q.tail - q.head
	}
	return len(q.buf) - q.head + q.tail
}

// Push enqueues buf at the tail, waking any goroutine blocked in Pop.
// Ownership of buf transfers to the queue.
func (q *ByteQueue) Push(buf []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.len() == len(q.buf)-1 {
		q.grow()
	}
	q.buf[q.tail] = buf
	q.tail = (q.tail + 1) % len(q.buf)
	q.cond.Signal()
}

// grow doubles the ring and linearizes it. Callers hold q.mu.
func (q *ByteQueue) grow() {
	n := q.len()
	newBuf := make([][]byte, len(q.buf)*2)
	for i := 0; i < n; i++ {
		newBuf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = newBuf
	q.head = 0
	q.tail = n
}

// Pop dequeues the head buffer, blocking until one is available or the
// queue is closed. The second return is false once the queue is closed and
// drained — the sentinel the reader distinguishes from a zero-length
// buffer.
func (q *ByteQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.len() == 0 {
		return nil, false
	}
	b := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	return b, true
}

// Close marks the queue closed: outstanding Pushes are dropped and any
// blocked Pop returns immediately with ok=false once drained. Safe to call
// more than once.
func (q *ByteQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of buffers currently queued, for sampling into
// the queue-depth gauge. Safe for concurrent use.
func (q *ByteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}
