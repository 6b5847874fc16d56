// Package ndjson implements a readable byte stream over a ByteQueue,
// inserting a single '\n' after every buffer it fully drains so downstream
// line readers see one logical line per serialized JSON document.
package ndjson

import (
	"io"

	"github.com/sausheong/webtab/internal/queue"
)

// Stream is an io.Reader view over a ByteQueue. It is not safe for
// concurrent use by more than one reading goroutine — the same
// single-consumer contract the ByteQueue itself assumes.
type Stream struct {
	queue       *queue.ByteQueue
	current     []byte
	offset      int
	emitNewline bool
}

// New wraps q in a readable Stream.
func New(q *queue.ByteQueue) *Stream {
	return &Stream{queue: q}
}

// QueueLen reports the number of buffers currently queued behind this
// stream, for sampling into the queue-depth gauge.
func (s *Stream) QueueLen() int {
	return s.queue.Len()
}

// Read implements io.Reader. It never blocks trying to fill the whole
// request — it returns as soon as it has produced at least one byte, or
// io.EOF once the underlying queue is closed and drained.
func (s *Stream) Read(out []byte) (int, error) {
	if len(out) == 0 {
		return 0, nil
	}

	if s.emitNewline {
		out[0] = '\n'
		s.emitNewline = false
		return 1, nil
	}

	if s.current == nil {
		buf, ok := s.queue.Pop()
		if !ok {
			return 0, io.EOF
		}
		s.current = buf
		s.offset = 0
	}

	n := copy(out, s.current[s.offset:])
	s.offset += n
	if s.offset >= len(s.current) {
		queue.PutBuf(s.current)
		s.current = nil
		s.offset = 0
		s.emitNewline = true
	}
	return n, nil
}
