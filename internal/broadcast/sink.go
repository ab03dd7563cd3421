package broadcast

import "sync"

// DefaultQueueSize is the per-observer outbound buffer.
const DefaultQueueSize = 256

// Sink receives serialized messages for one observer.
//
// Deliver must not block. Close must be idempotent.
type Sink interface {
	Deliver(payload []byte) error
	Close() error
}

// QueueSink is a bounded, non-blocking Sink. A consumer goroutine drains
// Messages() until the channel is closed.
type QueueSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewQueueSink creates a sink buffering up to size messages.
// A non-positive size selects DefaultQueueSize.
func NewQueueSink(size int) *QueueSink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &QueueSink{ch: make(chan []byte, size)}
}

// Deliver enqueues payload. It returns ErrSinkOverflow when the queue is
// full and ErrSinkClosed after Close.
func (q *QueueSink) Deliver(payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrSinkClosed
	}
	select {
	case q.ch <- payload:
		return nil
	default:
		return ErrSinkOverflow
	}
}

// Close closes the queue. Buffered messages remain readable.
func (q *QueueSink) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

// Messages returns the queue for the consumer.
func (q *QueueSink) Messages() <-chan []byte {
	return q.ch
}

// Len returns the number of queued messages.
func (q *QueueSink) Len() int {
	return len(q.ch)
}

// Closed reports whether Close has been called.
func (q *QueueSink) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
