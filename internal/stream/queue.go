// Package stream implements the sample fan-out: one producer, any number of
// independently-lifecycled consumers, with no backpressure coupling back to
// the producer.
package stream

import "sync"

// Queue is an unbounded FIFO feeding one consumer channel. The producer side
// never waits for the consumer: elements the channel cannot hold yet move to
// an internal backlog and drain as the consumer catches up, so an attached
// consumer receives every element exactly once no matter how slowly it reads.
type Queue[T any] struct {
	in   chan T
	out  chan T
	done chan struct{}
	once sync.Once
}

// NewQueue creates a Queue. capacity sizes the consumer-facing channel; it
// bounds nothing, overflow accumulates in the backlog.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue[T]{
		in:   make(chan T),
		out:  make(chan T, capacity),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

// C returns the receive side. Consumers range over it until it is closed.
func (q *Queue[T]) C() <-chan T { return q.out }

// Send enqueues v. It returns once the pump accepts the element, regardless
// of consumer progress. After Close it is a no-op.
func (q *Queue[T]) Send(v T) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.in <- v:
	case <-q.done:
	}
}

// Close terminates the stream. Elements already in the consumer channel stay
// readable; a backlog the consumer never drained is discarded.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}

// pump moves elements from the producer side into the consumer channel,
// holding whatever does not fit yet in the backlog. The in channel always
// stays receivable, which is what keeps Send independent of the consumer.
func (q *Queue[T]) pump() {
	var backlog []T
	for {
		var out chan T
		var head T
		if len(backlog) > 0 {
			out = q.out
			head = backlog[0]
		}

		select {
		case <-q.done:
			close(q.out)
			return
		case v := <-q.in:
			if len(backlog) == 0 {
				// Fast path while the consumer keeps up.
				select {
				case q.out <- v:
					continue
				default:
				}
			}
			backlog = append(backlog, v)
		case out <- head:
			backlog = backlog[1:]
		}
	}
}
