package stream

import (
	"sync"

	"github.com/oklog/ulid/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Broker distributes published values to every attached consumer exactly
// once. Consumers attach and detach from arbitrary goroutines while
// publishing originates elsewhere; a single mutex makes registry mutation
// and delivery mutually exclusive, so a detach racing a publish can neither
// drop nor duplicate a delivery to the remaining consumers.
//
// Streams are forward-only: a consumer attached after a value was published
// never sees it. Each consumer gets its own unbounded Queue, so a slow
// reader delays only itself and still receives everything published while
// attached.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   *orderedmap.OrderedMap[string, *Queue[T]]
	buffer int
	closed bool
}

// NewBroker creates a Broker. buffer sizes each consumer's channel; delivery
// beyond it spills into the consumer's backlog rather than being dropped.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker[T]{
		subs:   orderedmap.New[string, *Queue[T]](),
		buffer: buffer,
	}
}

// Subscribe attaches a new consumer and returns its handle and receive
// channel. The handle is an explicit value compared and removed by value,
// not by channel identity. After Close, the returned channel ends
// immediately.
func (b *Broker[T]) Subscribe() (string, <-chan T) {
	id := ulid.Make().String()
	q := NewQueue[T](b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		q.Close()
		return id, q.C()
	}
	b.subs.Set(id, q)
	return id, q.C()
}

// Unsubscribe detaches the consumer with the given handle and ends its
// stream. Unknown handles are a no-op. Delivery to other consumers is
// unaffected.
func (b *Broker[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.subs.Get(id)
	if !ok {
		return
	}
	b.subs.Delete(id)
	q.Close()
}

// Publish delivers v to every currently-attached consumer exactly once. It
// never blocks on a slow consumer: the value lands in that consumer's queue
// and waits there.
func (b *Broker[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Send(v)
	}
}

// Len returns the number of attached consumers.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs.Len()
}

// Close terminates every open stream and rejects future publishes.
// Subsequent Subscribe calls receive an already-ended stream.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.Close()
	}
	b.subs = orderedmap.New[string, *Queue[T]]()
}
