package device

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrQueueClosed is returned by queue operations after Close
	ErrQueueClosed = errors.New("queue closed")
	// ErrUnknownStream is returned when a stream name is not in the topology
	ErrUnknownStream = errors.New("unknown stream")
)

// Queue is a bounded FIFO between the device and the host. A non-blocking
// queue drops (and closes) its oldest message when full; a blocking queue
// makes the sender wait.
type Queue struct {
	name     string
	maxSize  int
	blocking bool

	mu      sync.Mutex
	items   []Message
	closed  bool
	changed chan struct{}
	dropped int64
}

// NewQueue creates a queue holding at most maxSize messages
func NewQueue(name string, maxSize int, blocking bool) *Queue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Queue{
		name:     name,
		maxSize:  maxSize,
		blocking: blocking,
		items:    make([]Message, 0, maxSize),
		changed:  make(chan struct{}),
	}
}

func (q *Queue) Name() string { return q.name }

// notify wakes every waiter. Caller holds mu.
func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Send enqueues msg, waiting for room only on blocking queues
func (q *Queue) Send(ctx context.Context, msg Message) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return errors.Wrapf(ErrQueueClosed, "send to %s", q.name)
		}
		if len(q.items) < q.maxSize || !q.blocking {
			if len(q.items) >= q.maxSize {
				oldest := q.items[0]
				q.items = q.items[1:]
				q.dropped++
				_ = oldest.Close()
			}
			q.items = append(q.items, msg)
			q.notify()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Get blocks until a message is available, the queue closes or ctx ends
func (q *Queue) Get(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.notify()
			q.mu.Unlock()
			return msg, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, errors.Wrapf(ErrQueueClosed, "get from %s", q.name)
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryGet returns the oldest message without waiting
func (q *Queue) TryGet() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.notify()
	return msg, true
}

// Len returns the number of queued messages
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many messages were discarded because the queue was full
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes all waiters and releases queued messages. Pending messages
// are discarded; Get returns ErrQueueClosed once the queue is empty.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for _, msg := range q.items {
		_ = msg.Close()
	}
	q.items = nil
	q.notify()
	return nil
}
