// Package queue is the in-process event stream: a set of bounded partitions
// selected by hashing the message key, so messages sharing a key are
// consumed in publish order.
package queue

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/booklend/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultPartitions = 4
	defaultCapacity   = 10000
)

// Message is one keyed payload on the stream.
type Message struct {
	Key     string
	Payload []byte
}

// Queue provides non-blocking publish and per-partition consumption.
type Queue interface {
	// Publish appends payload to the partition owning key. It never blocks.
	Publish(ctx context.Context, key string, payload []byte) error

	// Partition returns the receive side of partition i. The channel is
	// closed when the queue is closed.
	Partition(i int) <-chan Message

	// Partitions returns the partition count.
	Partitions() int

	// Len returns the number of buffered messages across partitions.
	Len() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per partition.
type InMemoryQueue struct {
	parts      []chan Message
	partitions int
	capacity   int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new partitioned queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		partitions: defaultPartitions,
		capacity:   defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.parts = make([]chan Message, q.partitions)
	for i := range q.parts {
		q.parts[i] = make(chan Message, q.capacity)
	}

	metrics.UpdateQueueCapacity(q.partitions * q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// PartitionFor returns the partition index of key.
func (q *InMemoryQueue) PartitionFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(q.partitions))
}

func (q *InMemoryQueue) Publish(ctx context.Context, key string, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.parts[q.PartitionFor(key)] <- Message{Key: key, Payload: payload}:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) Partition(i int) <-chan Message {
	return q.parts[i]
}

func (q *InMemoryQueue) Partitions() int { return q.partitions }

// Ack records that a message taken from a partition was processed.
func (q *InMemoryQueue) Ack() {
	metrics.RecordQueueDequeue()
	q.updateGauges()
}

func (q *InMemoryQueue) Len() int {
	n := 0
	for _, p := range q.parts {
		n += len(p)
	}
	return n
}

func (q *InMemoryQueue) updateGauges() {
	size := q.Len()
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.partitions*q.capacity))
}

// Close stops accepting messages. Buffered messages remain readable until
// each partition drains.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, p := range q.parts {
		close(p)
	}
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
