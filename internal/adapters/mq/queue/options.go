package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithPartitions sets the number of key partitions.
func WithPartitions(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.partitions = n
		}
	}
}

// WithCapacity sets the buffered capacity of each partition.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}
