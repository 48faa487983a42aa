package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/booklend/internal/adapters/mq/queue"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler consumes one payload. It has no error result: every message is
// acknowledged once Handle returns.
type Handler interface {
	Handle(ctx context.Context, payload []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) { f(ctx, payload) }

// Source is the partitioned stream workers read from.
type Source interface {
	Partition(i int) <-chan queue.Message
	Partitions() int
}

// acker is implemented by sources that track consumption.
type acker interface {
	Ack()
}

// Worker processes messages from one partition.
type Worker interface {
	// Run consumes until the partition closes, ctx is cancelled or Shutdown
	// is called.
	Run(ctx context.Context)

	// Shutdown stops the worker after the message in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker consumes one partition sequentially, which preserves the
// per-key order the queue guarantees.
type InMemoryWorker struct {
	messages <-chan queue.Message
	ack      func()
	handler  Handler
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker over a partition channel.
func NewInMemoryWorker(messages <-chan queue.Message, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		messages: messages,
		ack:      func() {},
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case msg, ok := <-w.messages:
			if !ok {
				return
			}
			w.process(ctx, msg)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, msg queue.Message) {
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)
	defer w.ack()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "handler panicked",
				logger.String("key", msg.Key),
				logger.Any("panic", r))
		}
	}()

	w.handler.Handle(ctx, msg.Payload)
}

// Pool runs one worker per queue partition.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	logger  logger.Logger
}

// NewPool creates a worker for each partition of source.
func NewPool(source Source, handler Handler) *Pool {
	n := source.Partitions()
	pool := &Pool{
		workers: make([]*InMemoryWorker, n),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}

	ack := func() {}
	if a, ok := source.(acker); ok {
		ack = a.Ack
	}
	for i := 0; i < n; i++ {
		w := NewInMemoryWorker(source.Partition(i), handler, WithName("worker-"+strconv.Itoa(i)))
		w.ack = ack
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(n)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Shutdown closes the source and waits for every worker to drain what was
// already buffered, bounded by ctx and the pool timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-drainCtx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			timedOut = true
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool drain: %w", drainCtx.Err())
	}
	return nil
}
