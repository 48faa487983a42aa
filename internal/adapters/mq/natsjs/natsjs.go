// Package natsjs carries loan events over NATS JetStream: subjects are
// {prefix}{loanId} so one loan's events share a subject and stay ordered.
package natsjs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// Defaults for the stream topology.
const (
	DefaultStream        = "LIBRARY_LOAN_EVENTS"
	DefaultSubjectPrefix = "library.loan-events."
	DefaultDurable       = "library-analytics"

	defaultAckWait       = 30 * time.Second
	defaultMaxAckPending = 1024
	unkeyedSubject       = "unkeyed"
)

// ErrNotRunning is returned when publishing before Start or after Close.
var ErrNotRunning = errors.New("nats transport not running")

// Handler consumes one payload.
type Handler interface {
	Handle(ctx context.Context, payload []byte)
}

// Option applies a configuration option to the Transport.
type Option func(*Transport)

// WithStream sets the stream name.
func WithStream(name string) Option {
	return func(t *Transport) {
		if name != "" {
			t.stream = name
		}
	}
}

// WithSubjectPrefix sets the prefix every event subject starts with.
func WithSubjectPrefix(prefix string) Option {
	return func(t *Transport) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithDurable sets the durable consumer and queue group name.
func WithDurable(name string) Option {
	return func(t *Transport) {
		if name != "" {
			t.durable = name
		}
	}
}

// WithAckWait sets how long the server waits for an ack before redelivery.
func WithAckWait(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.ackWait = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// Transport publishes and consumes loan events on one JetStream stream.
type Transport struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	stream  string
	prefix  string
	durable string
	ackWait time.Duration
	logger  logger.Logger

	mu      sync.RWMutex
	sub     *nats.Subscription
	running bool
}

// New builds a transport over an established connection. The caller owns conn.
func New(conn *nats.Conn, opts ...Option) *Transport {
	t := &Transport{
		conn:    conn,
		stream:  DefaultStream,
		prefix:  DefaultSubjectPrefix,
		durable: DefaultDurable,
		ackWait: defaultAckWait,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Get().Named("nats")
	}
	return t
}

// Start opens the JetStream context and creates the stream if missing.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	js, err := t.conn.JetStream(nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
		metrics.RecordErrorByComponent("nats", "publish_ack")
		t.logger.Warn(ctx, "loan event publish not acknowledged",
			logger.String("subject", msg.Subject),
			logger.Error(err))
	}))
	if err != nil {
		return err
	}
	t.js = js
	if err := t.ensureStream(); err != nil {
		return err
	}
	t.running = true
	t.logger.Info(ctx, "jetstream transport started",
		logger.String("stream", t.stream),
		logger.String("subjects", t.prefix+">"))
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(&nats.StreamConfig{
		Name:              t.stream,
		Subjects:          []string{t.prefix + ">"},
		Retention:         nats.LimitsPolicy,
		MaxMsgsPerSubject: -1,
	})
	return err
}

// Subject returns the subject events of key are published on.
func (t *Transport) Subject(key string) string {
	if key == "" {
		key = unkeyedSubject
	}
	return t.prefix + key
}

// Publish hands payload to JetStream without waiting for the server ack.
// Late ack failures surface through the async error handler.
func (t *Transport) Publish(ctx context.Context, key string, payload []byte) error {
	t.mu.RLock()
	js, running := t.js, t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := js.PublishAsync(t.Subject(key), payload)
	return err
}

// Subscribe attaches handler to the durable queue group. Every delivery is
// acked after handler returns, whatever the outcome. Handlers see ctx values
// but not its cancellation, so messages drained by Close still complete.
func (t *Transport) Subscribe(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNotRunning
	}
	if t.sub != nil {
		return errors.New("nats transport already subscribed")
	}
	sub, err := t.js.QueueSubscribe(t.prefix+">", t.durable, func(msg *nats.Msg) {
		t.deliver(ctx, handler, msg.Data, msg.Ack)
	},
		nats.ManualAck(),
		nats.Durable(t.durable),
		nats.AckWait(t.ackWait),
		nats.MaxAckPending(defaultMaxAckPending),
		nats.DeliverAll())
	if err != nil {
		return err
	}
	t.sub = sub
	return nil
}

func (t *Transport) deliver(ctx context.Context, handler Handler, data []byte, ack func(...nats.AckOpt) error) {
	// the subscription outlives ctx; Close ends it by draining
	ctx = context.WithoutCancel(ctx)
	metrics.AddWorkerActive(1)
	defer metrics.AddWorkerActive(-1)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			t.logger.Error(ctx, "handler panicked", logger.Any("panic", r))
		}
		if err := ack(); err != nil {
			metrics.RecordErrorByComponent("nats", "ack")
			t.logger.Warn(ctx, "nats ack failed", logger.Error(err))
		}
	}()
	handler.Handle(ctx, data)
}

// Close drains the subscription and waits for pending async publishes.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	t.running = false
	var err error
	if t.sub != nil {
		err = t.sub.Drain()
		t.sub = nil
	}
	select {
	case <-t.js.PublishAsyncComplete():
	case <-ctx.Done():
		t.logger.Warn(ctx, "pending publishes abandoned", logger.Int("pending", t.js.PublishAsyncPending()))
	}
	return err
}
