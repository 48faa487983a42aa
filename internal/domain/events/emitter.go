// Package events turns committed lending transitions into LoanEvent records,
// encodes them for the stream and publishes them best-effort.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// Publisher hands an encoded event to the stream. key orders events of the
// same loan when the transport partitions by key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Emitter publishes loan events and swallows every failure.
type Emitter struct {
	publisher Publisher
	enabled   bool
	newID     func() string
	now       func() time.Time
	logger    logger.Logger
}

// Option applies a configuration option to the Emitter.
type Option func(*Emitter)

// WithEnabled switches emission on or off.
func WithEnabled(enabled bool) Option {
	return func(e *Emitter) { e.enabled = enabled }
}

// WithIDGenerator overrides the event id source.
func WithIDGenerator(gen func() string) Option {
	return func(e *Emitter) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithClock overrides the clock used for occurredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmitter builds an emitter over publisher.
func NewEmitter(publisher Publisher, opts ...Option) *Emitter {
	e := &Emitter{
		publisher: publisher,
		enabled:   true,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("events")
	}
	return e
}

// Emit publishes a t event for loan. It never returns an error and never
// panics into the caller.
func (e *Emitter) Emit(ctx context.Context, t model.EventType, loan *model.Loan) {
	if !e.enabled || e.publisher == nil || loan == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordEventPublishFailure(string(t))
			e.logger.Warn(ctx, "loan event publish panicked",
				logger.String("type", string(t)),
				logger.Int64("loanId", loan.ID),
				logger.Any("panic", r))
		}
	}()

	ev := model.NewLoanEvent(e.newID(), t, loan, e.now().UTC())
	payload, err := Encode(ev)
	if err == nil {
		err = e.publisher.Publish(ctx, ev.Key(), payload)
	}
	if err != nil {
		metrics.RecordEventPublishFailure(string(t))
		e.logger.Warn(ctx, "failed to publish loan event",
			logger.String("type", string(t)),
			logger.Int64("loanId", loan.ID),
			logger.String("eventId", ev.EventID),
			logger.Error(err))
		return
	}
	metrics.RecordEventPublished(string(t))
	e.logger.Debug(ctx, "loan event published",
		logger.String("type", string(t)),
		logger.Int64("loanId", loan.ID),
		logger.String("eventId", ev.EventID))
}
