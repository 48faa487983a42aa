// Package ingest consumes serialized loan events and fans them out into the
// popularity ranking and the event search index.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/booklend/internal/domain/dedupe"
	"github.com/okian/booklend/internal/domain/events"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// Ranking is the write side of the popularity ranking.
type Ranking interface {
	Increment(ctx context.Context, bookID int64) error
}

// Indexer is the write side of the event search index.
type Indexer interface {
	Upsert(ctx context.Context, ev model.LoanEvent) error
}

// Ingestor applies one message at a time. Handle never reports failure so
// that transports acknowledge every delivery.
type Ingestor struct {
	ranking Ranking
	index   Indexer
	deduper dedupe.Deduper
	newID   func() string
	logger  logger.Logger
}

// Option applies a configuration option to the Ingestor.
type Option func(*Ingestor)

// WithDeduper makes popularity increments conditional on a first-seen
// eventId. Without it every redelivered BORROWED event is counted again.
func WithDeduper(d dedupe.Deduper) Option {
	return func(i *Ingestor) { i.deduper = d }
}

// WithIDGenerator overrides the id given to events that arrive without one.
func WithIDGenerator(gen func() string) Option {
	return func(i *Ingestor) {
		if gen != nil {
			i.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// New builds an ingestor writing to ranking and index.
func New(ranking Ranking, index Indexer, opts ...Option) *Ingestor {
	i := &Ingestor{
		ranking: ranking,
		index:   index,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logger.Get().Named("ingest")
	}
	return i
}

// Handle processes one payload.
func (i *Ingestor) Handle(ctx context.Context, payload []byte) {
	start := time.Now()
	defer func() { metrics.RecordWorkerProcessingLatency(metrics.Since(start)) }()

	ev, degraded, err := events.Decode(payload)
	if err != nil {
		reason := "malformed"
		switch {
		case errors.Is(err, events.ErrMissingType):
			reason = "missing_type"
		case errors.Is(err, events.ErrUnknownType):
			reason = "unknown_type"
		}
		metrics.RecordEventIngestFailure(reason)
		metrics.RecordErrorByComponent("ingest", reason)
		i.logger.Error(ctx, "dropping unparseable loan event",
			logger.String("reason", reason),
			logger.Int("bytes", len(payload)),
			logger.Error(err))
		return
	}
	if len(degraded) > 0 {
		i.logger.Warn(ctx, "loan event fields degraded to null",
			logger.String("eventId", ev.EventID),
			logger.String("fields", strings.Join(degraded, ",")))
	}
	if ev.EventID == "" {
		ev.EventID = i.newID()
	}

	if ev.Type == model.EventBorrowed {
		i.countBorrow(ctx, ev)
	}

	if err := i.index.Upsert(ctx, ev); err != nil {
		metrics.RecordEventIngestFailure("search_upsert")
		metrics.RecordErrorByComponent("ingest", "search_upsert")
		i.logger.Error(ctx, "failed to index loan event",
			logger.String("eventId", ev.EventID),
			logger.Error(err))
	} else {
		metrics.RecordSearchUpsert()
	}
	metrics.RecordEventIngested(string(ev.Type))
}

func (i *Ingestor) countBorrow(ctx context.Context, ev model.LoanEvent) {
	if ev.BookID == nil {
		i.logger.Warn(ctx, "borrowed event without bookId, popularity not updated",
			logger.String("eventId", ev.EventID))
		return
	}
	if i.deduper != nil && i.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		i.logger.Debug(ctx, "duplicate borrowed event skipped for popularity",
			logger.String("eventId", ev.EventID))
		return
	}
	if err := i.ranking.Increment(ctx, *ev.BookID); err != nil {
		if i.deduper != nil {
			i.deduper.Unrecord(ctx, ev.EventID)
		}
		metrics.RecordEventIngestFailure("popularity_increment")
		metrics.RecordErrorByComponent("ingest", "popularity_increment")
		i.logger.Error(ctx, "failed to increment popularity",
			logger.String("eventId", ev.EventID),
			logger.Int64("bookId", *ev.BookID),
			logger.Error(err))
		return
	}
	metrics.RecordPopularityIncrement()
}
