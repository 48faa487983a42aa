// Package service wires the lending service and the analytics pipeline from
// configuration and owns their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/okian/booklend/internal/adapters/mq/natsjs"
	eventqueue "github.com/okian/booklend/internal/adapters/mq/queue"
	workerpool "github.com/okian/booklend/internal/adapters/mq/worker"
	"github.com/okian/booklend/internal/adapters/popularity"
	repository "github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/adapters/repository/memory"
	"github.com/okian/booklend/internal/adapters/repository/sqlstore"
	"github.com/okian/booklend/internal/adapters/search"
	"github.com/okian/booklend/internal/config"
	"github.com/okian/booklend/internal/domain/analytics"
	"github.com/okian/booklend/internal/domain/catalog"
	"github.com/okian/booklend/internal/domain/dedupe"
	"github.com/okian/booklend/internal/domain/events"
	"github.com/okian/booklend/internal/domain/ingest"
	"github.com/okian/booklend/internal/domain/lending"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// ErrNotStarted is returned by accessors used before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every component of the process.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Authoritative state
	store     repository.Store
	ownsStore bool

	// Derived views
	redis   *redis.Client
	ranking popularity.Store
	index   search.Index
	deduper dedupe.Deduper

	// Transport
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	nc        *nats.Conn
	transport *natsjs.Transport

	catalog   *catalog.Service
	lending   *lending.Service
	analytics *analytics.Service

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects the relational store instead of opening one from config.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// New constructs a Service from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the stores, starts the event transport and builds the domain
// services. Components opened before a failure are closed again.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}
	s.logger.Info(ctx, "starting library service...")

	defer func() {
		if err != nil {
			s.closeLocked(ctx)
		}
	}()

	if err := s.openStore(ctx); err != nil {
		return err
	}
	if err := s.openViews(ctx); err != nil {
		return err
	}

	var ingestOpts []ingest.Option
	if s.cfg.DedupePopularity {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
		ingestOpts = append(ingestOpts, ingest.WithDeduper(s.deduper))
	}
	ingestor := ingest.New(s.ranking, s.index, ingestOpts...)

	publisher, err := s.startTransport(ctx, ingestor)
	if err != nil {
		return err
	}
	emitter := events.NewEmitter(publisher, events.WithEnabled(s.cfg.EventsEnabled))

	s.catalog = catalog.NewService(s.store)
	s.lending = lending.NewService(s.store,
		lending.WithEmitter(emitter),
		lending.WithMaxActiveLoans(s.cfg.MaxActiveLoans),
		lending.WithLoanDurationDays(s.cfg.LoanDurationDays),
	)
	s.analytics = analytics.NewService(s.ranking, s.index, s.store)

	s.started = true
	s.logger.Info(ctx, "library service started",
		logger.String("store", s.cfg.StoreDriver),
		logger.String("transport", s.cfg.EventsTransport),
		logger.String("views", s.cfg.RankingBackend),
		logger.Bool("eventsEnabled", s.cfg.EventsEnabled),
		logger.Bool("dedupePopularity", s.cfg.DedupePopularity),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	switch s.cfg.StoreDriver {
	case config.StoreSQLite, config.StorePostgres:
		store, err := sqlstore.Open(ctx, sqlstore.Dialect(s.cfg.StoreDriver), s.cfg.StoreDSN)
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.cfg.StoreDriver, err)
		}
		s.store = store
	default:
		s.store = memory.New()
	}
	s.ownsStore = true
	return nil
}

func (s *Service) openViews(ctx context.Context) error {
	if s.cfg.RankingBackend != config.BackendRedis {
		s.ranking = popularity.NewTreapStore(popularity.WithTTL(s.cfg.PopularityTTL))
		s.index = search.NewMemoryIndex()
		return nil
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis %s: %w", s.cfg.RedisAddr, err)
	}
	s.ranking = popularity.NewRedisStore(s.redis,
		popularity.WithKey(s.cfg.PopularityKey),
		popularity.WithRedisTTL(s.cfg.PopularityTTL),
	)
	s.index = search.NewRedisIndex(s.redis, s.cfg.SearchPrefix)
	return nil
}

// startTransport connects the emitter side of the stream to the ingestor.
func (s *Service) startTransport(ctx context.Context, ingestor *ingest.Ingestor) (events.Publisher, error) {
	if s.cfg.EventsTransport == config.TransportNATS {
		nc, err := nats.Connect(s.cfg.NATSURL, nats.Name("booklend"))
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", s.cfg.NATSURL, err)
		}
		s.nc = nc
		s.transport = natsjs.New(nc,
			natsjs.WithStream(s.cfg.NATSStream),
			natsjs.WithSubjectPrefix(s.cfg.NATSSubjectPrefix),
			natsjs.WithDurable(s.cfg.NATSDurable),
		)
		if err := s.transport.Start(ctx); err != nil {
			return nil, err
		}
		if err := s.transport.Subscribe(ctx, ingestor); err != nil {
			return nil, err
		}
		return s.transport, nil
	}

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithPartitions(s.cfg.QueuePartitions),
		eventqueue.WithCapacity(s.cfg.QueueSize),
	)
	s.pool = workerpool.NewPool(s.queue, ingestor)
	// ingest outlives request contexts; Stop ends it by closing the queue
	s.pool.Start(context.WithoutCancel(ctx))
	return s.queue, nil
}

// Stop drains in-flight events and releases every connection.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping library service...")
	s.closeLocked(ctx)
	s.started = false
	s.logger.Info(ctx, "library service stopped")
}

func (s *Service) closeLocked(ctx context.Context) {
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "ingest workers did not drain", logger.Error(err))
		}
		s.pool = nil
	} else if s.queue != nil {
		_ = s.queue.Close()
	}
	s.queue = nil

	if s.transport != nil {
		if err := s.transport.Close(ctx); err != nil {
			s.logger.Warn(ctx, "closing nats transport", logger.Error(err))
		}
		s.transport = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn(ctx, "closing redis client", logger.Error(err))
		}
		s.redis = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing store", logger.Error(err))
		}
		// an injected store stays; one opened from config is reopened by Start
		if s.ownsStore {
			s.store = nil
			s.ownsStore = false
		}
	}
}

// Catalog returns the catalog service, or nil before Start.
func (s *Service) Catalog() *catalog.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Lending returns the lending service, or nil before Start.
func (s *Service) Lending() *lending.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lending
}

// Analytics returns the analytics service, or nil before Start.
func (s *Service) Analytics() *analytics.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics
}

// HealthChecks returns a probe per external dependency in use.
func (s *Service) HealthChecks() map[string]func(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checks := map[string]func(ctx context.Context) error{
		"service": func(context.Context) error {
			if !s.isStarted() {
				return ErrNotStarted
			}
			return nil
		},
	}
	if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		checks["store"] = pinger.Ping
	}
	if client := s.redis; client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if nc := s.nc; nc != nil {
		checks["nats"] = func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection %s", status)
			}
			return nil
		}
	}
	return checks
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"storeDriver":      s.cfg.StoreDriver,
		"eventsTransport":  s.cfg.EventsTransport,
		"rankingBackend":   s.cfg.RankingBackend,
		"eventsEnabled":    s.cfg.EventsEnabled,
		"dedupePopularity": s.cfg.DedupePopularity,
	}
	if s.queue != nil {
		queueLen := s.queue.Len()
		stats["queuePartitions"] = s.queue.Partitions()
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	if s.deduper != nil {
		stats["dedupeSize"] = s.deduper.Size()
	}
	return stats
}
