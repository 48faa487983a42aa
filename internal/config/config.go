// Package config defines the service configuration and its layered loader.
package config

import (
	"context"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Event transports.
const (
	TransportMemory = "memory"
	TransportNATS   = "nats"
)

// Analytics backends for the popularity ranking and the event search index.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MaxActiveLoans caps concurrently active loans per member.
	MaxActiveLoans int `koanf:"max_active_loans"`
	// LoanDurationDays is added to borrowedAt to compute the due date.
	LoanDurationDays int `koanf:"loan_duration_days"`

	// StoreDriver selects the relational store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// EventsEnabled turns loan event emission on or off globally.
	EventsEnabled bool `koanf:"events_enabled"`
	// EventsTransport selects the event stream: memory or nats.
	EventsTransport string `koanf:"events_transport"`

	// QueuePartitions is the number of in-process stream partitions and ingest workers.
	QueuePartitions int `koanf:"queue_partitions"`
	// QueueSize bounds each partition's buffer.
	QueueSize int `koanf:"queue_size"`

	NATSURL           string `koanf:"nats_url"`
	NATSStream        string `koanf:"nats_stream"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`
	NATSDurable       string `koanf:"nats_durable"`

	// RankingBackend selects where derived views live: memory or redis.
	RankingBackend string `koanf:"ranking_backend"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`

	PopularityKey string        `koanf:"popularity_key"`
	PopularityTTL time.Duration `koanf:"popularity_ttl"`
	SearchPrefix  string        `koanf:"search_prefix"`

	// DedupePopularity guards popularity increments with a first-seen eventId check.
	DedupePopularity bool `koanf:"dedupe_popularity"`
	DedupeSize       int  `koanf:"dedupe_size"`

	// MaxTopLimit caps the limit of analytics ranking queries.
	MaxTopLimit int `koanf:"max_top_limit"`
}

// New returns a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8080",
		MaxActiveLoans:    3,
		LoanDurationDays:  14,
		StoreDriver:       StoreMemory,
		StoreDSN:          "file:library.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite",
		EventsEnabled:     true,
		EventsTransport:   TransportMemory,
		QueuePartitions:   4,
		QueueSize:         10_000,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSStream:        "LIBRARY_LOAN_EVENTS",
		NATSSubjectPrefix: "library.loan-events.",
		NATSDurable:       "library-analytics",
		RankingBackend:    BackendMemory,
		RedisAddr:         "localhost:6379",
		PopularityKey:     "analytics:top-books",
		PopularityTTL:     24 * time.Hour,
		SearchPrefix:      "analytics:loan-events",
		DedupeSize:        100_000,
		MaxTopLimit:       100,
	}
}
