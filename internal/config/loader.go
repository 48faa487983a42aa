package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "LIBRARY_"
	envFileVar = "LIBRARY_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if LIBRARY_CONFIG is set
//  3. env (prefix LIBRARY_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LIBRARY_MAX_ACTIVE_LOANS -> max_active_loans (flat keys)
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxActiveLoans < 1 || c.MaxActiveLoans > 50:
		return fmt.Errorf("%w: max_active_loans must be in [1,50], got %d", ErrInvalidConfig, c.MaxActiveLoans)
	case c.LoanDurationDays < 1 || c.LoanDurationDays > 365:
		return fmt.Errorf("%w: loan_duration_days must be in [1,365], got %d", ErrInvalidConfig, c.LoanDurationDays)
	case c.QueuePartitions < 1:
		return fmt.Errorf("%w: queue_partitions must be positive", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxTopLimit < 1:
		return fmt.Errorf("%w: max_top_limit must be positive", ErrInvalidConfig)
	case c.PopularityTTL <= 0:
		return fmt.Errorf("%w: popularity_ttl must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch c.EventsTransport {
	case TransportMemory, TransportNATS:
	default:
		return fmt.Errorf("%w: unknown events_transport %q", ErrInvalidConfig, c.EventsTransport)
	}
	switch c.RankingBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown ranking_backend %q", ErrInvalidConfig, c.RankingBackend)
	}
	return nil
}
