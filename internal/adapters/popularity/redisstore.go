package popularity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/metrics"
)

// DefaultKey is the sorted set holding the ranking.
const DefaultKey = "analytics:top-books"

// RedisStore keeps the ranking in a Redis sorted set. Increment and the
// expiry refresh are sent as one MULTI/EXEC block.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKey sets the sorted set key.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisTTL sets the sliding expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore builds a ranking over client.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, key: DefaultKey, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment runs ZINCRBY key 1 bookId followed by EXPIRE key ttl.
func (s *RedisStore) Increment(ctx context.Context, bookID int64) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency("popularity_increment", metrics.Since(start)) }()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZIncrBy(ctx, s.key, 1, strconv.FormatInt(bookID, 10))
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		metrics.RecordErrorByComponent("popularity", "redis")
		return fmt.Errorf("popularity increment book %d: %w", bookID, err)
	}
	return nil
}

// TopN runs ZREVRANGE key 0 limit-1 WITHSCORES.
func (s *RedisStore) TopN(ctx context.Context, limit int) ([]model.BookScore, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency("popularity_top", metrics.Since(start)) }()

	if limit <= 0 {
		return []model.BookScore{}, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		metrics.RecordErrorByComponent("popularity", "redis")
		return nil, fmt.Errorf("popularity top %d: %w", limit, err)
	}

	out := make([]model.BookScore, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.BookScore{BookID: id, BorrowCount: z.Score})
	}
	return out, nil
}
