package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/booklend/internal/domain/events"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/metrics"
)

// DefaultPrefix namespaces every key of the index.
const DefaultPrefix = "analytics:loan-events"

// RedisIndex stores each event as a JSON string under {prefix}:doc:{eventId}
// and maintains sorted sets scored by occurredAt for the three views.
type RedisIndex struct {
	client redis.Cmdable
	prefix string
}

var _ Index = (*RedisIndex)(nil)

// NewRedisIndex builds an index over client; an empty prefix keeps the default.
func NewRedisIndex(client redis.Cmdable, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) docKey(id string) string { return r.prefix + ":doc:" + id }
func (r *RedisIndex) allKey() string          { return r.prefix + ":idx:all" }

func (r *RedisIndex) bookKey(id int64) string {
	return r.prefix + ":idx:book:" + strconv.FormatInt(id, 10)
}

func (r *RedisIndex) memberKey(id int64) string {
	return r.prefix + ":idx:member:" + strconv.FormatInt(id, 10)
}

// indexKeys lists the sorted sets ev belongs to.
func (r *RedisIndex) indexKeys(ev model.LoanEvent) []string {
	keys := []string{r.allKey()}
	if ev.BookID != nil {
		keys = append(keys, r.bookKey(*ev.BookID))
	}
	if ev.MemberID != nil {
		keys = append(keys, r.memberKey(*ev.MemberID))
	}
	return keys
}

// Upsert writes the document and its index entries. A previous version of
// the same event is first removed from sets it no longer belongs to.
func (r *RedisIndex) Upsert(ctx context.Context, ev model.LoanEvent) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency("search_upsert", metrics.Since(start)) }()

	payload, err := events.Encode(ev)
	if err != nil {
		return fmt.Errorf("search upsert %s: %w", ev.EventID, err)
	}

	var stale []string
	prev, err := r.client.Get(ctx, r.docKey(ev.EventID)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return r.fail("upsert", err)
	default:
		if old, _, derr := events.Decode(prev); derr == nil {
			keep := make(map[string]bool)
			for _, k := range r.indexKeys(ev) {
				keep[k] = true
			}
			for _, k := range r.indexKeys(old) {
				if !keep[k] {
					stale = append(stale, k)
				}
			}
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range stale {
			pipe.ZRem(ctx, k, ev.EventID)
		}
		pipe.Set(ctx, r.docKey(ev.EventID), payload, 0)
		z := redis.Z{Score: score(ev), Member: ev.EventID}
		for _, k := range r.indexKeys(ev) {
			pipe.ZAdd(ctx, k, z)
		}
		return nil
	})
	if err != nil {
		return r.fail("upsert", err)
	}
	return nil
}

func (r *RedisIndex) FindAll(ctx context.Context, page, size int) (model.Page[model.LoanEvent], error) {
	return r.find(ctx, r.allKey(), page, size)
}

func (r *RedisIndex) FindByBook(ctx context.Context, bookID int64, page, size int) (model.Page[model.LoanEvent], error) {
	return r.find(ctx, r.bookKey(bookID), page, size)
}

func (r *RedisIndex) FindByMember(ctx context.Context, memberID int64, page, size int) (model.Page[model.LoanEvent], error) {
	return r.find(ctx, r.memberKey(memberID), page, size)
}

func (r *RedisIndex) find(ctx context.Context, key string, page, size int) (model.Page[model.LoanEvent], error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency("search_find", metrics.Since(start)) }()

	total, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return model.Page[model.LoanEvent]{}, r.fail("find", err)
	}
	from, to := bounds(page, size)
	out := emptyPage(page, size, total)
	if int64(from) >= total {
		return out, nil
	}

	ids, err := r.client.ZRevRange(ctx, key, int64(from), int64(to-1)).Result()
	if err != nil {
		return model.Page[model.LoanEvent]{}, r.fail("find", err)
	}
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(id)
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return model.Page[model.LoanEvent]{}, r.fail("find", err)
	}
	for _, d := range docs {
		raw, ok := d.(string)
		if !ok {
			continue
		}
		ev, _, derr := events.Decode([]byte(raw))
		if derr != nil {
			continue
		}
		out.Items = append(out.Items, ev)
	}
	return out, nil
}

func (r *RedisIndex) fail(op string, err error) error {
	metrics.RecordErrorByComponent("search", "redis")
	return fmt.Errorf("search %s: %w", op, err)
}
