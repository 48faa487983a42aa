package popularity

import (
	"context"
	"sync"
	"time"

	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/metrics"
)

// TreapStore is an in-memory Store. Entries are kept in a treap ordered by
// score desc then book id asc, so an in-order walk yields the ranking.
type TreapStore struct {
	mu        sync.Mutex
	root      *node
	scores    map[int64]float64
	ttl       time.Duration
	expiresAt time.Time
	now       func() time.Time
	seed      uint64
}

var _ Store = (*TreapStore)(nil)

// TreapOption applies a configuration option to the TreapStore.
type TreapOption func(*TreapStore)

// WithTTL sets the sliding expiry.
func WithTTL(ttl time.Duration) TreapOption {
	return func(s *TreapStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) TreapOption {
	return func(s *TreapStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTreapStore builds an empty in-memory ranking.
func NewTreapStore(opts ...TreapOption) *TreapStore {
	s := &TreapStore{
		scores: make(map[int64]float64),
		ttl:    DefaultTTL,
		now:    time.Now,
		seed:   0x9e3779b97f4a7c15,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type node struct {
	id    int64
	score float64
	prio  uint64
	left  *node
	right *node
}

// less reports whether (aScore, aID) ranks before (bScore, bID).
func less(aScore float64, aID int64, bScore float64, bID int64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	return y
}

func insert(n *node, id int64, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, id int64, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case n.id == id && n.score == score:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]model.BookScore) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, model.BookScore{BookID: n.id, BorrowCount: n.score})
	}
	collectTopN(n.right, limit, out)
}

// nextPrio is a xorshift generator; priorities only need to be well spread.
func (s *TreapStore) nextPrio() uint64 {
	s.seed ^= s.seed << 13
	s.seed ^= s.seed >> 7
	s.seed ^= s.seed << 17
	return s.seed
}

// expireLocked drops every entry once the ttl has elapsed.
func (s *TreapStore) expireLocked(now time.Time) {
	if !s.expiresAt.IsZero() && !now.Before(s.expiresAt) {
		s.root = nil
		s.scores = make(map[int64]float64)
		s.expiresAt = time.Time{}
	}
}

// Increment adds one to bookID's score.
func (s *TreapStore) Increment(ctx context.Context, bookID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency("popularity_increment", metrics.Since(start)) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)

	score, ok := s.scores[bookID]
	if ok {
		s.root = deleteNode(s.root, bookID, score)
	}
	score++
	s.scores[bookID] = score
	s.root = insert(s.root, bookID, score, s.nextPrio())
	s.expiresAt = now.Add(s.ttl)
	return nil
}

// TopN returns the highest scored books.
func (s *TreapStore) TopN(ctx context.Context, limit int) ([]model.BookScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency("popularity_top", metrics.Since(start)) }()

	if limit <= 0 {
		return []model.BookScore{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now())
	out := make([]model.BookScore, 0, min(limit, len(s.scores)))
	collectTopN(s.root, limit, &out)
	return out, nil
}

// Len returns the number of ranked books.
func (s *TreapStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	return len(s.scores)
}
