// Package memory is an in-process relational store. Writes of a unit of work
// are buffered and applied atomically on commit; LockBook takes a per-book
// mutex held until the unit of work ends.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/analytics"
	"github.com/okian/booklend/internal/domain/model"
)

// Store implements repository.Store in memory.
type Store struct {
	mu      sync.RWMutex
	books   map[int64]model.Book
	members map[int64]model.Member
	loans   map[int64]model.Loan

	locksMu   sync.Mutex
	bookLocks map[int64]chan struct{}

	bookSeq   atomic.Int64
	memberSeq atomic.Int64
	loanSeq   atomic.Int64
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		books:     make(map[int64]model.Book),
		members:   make(map[int64]model.Member),
		loans:     make(map[int64]model.Loan),
		bookLocks: make(map[int64]chan struct{}),
	}
}

// RunInTx runs fn in a unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.releaseLocks()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

// OverdueMembers aggregates active loans due before asOf per member.
func (s *Store) OverdueMembers(ctx context.Context, asOf time.Time, limit int) ([]model.OverdueMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []model.OverdueMember{}, nil
	}

	s.mu.RLock()
	counts := make(map[int64]int64)
	for _, l := range s.loans {
		if l.IsOverdue(asOf) {
			counts[l.MemberID]++
		}
	}
	rows := make([]model.OverdueMember, 0, len(counts))
	for id, n := range counts {
		m, ok := s.members[id]
		if !ok {
			continue
		}
		rows = append(rows, model.OverdueMember{MemberID: id, Name: m.Name, Email: m.Email, OverdueCount: n})
	}
	s.mu.RUnlock()

	analytics.RankOverdue(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Close releases nothing; it exists to satisfy repository.Store.
func (s *Store) Close() error { return nil }

// bookLock returns the single-slot semaphore guarding book id.
func (s *Store) bookLock(id int64) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.bookLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.bookLocks[id] = l
	}
	return l
}

// commit validates constraints against committed state and applies the
// buffered writes of t.
func (s *Store) commit(t *tx) error {
	if t.empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range t.books {
		if b == nil {
			continue
		}
		for otherID, other := range s.books {
			if otherID != id && other.ISBN == b.ISBN && !t.deletedBook(otherID) {
				return repository.Conflict("ISBN already exists: %s", b.ISBN)
			}
		}
	}
	for id, m := range t.members {
		if m == nil {
			continue
		}
		for otherID, other := range s.members {
			if otherID != id && other.Email == m.Email && !t.deletedMember(otherID) {
				return repository.Conflict("Email already exists: %s", m.Email)
			}
		}
	}
	for id, b := range t.books {
		if b == nil && s.hasLoans(func(l model.Loan) bool { return l.BookID == id }) {
			return repository.Conflict("Book %d is referenced by loans", id)
		}
	}
	for id, m := range t.members {
		if m == nil && s.hasLoans(func(l model.Loan) bool { return l.MemberID == id }) {
			return repository.Conflict("Member %d is referenced by loans", id)
		}
	}

	for _, l := range t.loans {
		if !s.memberExists(t, l.MemberID) {
			return repository.Conflict("Member %d no longer exists", l.MemberID)
		}
		if !s.bookExists(t, l.BookID) {
			return repository.Conflict("Book %d no longer exists", l.BookID)
		}
	}

	for id, b := range t.books {
		if b == nil {
			delete(s.books, id)
			continue
		}
		s.books[id] = *b
	}
	for id, m := range t.members {
		if m == nil {
			delete(s.members, id)
			continue
		}
		s.members[id] = *m
	}
	for id, l := range t.loans {
		s.loans[id] = cloneLoan(*l)
	}
	return nil
}

// memberExists reports whether id survives the commit of t.
func (s *Store) memberExists(t *tx, id int64) bool {
	if m, ok := t.members[id]; ok {
		return m != nil
	}
	_, ok := s.members[id]
	return ok
}

func (s *Store) bookExists(t *tx, id int64) bool {
	if b, ok := t.books[id]; ok {
		return b != nil
	}
	_, ok := s.books[id]
	return ok
}

func (s *Store) hasLoans(match func(model.Loan) bool) bool {
	for _, l := range s.loans {
		if match(l) {
			return true
		}
	}
	return false
}

func cloneLoan(l model.Loan) model.Loan {
	if l.ReturnedAt != nil {
		r := *l.ReturnedAt
		l.ReturnedAt = &r
	}
	return l
}

func sortLoans(loans []model.Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
}
