// Package analytics answers read-side queries: the popularity ranking and
// event search over derived views, and the overdue ranking over the
// relational store.
package analytics

import (
	"context"
	"time"

	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
)

const (
	DefaultLimit    = 10
	DefaultPageSize = 20
)

// Popularity reads the popularity ranking.
type Popularity interface {
	TopN(ctx context.Context, limit int) ([]model.BookScore, error)
}

// EventSearch reads the event search index.
type EventSearch interface {
	FindAll(ctx context.Context, page, size int) (model.Page[model.LoanEvent], error)
	FindByBook(ctx context.Context, bookID int64, page, size int) (model.Page[model.LoanEvent], error)
	FindByMember(ctx context.Context, memberID int64, page, size int) (model.Page[model.LoanEvent], error)
}

// OverdueRanking computes the overdue ranking from authoritative state.
type OverdueRanking interface {
	OverdueMembers(ctx context.Context, asOf time.Time, limit int) ([]model.OverdueMember, error)
}

// SearchQuery filters loan events. BookID wins over MemberID when both are set.
type SearchQuery struct {
	BookID   *int64
	MemberID *int64
	Page     int
	Size     int
}

// Service serves analytics queries.
type Service struct {
	popularity Popularity
	search     EventSearch
	overdue    OverdueRanking
	now        func() time.Time
	logger     logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock overrides the wall clock used as the overdue cut-off.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the three read models.
func NewService(popularity Popularity, search EventSearch, overdue OverdueRanking, opts ...Option) *Service {
	s := &Service{
		popularity: popularity,
		search:     search,
		overdue:    overdue,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("analytics")
	}
	return s
}

// TopBooks returns up to limit books by borrow count, highest first.
func (s *Service) TopBooks(ctx context.Context, limit int) ([]model.BookScore, error) {
	if limit <= 0 {
		return []model.BookScore{}, nil
	}
	out, err := s.popularity.TopN(ctx, limit)
	if err != nil {
		s.logger.Error(ctx, "top books query failed", logger.Error(err))
		return nil, err
	}
	return out, nil
}

// SearchLoanEvents returns a page of indexed events.
func (s *Service) SearchLoanEvents(ctx context.Context, q SearchQuery) (model.Page[model.LoanEvent], error) {
	if q.Page < 0 {
		q.Page = 0
	}
	if q.Size < 1 {
		q.Size = DefaultPageSize
	}
	switch {
	case q.BookID != nil:
		return s.search.FindByBook(ctx, *q.BookID, q.Page, q.Size)
	case q.MemberID != nil:
		return s.search.FindByMember(ctx, *q.MemberID, q.Page, q.Size)
	default:
		return s.search.FindAll(ctx, q.Page, q.Size)
	}
}

// OverdueMembers ranks members by overdue loans as of now.
func (s *Service) OverdueMembers(ctx context.Context, limit int) ([]model.OverdueMember, error) {
	if limit <= 0 {
		return []model.OverdueMember{}, nil
	}
	return s.overdue.OverdueMembers(ctx, s.now().UTC(), limit)
}
