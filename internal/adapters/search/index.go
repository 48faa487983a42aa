// Package search keeps a denormalized, queryable copy of every loan event,
// indexed by book and by member. Results are ordered by occurredAt desc, ties
// by eventId desc; events without occurredAt sort last.
package search

import (
	"context"
	"math"

	"github.com/okian/booklend/internal/domain/model"
)

// Index is the event search index. Upsert overwrites by eventId.
type Index interface {
	Upsert(ctx context.Context, ev model.LoanEvent) error
	FindAll(ctx context.Context, page, size int) (model.Page[model.LoanEvent], error)
	FindByBook(ctx context.Context, bookID int64, page, size int) (model.Page[model.LoanEvent], error)
	FindByMember(ctx context.Context, memberID int64, page, size int) (model.Page[model.LoanEvent], error)
}

func score(ev model.LoanEvent) float64 {
	if ev.OccurredAt == nil {
		return 0
	}
	return float64(ev.OccurredAt.UnixMilli())
}

func bounds(page, size int) (start, stop int) {
	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = 1
	}
	// saturate so that pages past any real total stay empty
	if page > (math.MaxInt-size)/size {
		return math.MaxInt - size, math.MaxInt
	}
	start = page * size
	return start, start + size
}

func emptyPage(page, size int, total int64) model.Page[model.LoanEvent] {
	return model.Page[model.LoanEvent]{Items: []model.LoanEvent{}, Page: page, Size: size, Total: total}
}
