package search

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/booklend/internal/domain/model"
)

// MemoryIndex is an in-process Index.
type MemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]model.LoanEvent
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]model.LoanEvent)}
}

func (m *MemoryIndex) Upsert(ctx context.Context, ev model.LoanEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[ev.EventID] = ev
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) FindAll(ctx context.Context, page, size int) (model.Page[model.LoanEvent], error) {
	return m.find(ctx, page, size, func(model.LoanEvent) bool { return true })
}

func (m *MemoryIndex) FindByBook(ctx context.Context, bookID int64, page, size int) (model.Page[model.LoanEvent], error) {
	return m.find(ctx, page, size, func(ev model.LoanEvent) bool {
		return ev.BookID != nil && *ev.BookID == bookID
	})
}

func (m *MemoryIndex) FindByMember(ctx context.Context, memberID int64, page, size int) (model.Page[model.LoanEvent], error) {
	return m.find(ctx, page, size, func(ev model.LoanEvent) bool {
		return ev.MemberID != nil && *ev.MemberID == memberID
	})
}

func (m *MemoryIndex) find(ctx context.Context, page, size int, match func(model.LoanEvent) bool) (model.Page[model.LoanEvent], error) {
	if err := ctx.Err(); err != nil {
		return model.Page[model.LoanEvent]{}, err
	}
	m.mu.RLock()
	hits := make([]model.LoanEvent, 0)
	for _, ev := range m.docs {
		if match(ev) {
			hits = append(hits, ev)
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		si, sj := score(hits[i]), score(hits[j])
		if si != sj {
			return si > sj
		}
		return hits[i].EventID > hits[j].EventID
	})

	start, stop := bounds(page, size)
	out := emptyPage(page, size, int64(len(hits)))
	if start >= len(hits) {
		return out, nil
	}
	out.Items = hits[start:min(stop, len(hits))]
	return out, nil
}
