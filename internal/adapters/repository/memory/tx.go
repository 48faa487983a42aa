package memory

import (
	"context"
	"sort"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
)

// tx overlays buffered writes on the committed state. A nil entry in books or
// members marks a deletion.
type tx struct {
	s       *Store
	books   map[int64]*model.Book
	members map[int64]*model.Member
	loans   map[int64]*model.Loan
	held    map[int64]chan struct{}
}

var _ repository.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:       s,
		books:   make(map[int64]*model.Book),
		members: make(map[int64]*model.Member),
		loans:   make(map[int64]*model.Loan),
		held:    make(map[int64]chan struct{}),
	}
}

func (t *tx) empty() bool {
	return len(t.books) == 0 && len(t.members) == 0 && len(t.loans) == 0
}

func (t *tx) releaseLocks() {
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
}

func (t *tx) deletedBook(id int64) bool {
	b, ok := t.books[id]
	return ok && b == nil
}

func (t *tx) deletedMember(id int64) bool {
	m, ok := t.members[id]
	return ok && m == nil
}

func (t *tx) FindMember(ctx context.Context, id int64) (*model.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m, ok := t.members[id]; ok {
		if m == nil {
			return nil, repository.NotFound("Member", id)
		}
		cp := *m
		return &cp, nil
	}
	t.s.mu.RLock()
	m, ok := t.s.members[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, repository.NotFound("Member", id)
	}
	return &m, nil
}

func (t *tx) ListMembers(ctx context.Context) ([]model.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Member, 0)
	t.s.mu.RLock()
	for id, m := range t.s.members {
		if _, ok := t.members[id]; !ok {
			out = append(out, m)
		}
	}
	t.s.mu.RUnlock()
	for _, m := range t.members {
		if m != nil {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertMember(ctx context.Context, m *model.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if existing, ok := t.memberByEmail(m.Email); ok {
		return repository.Conflict("Email already exists: %s", existing.Email)
	}
	m.ID = t.s.memberSeq.Add(1)
	cp := *m
	t.members[m.ID] = &cp
	return nil
}

func (t *tx) UpdateMember(ctx context.Context, m *model.Member) error {
	if _, err := t.FindMember(ctx, m.ID); err != nil {
		return err
	}
	if existing, ok := t.memberByEmail(m.Email); ok && existing.ID != m.ID {
		return repository.Conflict("Email already exists: %s", m.Email)
	}
	cp := *m
	t.members[m.ID] = &cp
	return nil
}

func (t *tx) DeleteMember(ctx context.Context, id int64) error {
	if _, err := t.FindMember(ctx, id); err != nil {
		return err
	}
	t.members[id] = nil
	return nil
}

func (t *tx) memberByEmail(email string) (model.Member, bool) {
	for _, m := range t.members {
		if m != nil && m.Email == email {
			return *m, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, m := range t.s.members {
		if _, overlaid := t.members[id]; !overlaid && m.Email == email {
			return m, true
		}
	}
	return model.Member{}, false
}

func (t *tx) FindBook(ctx context.Context, id int64) (*model.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b, ok := t.books[id]; ok {
		if b == nil {
			return nil, repository.NotFound("Book", id)
		}
		cp := *b
		return &cp, nil
	}
	t.s.mu.RLock()
	b, ok := t.s.books[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, repository.NotFound("Book", id)
	}
	return &b, nil
}

func (t *tx) LockBook(ctx context.Context, id int64) (*model.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := t.held[id]; !ok {
		l := t.s.bookLock(id)
		select {
		case l <- struct{}{}:
			t.held[id] = l
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.FindBook(ctx, id)
}

func (t *tx) ListBooks(ctx context.Context) ([]model.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Book, 0)
	t.s.mu.RLock()
	for id, b := range t.s.books {
		if _, ok := t.books[id]; !ok {
			out = append(out, b)
		}
	}
	t.s.mu.RUnlock()
	for _, b := range t.books {
		if b != nil {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertBook(ctx context.Context, b *model.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.bookByISBN(b.ISBN); ok {
		return repository.Conflict("ISBN already exists: %s", b.ISBN)
	}
	b.ID = t.s.bookSeq.Add(1)
	cp := *b
	t.books[b.ID] = &cp
	return nil
}

func (t *tx) UpdateBook(ctx context.Context, b *model.Book) error {
	if _, err := t.FindBook(ctx, b.ID); err != nil {
		return err
	}
	if existing, ok := t.bookByISBN(b.ISBN); ok && existing.ID != b.ID {
		return repository.Conflict("ISBN already exists: %s", b.ISBN)
	}
	cp := *b
	t.books[b.ID] = &cp
	return nil
}

func (t *tx) DeleteBook(ctx context.Context, id int64) error {
	if _, err := t.FindBook(ctx, id); err != nil {
		return err
	}
	t.books[id] = nil
	return nil
}

func (t *tx) bookByISBN(isbn string) (model.Book, bool) {
	for _, b := range t.books {
		if b != nil && b.ISBN == isbn {
			return *b, true
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, b := range t.s.books {
		if _, overlaid := t.books[id]; !overlaid && b.ISBN == isbn {
			return b, true
		}
	}
	return model.Book{}, false
}

func (t *tx) FindActiveLoan(ctx context.Context, id int64) (*model.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var l model.Loan
	if overlaid, ok := t.loans[id]; ok {
		l = cloneLoan(*overlaid)
	} else {
		t.s.mu.RLock()
		committed, ok := t.s.loans[id]
		t.s.mu.RUnlock()
		if !ok {
			return nil, repository.NotFound("Loan", id)
		}
		l = cloneLoan(committed)
	}
	if !l.Active() {
		return nil, repository.NotFound("Loan", id)
	}
	return &l, nil
}

func (t *tx) loansWhere(match func(model.Loan) bool) []model.Loan {
	out := make([]model.Loan, 0)
	t.s.mu.RLock()
	for id, l := range t.s.loans {
		if _, ok := t.loans[id]; !ok && match(l) {
			out = append(out, cloneLoan(l))
		}
	}
	t.s.mu.RUnlock()
	for _, l := range t.loans {
		if match(*l) {
			out = append(out, cloneLoan(*l))
		}
	}
	sortLoans(out)
	return out
}

func (t *tx) LoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.loansWhere(func(l model.Loan) bool { return l.MemberID == memberID }), nil
}

func (t *tx) ActiveLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.loansWhere(func(l model.Loan) bool { return l.MemberID == memberID && l.Active() }), nil
}

func (t *tx) CountLoansByBook(ctx context.Context, bookID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(t.loansWhere(func(l model.Loan) bool { return l.BookID == bookID })), nil
}

func (t *tx) CountLoansByMember(ctx context.Context, memberID int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(t.loansWhere(func(l model.Loan) bool { return l.MemberID == memberID })), nil
}

func (t *tx) InsertLoan(ctx context.Context, l *model.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.FindMember(ctx, l.MemberID); err != nil {
		return err
	}
	if _, err := t.FindBook(ctx, l.BookID); err != nil {
		return err
	}
	l.ID = t.s.loanSeq.Add(1)
	cp := cloneLoan(*l)
	t.loans[l.ID] = &cp
	return nil
}

func (t *tx) UpdateLoan(ctx context.Context, l *model.Loan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.loans[l.ID]; !ok {
		t.s.mu.RLock()
		_, ok = t.s.loans[l.ID]
		t.s.mu.RUnlock()
		if !ok {
			return repository.NotFound("Loan", l.ID)
		}
	}
	cp := cloneLoan(*l)
	t.loans[l.ID] = &cp
	return nil
}
