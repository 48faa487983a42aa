package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
)

const (
	bookColumns   = `id, title, author, isbn, total_copies, available_copies`
	memberColumns = `id, name, email`
	loanColumns   = `id, book_id, member_id, borrowed_at, due_date, returned_at`
)

type tx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) get(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.GetContext(ctx, dest, t.tx.Rebind(query), args...)
}

func (t *tx) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return t.tx.SelectContext(ctx, dest, t.tx.Rebind(query), args...)
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *tx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(query+` RETURNING id`), args...).Scan(&id)
	return id, err
}

func (t *tx) FindMember(ctx context.Context, id int64) (*model.Member, error) {
	defer observe("find_member", time.Now())
	var m model.Member
	err := t.get(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound("Member", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find member %d: %w", id, err)
	}
	return &m, nil
}

func (t *tx) ListMembers(ctx context.Context) ([]model.Member, error) {
	defer observe("list_members", time.Now())
	out := make([]model.Member, 0)
	if err := t.selectAll(ctx, &out, `SELECT `+memberColumns+` FROM members ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

func (t *tx) InsertMember(ctx context.Context, m *model.Member) error {
	id, err := t.insert(ctx, `INSERT INTO members (name, email) VALUES (?, ?)`, m.Name, m.Email)
	if err != nil {
		return mapErr(err, "Email already exists: %s", m.Email)
	}
	m.ID = id
	return nil
}

func (t *tx) UpdateMember(ctx context.Context, m *model.Member) error {
	n, err := t.exec(ctx, `UPDATE members SET name = ?, email = ? WHERE id = ?`, m.Name, m.Email, m.ID)
	if err != nil {
		return mapErr(err, "Email already exists: %s", m.Email)
	}
	if n == 0 {
		return repository.NotFound("Member", m.ID)
	}
	return nil
}

func (t *tx) DeleteMember(ctx context.Context, id int64) error {
	refs, err := t.CountLoansByMember(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return repository.Conflict("Member %d is referenced by loans", id)
	}
	n, err := t.exec(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return mapErr(err, "Member %d is referenced by loans", id)
	}
	if n == 0 {
		return repository.NotFound("Member", id)
	}
	return nil
}

func (t *tx) FindBook(ctx context.Context, id int64) (*model.Book, error) {
	return t.findBook(ctx, id, false)
}

// LockBook selects the row FOR UPDATE on PostgreSQL. SQLite transactions
// already hold the database write lock.
func (t *tx) LockBook(ctx context.Context, id int64) (*model.Book, error) {
	return t.findBook(ctx, id, t.dialect == Postgres)
}

func (t *tx) findBook(ctx context.Context, id int64, forUpdate bool) (*model.Book, error) {
	defer observe("find_book", time.Now())
	q := `SELECT ` + bookColumns + ` FROM books WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var b model.Book
	err := t.get(ctx, &b, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound("Book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find book %d: %w", id, err)
	}
	return &b, nil
}

func (t *tx) ListBooks(ctx context.Context) ([]model.Book, error) {
	defer observe("list_books", time.Now())
	out := make([]model.Book, 0)
	if err := t.selectAll(ctx, &out, `SELECT `+bookColumns+` FROM books ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return out, nil
}

func (t *tx) InsertBook(ctx context.Context, b *model.Book) error {
	id, err := t.insert(ctx,
		`INSERT INTO books (title, author, isbn, total_copies, available_copies) VALUES (?, ?, ?, ?, ?)`,
		b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies)
	if err != nil {
		return mapErr(err, "ISBN already exists: %s", b.ISBN)
	}
	b.ID = id
	return nil
}

func (t *tx) UpdateBook(ctx context.Context, b *model.Book) error {
	defer func(start time.Time) {
		recordUpdate("update_book", start)
	}(time.Now())
	n, err := t.exec(ctx,
		`UPDATE books SET title = ?, author = ?, isbn = ?, total_copies = ?, available_copies = ? WHERE id = ?`,
		b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies, b.ID)
	if err != nil {
		return mapErr(err, "ISBN already exists: %s", b.ISBN)
	}
	if n == 0 {
		return repository.NotFound("Book", b.ID)
	}
	return nil
}

func (t *tx) DeleteBook(ctx context.Context, id int64) error {
	refs, err := t.CountLoansByBook(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return repository.Conflict("Book %d is referenced by loans", id)
	}
	n, err := t.exec(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return mapErr(err, "Book %d is referenced by loans", id)
	}
	if n == 0 {
		return repository.NotFound("Book", id)
	}
	return nil
}

func (t *tx) FindActiveLoan(ctx context.Context, id int64) (*model.Loan, error) {
	defer observe("find_active_loan", time.Now())
	var l model.Loan
	err := t.get(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE id = ? AND returned_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound("Loan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find loan %d: %w", id, err)
	}
	normalize(&l)
	return &l, nil
}

func (t *tx) LoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return t.loans(ctx, "loans_by_member", `SELECT `+loanColumns+` FROM loans WHERE member_id = ? ORDER BY id`, memberID)
}

func (t *tx) ActiveLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	return t.loans(ctx, "active_loans_by_member",
		`SELECT `+loanColumns+` FROM loans WHERE member_id = ? AND returned_at IS NULL ORDER BY id`, memberID)
}

func (t *tx) loans(ctx context.Context, op, query string, args ...any) ([]model.Loan, error) {
	defer observe(op, time.Now())
	out := make([]model.Loan, 0)
	if err := t.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for i := range out {
		normalize(&out[i])
	}
	return out, nil
}

func (t *tx) CountLoansByBook(ctx context.Context, bookID int64) (int, error) {
	var n int
	if err := t.get(ctx, &n, `SELECT COUNT(*) FROM loans WHERE book_id = ?`, bookID); err != nil {
		return 0, fmt.Errorf("count loans of book %d: %w", bookID, err)
	}
	return n, nil
}

func (t *tx) CountLoansByMember(ctx context.Context, memberID int64) (int, error) {
	var n int
	if err := t.get(ctx, &n, `SELECT COUNT(*) FROM loans WHERE member_id = ?`, memberID); err != nil {
		return 0, fmt.Errorf("count loans of member %d: %w", memberID, err)
	}
	return n, nil
}

func (t *tx) InsertLoan(ctx context.Context, l *model.Loan) error {
	defer func(start time.Time) {
		recordUpdate("insert_loan", start)
	}(time.Now())
	truncate(l)
	id, err := t.insert(ctx,
		`INSERT INTO loans (book_id, member_id, borrowed_at, due_date, returned_at) VALUES (?, ?, ?, ?, ?)`,
		l.BookID, l.MemberID, l.BorrowedAt, l.DueDate, l.ReturnedAt)
	if err != nil {
		return mapErr(err, "Loan references a missing book or member")
	}
	l.ID = id
	return nil
}

func (t *tx) UpdateLoan(ctx context.Context, l *model.Loan) error {
	defer func(start time.Time) {
		recordUpdate("update_loan", start)
	}(time.Now())
	truncate(l)
	n, err := t.exec(ctx, `UPDATE loans SET returned_at = ? WHERE id = ?`, l.ReturnedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update loan %d: %w", l.ID, err)
	}
	if n == 0 {
		return repository.NotFound("Loan", l.ID)
	}
	return nil
}

// truncate drops precision neither database keeps, so the caller's copy
// matches what a later read returns.
func truncate(l *model.Loan) {
	l.BorrowedAt = l.BorrowedAt.UTC().Truncate(time.Microsecond)
	l.DueDate = l.DueDate.UTC().Truncate(time.Microsecond)
	if l.ReturnedAt != nil {
		r := l.ReturnedAt.UTC().Truncate(time.Microsecond)
		l.ReturnedAt = &r
	}
}

func normalize(l *model.Loan) {
	l.BorrowedAt = l.BorrowedAt.UTC()
	l.DueDate = l.DueDate.UTC()
	if l.ReturnedAt != nil {
		r := l.ReturnedAt.UTC()
		l.ReturnedAt = &r
	}
}
