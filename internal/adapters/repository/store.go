// Package repository defines the relational store used by the lending
// workflow, the catalog and the overdue ranking.
package repository

import (
	"context"
	"time"

	"github.com/okian/booklend/internal/domain/model"
)

// Tx is a unit of work. Lookups of absent rows fail with model.ErrNotFound;
// uniqueness and reference violations fail with model.ErrConflict.
type Tx interface {
	FindMember(ctx context.Context, id int64) (*model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	InsertMember(ctx context.Context, m *model.Member) error
	UpdateMember(ctx context.Context, m *model.Member) error
	DeleteMember(ctx context.Context, id int64) error

	FindBook(ctx context.Context, id int64) (*model.Book, error)
	// LockBook reads a book and holds an exclusive lock on it until the unit
	// of work commits or rolls back.
	LockBook(ctx context.Context, id int64) (*model.Book, error)
	ListBooks(ctx context.Context) ([]model.Book, error)
	InsertBook(ctx context.Context, b *model.Book) error
	UpdateBook(ctx context.Context, b *model.Book) error
	DeleteBook(ctx context.Context, id int64) error

	// FindActiveLoan returns the loan only while it has not been returned.
	FindActiveLoan(ctx context.Context, id int64) (*model.Loan, error)
	LoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error)
	ActiveLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error)
	CountLoansByBook(ctx context.Context, bookID int64) (int, error)
	CountLoansByMember(ctx context.Context, memberID int64) (int, error)
	InsertLoan(ctx context.Context, l *model.Loan) error
	UpdateLoan(ctx context.Context, l *model.Loan) error
}

// Store provides units of work and read-only aggregate queries.
type Store interface {
	// RunInTx runs fn in a unit of work that commits when fn returns nil and
	// rolls back otherwise. Locks taken through the Tx are released on exit.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// OverdueMembers ranks members by the number of active loans due before
	// asOf, densely, highest count first; ties are ordered by member id.
	OverdueMembers(ctx context.Context, asOf time.Time, limit int) ([]model.OverdueMember, error)

	Close() error
}
