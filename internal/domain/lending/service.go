// Package lending implements the borrow and return workflow: member
// eligibility, per-book locking of the inventory ledger, and emission of
// lending events once a transition has committed.
package lending

import (
	"context"
	"errors"
	"time"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// Emitter receives committed lending transitions. Implementations must not
// block or fail the caller.
type Emitter interface {
	Emit(ctx context.Context, t model.EventType, loan *model.Loan)
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, model.EventType, *model.Loan) {}

// Service orchestrates borrow and return.
type Service struct {
	store            repository.Store
	emitter          Emitter
	maxActiveLoans   int
	loanDurationDays int
	now              func() time.Time
	logger           logger.Logger
}

// NewService builds a lending service over store.
func NewService(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:            store,
		emitter:          noopEmitter{},
		maxActiveLoans:   defaultMaxActiveLoans,
		loanDurationDays: defaultLoanDurationDays,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("lending")
	}
	return s
}

// Borrow lends one copy of bookID to memberID.
func (s *Service) Borrow(ctx context.Context, bookID, memberID int64) (*model.Loan, error) {
	start := time.Now()
	defer func() { metrics.RecordLendingLatency("borrow", metrics.Since(start)) }()

	var loan *model.Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.FindMember(ctx, memberID); err != nil {
			return rejected("member_not_found", err)
		}

		now := s.now().UTC()
		active, err := tx.ActiveLoansByMember(ctx, memberID)
		if err != nil {
			return err
		}
		for i := range active {
			if active[i].IsOverdue(now) {
				return rejected("overdue", model.Errorf(model.ErrBusinessRule,
					"Member has overdue loans and cannot borrow new books"))
			}
		}
		if len(active) >= s.maxActiveLoans {
			return rejected("max_active_loans", model.Errorf(model.ErrBusinessRule,
				"Member reached max active loans: %d", s.maxActiveLoans))
		}

		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return rejected("book_not_found", err)
		}
		if book.AvailableCopies <= 0 {
			return rejected("no_copies", model.Errorf(model.ErrConflict,
				"No available copies for bookId=%d", bookID))
		}
		if err := book.BorrowOne(); err != nil {
			return err
		}
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}

		loan = model.NewLoan(bookID, memberID, now, s.loanDurationDays)
		return tx.InsertLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLoanBorrowed()
	s.logger.Info(ctx, "loan borrowed",
		logger.Int64("loanId", loan.ID),
		logger.Int64("bookId", bookID),
		logger.Int64("memberId", memberID),
		logger.Time("dueDate", loan.DueDate))
	s.emitter.Emit(ctx, model.EventBorrowed, loan)
	return loan, nil
}

// Return closes an active loan and puts its copy back on the shelf.
func (s *Service) Return(ctx context.Context, loanID int64) (*model.Loan, error) {
	start := time.Now()
	defer func() { metrics.RecordLendingLatency("return", metrics.Since(start)) }()

	var loan *model.Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		loan, err = tx.FindActiveLoan(ctx, loanID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Errorf(model.ErrNotFound, "Active loan not found: %d", loanID)
			}
			return err
		}

		book, err := tx.LockBook(ctx, loan.BookID)
		if err != nil {
			return err
		}
		// a concurrent return may have committed while we waited for the lock
		loan, err = tx.FindActiveLoan(ctx, loanID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Errorf(model.ErrNotFound, "Active loan not found: %d", loanID)
			}
			return err
		}
		if err := loan.MarkReturned(s.now().UTC()); err != nil {
			return err
		}
		if err := book.ReturnOne(); err != nil {
			return err
		}
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLoanReturned()
	s.logger.Info(ctx, "loan returned",
		logger.Int64("loanId", loan.ID),
		logger.Int64("bookId", loan.BookID),
		logger.Int64("memberId", loan.MemberID))
	s.emitter.Emit(ctx, model.EventReturned, loan)
	return loan, nil
}

// ListLoansByMember returns every loan of a member, active or returned.
func (s *Service) ListLoansByMember(ctx context.Context, memberID int64) ([]model.Loan, error) {
	var loans []model.Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		loans, err = tx.LoansByMember(ctx, memberID)
		return err
	})
	return loans, err
}

func rejected(reason string, err error) error {
	metrics.RecordBorrowRejection(reason)
	return err
}
