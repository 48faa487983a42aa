package model

import "time"

// Loan is a single book lent to a single member. ReturnedAt is nil while the
// loan is active and set exactly once on return.
type Loan struct {
	ID         int64      `json:"id" db:"id"`
	BookID     int64      `json:"bookId" db:"book_id"`
	MemberID   int64      `json:"memberId" db:"member_id"`
	BorrowedAt time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnedAt *time.Time `json:"returnedAt" db:"returned_at"`
}

// NewLoan starts an active loan at now lasting durationDays periods of 24 hours.
func NewLoan(bookID, memberID int64, now time.Time, durationDays int) *Loan {
	return &Loan{
		BookID:     bookID,
		MemberID:   memberID,
		BorrowedAt: now,
		DueDate:    now.Add(time.Duration(durationDays) * 24 * time.Hour),
	}
}

// Active reports whether the loan has not been returned.
func (l *Loan) Active() bool {
	return l.ReturnedAt == nil
}

// IsOverdue reports whether the loan is active and past its due date at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.ReturnedAt == nil && l.DueDate.Before(now)
}

// MarkReturned closes the loan. A loan can be returned only once.
func (l *Loan) MarkReturned(now time.Time) error {
	if l.ReturnedAt != nil {
		return Errorf(ErrInvariantViolation, "loan already returned: %d", l.ID)
	}
	t := now
	l.ReturnedAt = &t
	return nil
}
