package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the lending transition a LoanEvent describes.
type EventType string

const (
	EventBorrowed EventType = "BORROWED"
	EventReturned EventType = "RETURNED"
)

// ParseEventType accepts a type name case-insensitively.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToUpper(strings.TrimSpace(s))); t {
	case EventBorrowed, EventReturned:
		return t, nil
	default:
		return "", Errorf(ErrInvalidArgument, "unknown event type %q", s)
	}
}

// LoanEvent is the immutable record of one lending transition. Identifiers
// and timestamps are pointers because ingested events may lack them.
type LoanEvent struct {
	EventID    string     `json:"eventId"`
	Type       EventType  `json:"type"`
	LoanID     *int64     `json:"loanId"`
	BookID     *int64     `json:"bookId"`
	MemberID   *int64     `json:"memberId"`
	BorrowedAt *time.Time `json:"borrowedAt"`
	DueDate    *time.Time `json:"dueDate"`
	ReturnedAt *time.Time `json:"returnedAt"`
	OccurredAt *time.Time `json:"occurredAt"`
}

// NewLoanEvent snapshots loan as an event of type t emitted at now.
func NewLoanEvent(eventID string, t EventType, loan *Loan, now time.Time) LoanEvent {
	loanID, bookID, memberID := loan.ID, loan.BookID, loan.MemberID
	borrowedAt, dueDate, occurredAt := loan.BorrowedAt, loan.DueDate, now
	ev := LoanEvent{
		EventID:    eventID,
		Type:       t,
		LoanID:     &loanID,
		BookID:     &bookID,
		MemberID:   &memberID,
		BorrowedAt: &borrowedAt,
		DueDate:    &dueDate,
		OccurredAt: &occurredAt,
	}
	if loan.ReturnedAt != nil {
		returnedAt := *loan.ReturnedAt
		ev.ReturnedAt = &returnedAt
	}
	return ev
}

// Key is the partitioning key of the event: its loan id.
func (e LoanEvent) Key() string {
	if e.LoanID == nil {
		return ""
	}
	return fmt.Sprintf("%d", *e.LoanID)
}

// BookScore is one popularity ranking entry.
type BookScore struct {
	BookID      int64   `json:"bookId"`
	BorrowCount float64 `json:"borrowCount"`
}

// OverdueMember is one row of the overdue ranking.
type OverdueMember struct {
	MemberID     int64  `json:"memberId" db:"member_id"`
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	OverdueCount int64  `json:"overdueCount" db:"overdue_count"`
	Rank         int64  `json:"rank" db:"rank"`
}

// Page is a zero-based slice of a larger result.
type Page[T any] struct {
	Items []T   `json:"content"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"totalElements"`
}
