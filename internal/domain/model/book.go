// Package model contains the lending domain entities and the event record
// passed between the workflow and the analytics pipeline.
package model

// Book is a catalog entry with its inventory ledger.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type Book struct {
	ID              int64  `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	Author          string `json:"author" db:"author"`
	ISBN            string `json:"isbn" db:"isbn"`
	TotalCopies     int    `json:"totalCopies" db:"total_copies"`
	AvailableCopies int    `json:"availableCopies" db:"available_copies"`
}

// NewBook returns a book whose copies are all on the shelf.
func NewBook(title, author, isbn string, totalCopies int) (*Book, error) {
	if totalCopies < 0 {
		return nil, Errorf(ErrInvalidArgument, "totalCopies must be >= 0")
	}
	return &Book{
		Title:           title,
		Author:          author,
		ISBN:            isbn,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}, nil
}

// BorrowOne takes one copy off the shelf.
func (b *Book) BorrowOne() error {
	if b.AvailableCopies <= 0 {
		return Errorf(ErrInvariantViolation, "no available copies for book %d", b.ID)
	}
	b.AvailableCopies--
	return nil
}

// ReturnOne puts one copy back on the shelf.
func (b *Book) ReturnOne() error {
	if b.AvailableCopies >= b.TotalCopies {
		return Errorf(ErrInvariantViolation, "all copies of book %d are already available", b.ID)
	}
	b.AvailableCopies++
	return nil
}

// SetTotalCopies changes the total and shifts the available count by the same delta.
func (b *Book) SetTotalCopies(total int) error {
	if total < 0 {
		return Errorf(ErrInvalidArgument, "totalCopies must be >= 0")
	}
	available := b.AvailableCopies + (total - b.TotalCopies)
	if available < 0 {
		return Errorf(ErrInvalidArgument, "totalCopies cannot be less than %d copies on loan",
			b.TotalCopies-b.AvailableCopies)
	}
	b.TotalCopies = total
	b.AvailableCopies = available
	return nil
}

// OnLoan returns the number of copies currently lent out.
func (b *Book) OnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}
