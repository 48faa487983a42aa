// Package popularity keeps the borrow-count ranking of books: a sorted score
// per book, incremented per BORROWED event, whose whole structure expires a
// fixed time after the last write.
package popularity

import (
	"context"
	"time"

	"github.com/okian/booklend/internal/domain/model"
)

// DefaultTTL is the sliding expiry applied on every write.
const DefaultTTL = 24 * time.Hour

// Store is a popularity ranking.
type Store interface {
	// Increment adds one to bookID's score and refreshes the expiry.
	Increment(ctx context.Context, bookID int64) error
	// TopN returns up to limit entries by score desc. A non-positive limit
	// or an expired ranking yields an empty result.
	TopN(ctx context.Context, limit int) ([]model.BookScore, error)
}
