package loadtest

import "time"

// Config holds configuration for the borrow storm.
type Config struct {
	BaseURL      string        // Base URL of the lending service
	AnalyticsURL string        // Base URL of the analytics endpoints; defaults to BaseURL
	Members      int           // Members competing for the book
	Copies       int           // Copies of the contested book
	Timeout      time.Duration // HTTP request timeout
	SettleWithin time.Duration // How long top-books may lag behind the borrows
	Verbose      bool          // Enable verbose logging
}

func (c *Config) analyticsURL() string {
	if c.AnalyticsURL != "" {
		return c.AnalyticsURL
	}
	return c.BaseURL
}

// Book mirrors the book resource.
type Book struct {
	ID              int64 `json:"id"`
	AvailableCopies int   `json:"availableCopies"`
}

// Member mirrors the member resource.
type Member struct {
	ID int64 `json:"id"`
}

// Loan mirrors the loan resource.
type Loan struct {
	ID     int64 `json:"id"`
	BookID int64 `json:"bookId"`
}

// BookScore mirrors one top-books entry.
type BookScore struct {
	BookID      int64   `json:"bookId"`
	BorrowCount float64 `json:"borrowCount"`
}

// Stats holds run statistics.
type Stats struct {
	BookID          int64
	Borrowed        int
	Conflicts       int
	OtherFailures   int
	Returned        int
	FinalAvailable  int
	PopularityScore float64
	StartTime       time.Time
	Duration        time.Duration
	BorrowDuration  time.Duration
}
