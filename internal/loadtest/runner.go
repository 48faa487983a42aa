package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/booklend/pkg/logger"
)

const topBooksLimit = 100

// ErrVerification reports that the service broke one of the lending rules.
var ErrVerification = errors.New("verification failed")

// Run seeds one contested book, races every member for it, returns the
// winners' loans and checks the ranking caught up.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Members < 1 || cfg.Copies < 0 {
		return nil, fmt.Errorf("need at least one member and a non-negative copy count")
	}
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.Timeout)
	log := logger.Get().Named("loadtest")

	log.Info(ctx, "starting borrow storm",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("members", cfg.Members),
		logger.Int("copies", cfg.Copies))

	if err := c.do(ctx, http.MethodGet, cfg.BaseURL+"/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	book, members, err := seed(ctx, c, cfg)
	if err != nil {
		return stats, fmt.Errorf("seeding failed: %w", err)
	}
	stats.BookID = book.ID
	log.Info(ctx, "seeded library", logger.Int64("bookId", book.ID), logger.Int("members", len(members)))

	borrowStart := time.Now()
	loans := borrowStorm(ctx, c, cfg, book.ID, members, stats)
	stats.BorrowDuration = time.Since(borrowStart)

	returnAll(ctx, c, cfg, loans, stats)

	var after Book
	if err := c.do(ctx, http.MethodGet, cfg.BaseURL+"/api/books/"+strconv.FormatInt(book.ID, 10), nil, &after); err != nil {
		return stats, fmt.Errorf("read book after returns: %w", err)
	}
	stats.FinalAvailable = after.AvailableCopies

	stats.PopularityScore = awaitPopularity(ctx, c, cfg, book.ID, float64(stats.Borrowed))
	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if err := verify(cfg, stats); err != nil {
		log.Error(ctx, "load test failed", logger.Error(err))
		return stats, err
	}
	log.Info(ctx, "load test passed")
	return stats, nil
}

func seed(ctx context.Context, c *client, cfg *Config) (Book, []Member, error) {
	run := uuid.NewString()
	var book Book
	err := c.do(ctx, http.MethodPost, cfg.BaseURL+"/api/books", map[string]any{
		"title":       "Load test " + run[:8],
		"author":      "loadtest",
		"isbn":        "LT-" + run,
		"totalCopies": cfg.Copies,
	}, &book)
	if err != nil {
		return book, nil, err
	}

	members := make([]Member, cfg.Members)
	for i := range members {
		err := c.do(ctx, http.MethodPost, cfg.BaseURL+"/api/members", map[string]any{
			"name":  fmt.Sprintf("Load member %d", i),
			"email": fmt.Sprintf("lt-%s-%d@example.com", run[:8], i),
		}, &members[i])
		if err != nil {
			return book, nil, err
		}
	}
	return book, members, nil
}

// borrowStorm releases every borrow at once and tallies the outcomes.
func borrowStorm(ctx context.Context, c *client, cfg *Config, bookID int64, members []Member, stats *Stats) []Loan {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		loans []Loan
		start = make(chan struct{})
	)
	log := logger.Get().Named("loadtest")

	for _, m := range members {
		wg.Add(1)
		go func(memberID int64) {
			defer wg.Done()
			<-start

			var loan Loan
			err := c.do(ctx, http.MethodPost, cfg.BaseURL+"/api/loans/borrow",
				map[string]int64{"bookId": bookID, "memberId": memberID}, &loan)

			mu.Lock()
			defer mu.Unlock()
			var apiErr *APIError
			switch {
			case err == nil:
				stats.Borrowed++
				loans = append(loans, loan)
			case errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict:
				stats.Conflicts++
			default:
				stats.OtherFailures++
				if cfg.Verbose {
					log.Warn(ctx, "borrow failed", logger.Int64("memberId", memberID), logger.Error(err))
				}
			}
		}(m.ID)
	}
	close(start)
	wg.Wait()
	return loans
}

func returnAll(ctx context.Context, c *client, cfg *Config, loans []Loan, stats *Stats) {
	log := logger.Get().Named("loadtest")
	for _, l := range loans {
		url := cfg.BaseURL + "/api/loans/" + strconv.FormatInt(l.ID, 10) + "/return"
		if err := c.do(ctx, http.MethodPost, url, nil, nil); err != nil {
			log.Warn(ctx, "return failed", logger.Int64("loanId", l.ID), logger.Error(err))
			continue
		}
		stats.Returned++
	}
}

// awaitPopularity polls top-books until bookID reaches want or the settle
// window closes, and returns the last score seen.
func awaitPopularity(ctx context.Context, c *client, cfg *Config, bookID int64, want float64) float64 {
	url := cfg.analyticsURL() + "/api/analytics/top-books?limit=" + strconv.Itoa(topBooksLimit)
	deadline := time.Now().Add(cfg.SettleWithin)
	var score float64
	for {
		var top []BookScore
		if err := c.do(ctx, http.MethodGet, url, nil, &top); err == nil {
			for _, e := range top {
				if e.BookID == bookID {
					score = e.BorrowCount
				}
			}
		}
		if score >= want || time.Now().After(deadline) {
			return score
		}
		select {
		case <-ctx.Done():
			return score
		case <-time.After(pollInterval):
		}
	}
}

func verify(cfg *Config, stats *Stats) error {
	expected := min(cfg.Copies, cfg.Members)
	var problems []string
	if stats.Borrowed != expected {
		problems = append(problems, fmt.Sprintf("%d borrows succeeded, want %d", stats.Borrowed, expected))
	}
	if stats.Conflicts != cfg.Members-expected {
		problems = append(problems, fmt.Sprintf("%d borrows conflicted, want %d", stats.Conflicts, cfg.Members-expected))
	}
	if stats.OtherFailures > 0 {
		problems = append(problems, fmt.Sprintf("%d borrows failed unexpectedly", stats.OtherFailures))
	}
	if stats.Returned != stats.Borrowed {
		problems = append(problems, fmt.Sprintf("%d of %d loans returned", stats.Returned, stats.Borrowed))
	}
	if stats.FinalAvailable != cfg.Copies {
		problems = append(problems, fmt.Sprintf("%d copies available after returns, want %d", stats.FinalAvailable, cfg.Copies))
	}
	if stats.PopularityScore < float64(expected) {
		problems = append(problems, fmt.Sprintf("popularity score %.0f, want at least %d", stats.PopularityScore, expected))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrVerification, problems)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int64("bookId", stats.BookID),
		logger.Int("borrowed", stats.Borrowed),
		logger.Int("conflicts", stats.Conflicts),
		logger.Int("otherFailures", stats.OtherFailures),
		logger.Int("returned", stats.Returned),
		logger.Int("finalAvailable", stats.FinalAvailable),
		logger.Float64("popularityScore", stats.PopularityScore),
		logger.Duration("borrowDuration", stats.BorrowDuration),
		logger.Duration("duration", stats.Duration))
}
