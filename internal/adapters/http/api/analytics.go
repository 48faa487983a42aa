package api

import (
	"fmt"
	"net/http"

	"github.com/okian/booklend/internal/domain/analytics"
	"github.com/okian/booklend/pkg/logger"
)

// AnalyticsHandler serves the ranking, search and report endpoints.
type AnalyticsHandler struct {
	analytics Analytics
	maxLimit  int
	logger    logger.Logger
}

func (h *AnalyticsHandler) limit(r *http.Request) (int, error) {
	n, err := queryInt(r, "limit", analytics.DefaultLimit)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, badRequestf("limit must be >= 0")
	}
	if n > h.maxLimit {
		return 0, badRequestf(fmt.Sprintf("limit must be <= %d", h.maxLimit))
	}
	return n, nil
}

// HandleTopBooks handles GET /api/analytics/top-books?limit=N.
func (h *AnalyticsHandler) HandleTopBooks(w http.ResponseWriter, r *http.Request) {
	n, err := h.limit(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	top, err := h.analytics.TopBooks(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, top)
}

// HandleSearch handles GET /api/search/loan-events.
func (h *AnalyticsHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := searchQuery(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	page, err := h.analytics.SearchLoanEvents(r.Context(), q)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func searchQuery(r *http.Request) (analytics.SearchQuery, error) {
	var q analytics.SearchQuery
	var err error
	if q.BookID, err = queryID(r, "bookId"); err != nil {
		return q, err
	}
	if q.MemberID, err = queryID(r, "memberId"); err != nil {
		return q, err
	}
	if q.Page, err = queryInt(r, "page", 0); err != nil {
		return q, err
	}
	if q.Size, err = queryInt(r, "size", analytics.DefaultPageSize); err != nil {
		return q, err
	}
	if q.Page < 0 {
		return q, badRequestf("page must be >= 0")
	}
	if q.Size < 1 {
		return q, badRequestf("size must be >= 1")
	}
	return q, nil
}

// HandleOverdue handles GET /api/reports/overdue-members?limit=N.
func (h *AnalyticsHandler) HandleOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.limit(r)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	rows, err := h.analytics.OverdueMembers(r.Context(), n)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}
