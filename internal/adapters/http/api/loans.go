package api

import (
	"net/http"

	"github.com/okian/booklend/pkg/logger"
)

type borrowRequest struct {
	BookID   *int64 `json:"bookId"`
	MemberID *int64 `json:"memberId"`
}

// LoansHandler serves /api/loans.
type LoansHandler struct {
	lending Lending
	logger  logger.Logger
}

// HandleBorrow handles POST /api/loans/borrow and answers 201 with the loan.
func (h *LoansHandler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	switch {
	case req.BookID == nil:
		writeError(r.Context(), w, h.logger, badRequestf("bookId must not be null"))
		return
	case req.MemberID == nil:
		writeError(r.Context(), w, h.logger, badRequestf("memberId must not be null"))
		return
	}
	loan, err := h.lending.Borrow(r.Context(), *req.BookID, *req.MemberID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, loan)
}

func (h *LoansHandler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "loanId")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	loan, err := h.lending.Return(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, loan)
}

// HandleList handles GET /api/loans?memberId=N.
func (h *LoansHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	memberID, err := queryID(r, "memberId")
	if err == nil && memberID == nil {
		err = badRequestf("memberId is required")
	}
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	loans, err := h.lending.ListLoansByMember(r.Context(), *memberID)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, loans)
}
