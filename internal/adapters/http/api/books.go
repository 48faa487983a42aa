package api

import (
	"net/http"

	"github.com/okian/booklend/internal/domain/catalog"
	"github.com/okian/booklend/pkg/logger"
)

type bookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	ISBN        string `json:"isbn"`
	TotalCopies *int   `json:"totalCopies"`
}

// BooksHandler serves /api/books.
type BooksHandler struct {
	catalog Catalog
	logger  logger.Logger
}

func (h *BooksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.ListBooks(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, books)
}

func (h *BooksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if req.TotalCopies == nil {
		writeError(r.Context(), w, h.logger, badRequestf("totalCopies must not be null"))
		return
	}
	b, err := h.catalog.CreateBook(r.Context(), req.Title, req.Author, req.ISBN, *req.TotalCopies)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, b)
}

func (h *BooksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	b, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (h *BooksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	var u catalog.BookUpdate
	if err := decodeBody(r, &u); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	b, err := h.catalog.UpdateBook(r.Context(), id, u)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (h *BooksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if err := h.catalog.DeleteBook(r.Context(), id); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
