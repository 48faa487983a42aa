package api

import (
	"net/http"

	"github.com/okian/booklend/internal/domain/catalog"
	"github.com/okian/booklend/pkg/logger"
)

type memberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MembersHandler serves /api/members.
type MembersHandler struct {
	catalog Catalog
	logger  logger.Logger
}

func (h *MembersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	members, err := h.catalog.ListMembers(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, members)
}

func (h *MembersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	m, err := h.catalog.CreateMember(r.Context(), req.Name, req.Email)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, m)
}

func (h *MembersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	m, err := h.catalog.GetMember(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *MembersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	var u catalog.MemberUpdate
	if err := decodeBody(r, &u); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	m, err := h.catalog.UpdateMember(r.Context(), id, u)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, m)
}

func (h *MembersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	if err := h.catalog.DeleteMember(r.Context(), id); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
