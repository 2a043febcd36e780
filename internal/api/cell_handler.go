package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// GetCell возвращает ячейку по ID с результатами её шагов.
// GET /api/v1/cells/{id}
func (h *Handler) GetCell(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid cell id")
		return
	}

	cell, err := h.cellRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.reqLogger(r), err, "cell not found") {
		return
	}

	Success(w, CellFromDomain(*cell))
}
