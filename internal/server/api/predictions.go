package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/store"
)

// PredictionHandler serves the prediction history.
//
//	GET    /api/predictions?limit=n
//	GET    /api/predictions/{id}
//	DELETE /api/predictions/{id}
type PredictionHandler struct {
	store *store.Store
}

// NewPredictionHandler returns a handler reading from s.
func NewPredictionHandler(s *store.Store) *PredictionHandler {
	return &PredictionHandler{store: s}
}

type listPredictionsResponse struct {
	Predictions []*store.Prediction `json:"predictions"`
}

func (h *PredictionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/predictions")
	id = strings.TrimPrefix(id, "/")

	if id == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *PredictionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	preds, err := h.store.Predictions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list predictions")
		return
	}
	if preds == nil {
		preds = []*store.Prediction{}
	}
	writeJSON(w, http.StatusOK, listPredictionsResponse{Predictions: preds})
}

func (h *PredictionHandler) get(w http.ResponseWriter, id string) {
	p, err := h.store.Predictions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Prediction not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get prediction")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PredictionHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Predictions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Prediction not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete prediction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
