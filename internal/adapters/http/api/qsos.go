package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const defaultHistoryLimit = 50

// QSOHandler serves individual QSO lookups.
type QSOHandler struct {
	deps Dependencies
}

// NewQSOHandler creates a new QSO handler.
func NewQSOHandler(deps Dependencies) *QSOHandler {
	return &QSOHandler{deps: deps}
}

// HandleGetQSO handles GET /api/v1/qsos/{id}.
func (h *QSOHandler) HandleGetQSO(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/qsos/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing qso id"))
		return
	}
	q, ok := h.deps.GetQSO(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", ErrQSONotFound)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HistoryHandler serves the bounded completed-QSO history.
type HistoryHandler struct {
	deps Dependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

// HandleHistory handles GET /api/v1/history?limit=N, most recent first.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrInvalidLimit)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.deps.History(limit))
}
