// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"mmdvmstate/internal/adapters/bus"
	"mmdvmstate/internal/domain/model"
	"mmdvmstate/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the service implementation.
type Dependencies interface {
	// Read operations on the state store.
	Snapshot() model.SystemState
	GetQSO(id string) (model.QSO, bool)
	History(limit int) []model.QSO

	// Event subscription for WebSocket sessions.
	Subscribe() *bus.Subscription
	Unsubscribe(sub *bus.Subscription)

	// Health reporting.
	Health() model.HealthStatus
}

// Server wires HTTP routes for the monitor API.
type Server struct {
	statusHandler  *StatusHandler
	qsoHandler     *QSOHandler
	historyHandler *HistoryHandler
	healthHandler  *HealthHandler
	wsHandler      *WSHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...WSOption) *Server {
	return &Server{
		statusHandler:  NewStatusHandler(deps),
		qsoHandler:     NewQSOHandler(deps),
		historyHandler: NewHistoryHandler(deps),
		healthHandler:  NewHealthHandler(deps),
		wsHandler:      NewWSHandler(deps, opts...),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/v1/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/api/v1/qsos/", MetricsMiddleware(s.qsoHandler.HandleGetQSO, "qso"))
	mux.HandleFunc("/api/v1/history", MetricsMiddleware(s.historyHandler.HandleHistory, "history"))
	mux.HandleFunc("/ws", s.wsHandler.HandleWS)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
