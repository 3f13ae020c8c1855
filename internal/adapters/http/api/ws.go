package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"mmdvmstate/internal/adapters/bus"
	"mmdvmstate/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	defaultPingPeriod  = 30 * time.Second
	defaultMaxSessions = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The monitor is meant to sit on a trusted repeater LAN.
		return true
	},
}

// WSHandler upgrades connections and streams bus events to each session.
type WSHandler struct {
	deps        Dependencies
	pingPeriod  time.Duration
	maxSessions int
	sessions    atomic.Int64
	log         logger.Logger
}

// WSOption applies a configuration option to the WSHandler.
type WSOption func(*WSHandler)

// WithPingPeriod sets the keepalive ping interval.
func WithPingPeriod(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// WithMaxSessions caps concurrent WebSocket clients.
func WithMaxSessions(n int) WSOption {
	return func(h *WSHandler) {
		if n > 0 {
			h.maxSessions = n
		}
	}
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(deps Dependencies, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		deps:        deps,
		pingPeriod:  defaultPingPeriod,
		maxSessions: defaultMaxSessions,
		log:         logger.Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWS handles GET /ws: upgrade, subscribe, and stream events until the
// client goes away or the bus shuts down.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Load() >= int64(h.maxSessions) {
		writeError(w, http.StatusServiceUnavailable, "too_many_connections", ErrTooManyConns)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	sub := h.deps.Subscribe()
	if sub == nil {
		_ = conn.Close()
		return
	}
	h.sessions.Add(1)

	ctx := r.Context()
	h.log.Info(ctx, "websocket client connected", logger.String("remote", conn.RemoteAddr().String()))

	go h.readPump(conn, sub)
	h.writePump(ctx, conn, sub)
}

// readPump discards client frames; it exists to observe close and pong
// frames. The event stream is server-to-client only.
func (h *WSHandler) readPump(conn *websocket.Conn, sub *bus.Subscription) {
	defer h.deps.Unsubscribe(sub)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards bus events to the client and pings on a timer.
func (h *WSHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *bus.Subscription) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
		h.sessions.Add(-1)
		h.log.Info(ctx, "websocket client disconnected", logger.String("remote", conn.RemoteAddr().String()))
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
