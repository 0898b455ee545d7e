package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StatusHandler pushes status changes to WebSocket clients. Each client gets
// the latest status on connect and every change after that.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.source.Subscribe()
	defer cancel()

	// Reader goroutine notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if status, ok := h.source.Latest(); ok {
		if err := h.write(conn, status); err != nil {
			return
		}
	}

	for {
		select {
		case <-gone:
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := h.write(conn, status); err != nil {
				slog.Debug("websocket client dropped", "error", err)
				return
			}
		}
	}
}

func (h *StatusHandler) write(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
