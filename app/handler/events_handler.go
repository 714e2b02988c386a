package handler

import (
	"net/http"
	"time"

	"fleetd/internal/controlplane"
	"fleetd/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// observers are dashboards on other origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler streams lifecycle events to websocket observers
type EventsHandler struct {
	cp *controlplane.ControlPlane
}

// NewEventsHandler creates an events handler
func NewEventsHandler(cp *controlplane.ControlPlane) *EventsHandler {
	return &EventsHandler{cp: cp}
}

// Stream handles GET /v1/events. Each connection gets its own read-only
// subscription; a slow connection drops events rather than blocking the
// publishers.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WarnCtx(c.Request.Context(), "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.cp.Subscribe()
	defer cancel()

	// discard client frames, unblock on close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
