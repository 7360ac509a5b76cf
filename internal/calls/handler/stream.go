package handler

import (
	"errors"
	"net/http"
	"time"

	"callgist/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeTimeout = 10 * time.Second

// HandleStreamCallEvents handles GET /api/v1/calls/:call_id/stream. It
// upgrades to a WebSocket and forwards processing events until the call
// reaches a terminal state or the client disconnects.
func (h *Handler) HandleStreamCallEvents(c *gin.Context) {
	ctx := c.Request.Context()
	callID := c.Param("call_id")

	record, err := h.callStore.GetCallRecord(ctx, callID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		h.logger.Error(ctx, "failed to get call record", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get call"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	// A snapshot of the current status lets late subscribers see where the
	// call stands. Events published before this point are not replayed.
	snapshot := gin.H{
		"type":    "status_snapshot",
		"call_id": record.CallID,
		"status":  record.Status,
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if record.IsTerminal() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call already terminal"),
			time.Now().Add(writeTimeout))
		return
	}

	sub := h.events.Subscribe(callID)
	defer h.events.Unsubscribe(callID, sub)

	// Read pump detects client disconnects. Incoming messages are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call reached terminal state"),
					time.Now().Add(writeTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
