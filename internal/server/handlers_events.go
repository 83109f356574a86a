package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleEvents streams review events to a reviewer as server-sent events until the client
// disconnects. ?character= narrows the stream to one character.
func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, c.Query("character"))
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event := <-stream:
			c.SSEvent(event.EventType, event)
			return true
		case tick := <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"source": eventSource, "timestamp": tick.UTC()})
			return true
		}
	})
}
