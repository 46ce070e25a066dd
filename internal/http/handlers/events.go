package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/introspecthq/agentlens-backend/internal/sse"
)

type EventsHandler struct {
	hub *sse.Hub
}

func NewEventsHandler(hub *sse.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// GET /api/events/stream?channels=operations,skills
func (h *EventsHandler) Stream(c *gin.Context) {
	client := h.hub.NewClient()
	defer h.hub.CloseClient(client)

	channels := strings.Split(c.Query("channels"), ",")
	subscribed := false
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		h.hub.AddChannel(client, ch)
		subscribed = true
	}
	if !subscribed {
		h.hub.AddChannel(client, sse.ChannelOperations)
	}

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
