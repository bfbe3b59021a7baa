package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/marquee/internal/auth"
	"github.com/MarcoPoloResearchLab/marquee/internal/notify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type eventPayload struct {
	ID        string       `json:"id,omitempty"`
	Source    string       `json:"source"`
	ItemIDs   []int64      `json:"itemIds,omitempty"`
	Present   *bool        `json:"present,omitempty"`
	Message   string       `json:"message,omitempty"`
	Level     notify.Level `json:"level,omitempty"`
	Timestamp int64        `json:"timestamp_s"`
}

func newEventPayload(message notify.Message) eventPayload {
	payload := eventPayload{
		ID:        message.ID,
		Source:    notify.SourceBackend,
		ItemIDs:   message.ItemIDs,
		Message:   message.Text,
		Level:     message.Level,
		Timestamp: message.Timestamp.Unix(),
	}
	if message.EventType == notify.EventFavoriteChanged {
		present := message.Present
		payload.Present = &present
	}
	return payload
}

// handleEvents streams favorite changes and notifications of the signed-in
// user until the client disconnects.
func (h *httpHandler) handleEvents(c *gin.Context) {
	userID, _ := auth.UserIDFromContext(c.Request.Context())
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), userID)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.logger.Debug("event stream opened",
		zap.String("user_id", userID),
		zap.String("request_id", c.GetString(requestIDContextKey)))

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent(notify.EventHeartbeat, eventPayload{Source: notify.SourceBackend, Timestamp: time.Now().Unix()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, newEventPayload(message))
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(notify.EventHeartbeat, eventPayload{Source: notify.SourceBackend, Timestamp: tick.Unix()})
			return true
		}
	})

	h.logger.Debug("event stream closed", zap.String("user_id", userID))
}
