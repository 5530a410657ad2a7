package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/core"
)

// PresenceHandlers serves global presence lookups.
type PresenceHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewPresenceHandlers creates a new presence handlers instance.
func NewPresenceHandlers(hub *core.Hub, logger *zerolog.Logger) *PresenceHandlers {
	return &PresenceHandlers{hub: hub, log: logger}
}

// PresenceResponse reports whether a user holds a live connection.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// Get reports a user's global presence.
// GET /api/presence/:userId
func (h *PresenceHandlers) Get(c *gin.Context) {
	if _, ok := userIDFromContext(c, h.log); !ok {
		return
	}
	userID := c.Param("userId")
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: h.hub.IsOnline(userID)})
}
