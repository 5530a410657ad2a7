package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/proto"
)

// RoomHandlers serves room history and presence over REST.
type RoomHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{hub: hub, log: logger}
}

// HistoryQuery holds the cursor of a history request. SinceTS is unix milliseconds.
type HistoryQuery struct {
	Since   int64 `form:"since" binding:"omitempty,gte=0"`
	SinceTS int64 `form:"sinceTs" binding:"omitempty,gte=0"`
	Limit   int   `form:"limit" binding:"omitempty,gte=0"`
}

// PrivateRoomResponse names the 1:1 room with a peer.
type PrivateRoomResponse struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

// History returns messages after a cursor, used by clients to resync after a reconnect.
// GET /api/rooms/:roomId/messages?since=&sinceTs=&limit=
func (h *RoomHandlers) History(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.log.Debug().Err(err).Msg("invalid history query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query", Code: core.ErrCodeBadRequest})
		return
	}
	cursor := core.Cursor{AfterID: q.Since}
	if q.SinceTS > 0 {
		cursor.AfterTime = time.UnixMilli(q.SinceTS)
	}

	roomID := c.Param("roomId")
	msgs, err := h.hub.HistoryFor(c.Request.Context(), uid, roomID, cursor, q.Limit)
	if err != nil {
		writeCoreError(c, err)
		return
	}

	h.log.Debug().Str("user_id", uid).Str("room_id", roomID).Int("count", len(msgs)).Msg("history served")
	c.JSON(http.StatusOK, proto.History{RoomID: roomID, Messages: chatMessagesFromCore(msgs)})
}

// Online returns the room's current participants.
// GET /api/rooms/:roomId/online
func (h *RoomHandlers) Online(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	roomID := c.Param("roomId")
	if err := h.hub.Authorize(c.Request.Context(), uid, roomID); err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, proto.OnlineUsers{RoomID: roomID, Users: h.hub.OnlineUsers(roomID)})
}

// PrivateRoom resolves the 1:1 room between the caller and a peer.
// GET /api/private-rooms/:peerId
func (h *RoomHandlers) PrivateRoom(c *gin.Context) {
	uid, ok := h.userID(c)
	if !ok {
		return
	}

	peerID := c.Param("peerId")
	roomID := core.ResolvePrivateRoomID(uid, peerID)
	if _, err := core.ParseRoomID(roomID); err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, PrivateRoomResponse{RoomID: roomID, PeerID: peerID})
}

func (h *RoomHandlers) userID(c *gin.Context) (string, bool) {
	return userIDFromContext(c, h.log)
}

func userIDFromContext(c *gin.Context, logger *zerolog.Logger) (string, bool) {
	uid := c.GetString(ContextKeyUserID)
	if uid == "" {
		logger.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: core.ErrCodeUnauthenticated})
		return "", false
	}
	return uid, true
}

func writeCoreError(c *gin.Context, err error) {
	ce := core.AsCoreError(err)
	c.JSON(statusForCode(ce.Code), ErrorResponse{Error: ce.Message, Code: ce.Code})
}

func statusForCode(code string) int {
	switch code {
	case core.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case core.ErrCodeForbidden, core.ErrCodeNotAMember:
		return http.StatusForbidden
	case core.ErrCodeAuthzTimeout:
		return http.StatusServiceUnavailable
	case core.ErrCodeInvalidRoom, core.ErrCodeBadRequest, core.ErrCodeUnsupportedVersion:
		return http.StatusBadRequest
	case core.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
