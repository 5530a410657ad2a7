package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/campuschat/internal/auth"
	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// NewServer builds the HTTP server: health probe, WebSocket endpoint and REST API.
func NewServer(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	rooms := NewRoomHandlers(hub, logger)
	presence := NewPresenceHandlers(hub, logger)

	api := router.Group("/api", AuthMiddleware(authService, logger))
	api.GET("/rooms/:roomId/messages", rooms.History)
	api.GET("/rooms/:roomId/online", rooms.Online)
	api.GET("/private-rooms/:peerId", rooms.PrivateRoom)
	api.GET("/presence/:userId", presence.Get)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
