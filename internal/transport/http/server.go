package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lexyo-server/internal/auth"
	"github.com/vovakirdan/lexyo-server/internal/config"
	"github.com/vovakirdan/lexyo-server/internal/core"
)

// NewServer builds the HTTP server: health, the channel directory, the
// WebSocket endpoint and the operator API.
func NewServer(hub core.Hub, tokens *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error().Err(err).Msg("invalid trusted_proxies, forwarding headers are ignored")
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(hub, logger)

	router.GET("/health", healthHandler)
	router.GET("/ws", NewWSHandler(hub, cfg.MaxFramesPerMinute, logger).Handle)
	router.GET("/api/channels", api.Channels)

	admin := router.Group("/api/admin")
	admin.Use(AuthMiddleware(tokens, logger))
	{
		admin.GET("/bans", api.Bans)
		admin.DELETE("/bans/:identity", api.Unban)
		admin.DELETE("/rooms/:name", api.DeleteRoom)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
