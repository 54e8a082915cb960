package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/stompdebug/internal/config"
	"github.com/vovakirdan/stompdebug/internal/proto"
	"github.com/vovakirdan/stompdebug/internal/session"
	"github.com/vovakirdan/stompdebug/internal/store"
)

const readHeaderTimeout = 5 * time.Second

// Controller is the session surface exposed over HTTP.
type Controller interface {
	Connect(ctx context.Context, id session.Identity) error
	Disconnect(ctx context.Context) error
	SetStatus(ctx context.Context, status proto.Status) error
	SendMessage(ctx context.Context, recipient, content string) error
	Snapshot() session.Snapshot
}

// LineSource exposes the rendered message log.
type LineSource interface {
	Lines(limit int) []string
}

// NewServer builds the local control server. transcript may be nil.
func NewServer(ctrl Controller, lines LineSource, transcript store.Transcript, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.InspectAddr,
		Handler:           NewRouter(ctrl, lines, transcript, cfg, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(ctrl Controller, lines LineSource, transcript store.Transcript, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	h := NewHandlers(ctrl, lines, transcript, cfg, logger)

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	api.GET("/session", h.GetSession)
	api.POST("/session/connect", h.Connect)
	api.POST("/session/disconnect", h.Disconnect)
	api.PUT("/status", h.SetStatus)
	api.GET("/messages", h.ListMessages)
	api.POST("/messages", h.SendMessage)
	api.GET("/history", h.ListHistory)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
