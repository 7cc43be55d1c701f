// Package api exposes rooms over HTTP with gin. Request and response
// shapes follow the web client: snake_case JSON and {"error": msg} bodies.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/auctionerrors"
	"github.com/jensholdgaard/cricket-auction/internal/catalog"
	"github.com/jensholdgaard/cricket-auction/internal/chat"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/health"
	"github.com/jensholdgaard/cricket-auction/internal/telemetry"
)

// Handler serves the auction API.
type Handler struct {
	auction *auction.Manager
	chat    *chat.Service
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// NewHandler returns a new Handler.
func NewHandler(mgr *auction.Manager, chatSvc *chat.Service, cat *catalog.Catalog, logger *slog.Logger) *Handler {
	return &Handler{auction: mgr, chat: chatSvc, catalog: cat, logger: logger}
}

// NewRouter builds the gin engine with the API, health checks and the
// logging, recovery and CORS middleware.
func NewRouter(h *Handler, hh *health.Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	hh.Register(r)

	api := r.Group("/api")
	api.GET("/rooms", h.listRooms)
	api.GET("/players", h.listPlayers)
	api.POST("/create-room", h.createRoom)
	api.POST("/join-room", h.joinRoom)
	api.POST("/start-auction", h.startAuction)
	api.POST("/pause-auction", h.pauseAuction)
	api.POST("/update-settings", h.updateSettings)
	api.POST("/place-bid", h.placeBid)
	api.POST("/sell-player", h.sellPlayer)
	api.POST("/skip-player", h.skipPlayer)
	api.POST("/end-auction", h.endAuction)
	api.POST("/send-message", h.sendMessage)
	api.POST("/submit-xi", h.submitLineup)
	api.GET("/room-state/:code", h.roomState)
	api.GET("/check-qualification/:code", h.checkQualification)
	api.GET("/chat/:code", h.chatMessages)
	api.GET("/my-team/:code/:team", h.myTeam)
	api.GET("/summary/:code", h.summary)
	api.GET("/upcoming-players/:code", h.upcomingPlayers)
	api.GET("/unsold-players/:code", h.unsoldPlayers)
	api.GET("/winner/:code", h.winner)
	api.GET("/logs/:code", h.logs)
	return r
}

// requestLogger logs one line per request with the trace it ran under.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		telemetry.LogWithTrace(ctx, logger).Log(ctx, level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind auctionerrors.Kind) int {
	switch kind {
	case auctionerrors.KindValidation:
		return http.StatusBadRequest
	case auctionerrors.KindBusinessRule:
		return http.StatusForbidden
	case auctionerrors.KindNotFound:
		return http.StatusNotFound
	case auctionerrors.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": msg}. Internal errors are logged and hidden.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := auctionerrors.KindOf(err)
	if kind == auctionerrors.KindInternal {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(statusOf(kind), gin.H{"error": auctionerrors.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
