package api

import (
	"context"
	"fleet-hub/auth"
	"fleet-hub/contract"
	"fleet-hub/observability"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const AdminRole = "admin"

// BroadcastControl is the slice of the broadcaster the HTTP layer drives.
type BroadcastControl interface {
	Pause(ctx context.Context) bool
	Resume() bool
	Paused() bool
	LastRun() time.Time
	Healthy(now time.Time) bool
}

type StatsProvider interface {
	Snapshot(now time.Time) observability.HubStats
}

type Handler struct {
	log         *slog.Logger
	hub         http.Handler
	validator   contract.TokenValidator
	broadcaster BroadcastControl
	stats       StatsProvider
}

func NewHandler(log *slog.Logger,
	hub http.Handler,
	validator contract.TokenValidator,
	broadcaster BroadcastControl,
	stats StatsProvider) *Handler {
	return &Handler{
		log:         log,
		hub:         hub,
		validator:   validator,
		broadcaster: broadcaster,
		stats:       stats,
	}
}

// Engine builds the gin router:
//
//	GET  /hub                    WebSocket upgrade
//	GET  /health                 200 while the broadcaster is live, 503 otherwise
//	GET  /debug/stats            admin only
//	POST /api/broadcasts/start   admin only
//	POST /api/broadcasts/stop    admin only
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/hub", gin.WrapH(h.hub))
	r.GET("/health", h.health)

	admin := r.Group("/", auth.RequireAuth(h.validator), auth.RequireRole(AdminRole))
	admin.GET("/debug/stats", h.debugStats)
	admin.POST("/api/broadcasts/start", h.startBroadcasts)
	admin.POST("/api/broadcasts/stop", h.stopBroadcasts)
	return r
}

type healthResponse struct {
	Status  string     `json:"status"`
	LastRun *time.Time `json:"lastRun,omitempty"`
	Paused  bool       `json:"paused"`
}

func (h *Handler) health(c *gin.Context) {
	now := time.Now()
	resp := healthResponse{Status: "SERVING", Paused: h.broadcaster.Paused()}
	if last := h.broadcaster.LastRun(); !last.IsZero() {
		last = last.UTC()
		resp.LastRun = &last
	}
	if !h.broadcaster.Healthy(now) {
		resp.Status = "NOT_SERVING"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) debugStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot(time.Now()))
}

type toggleResponse struct {
	Paused  bool `json:"paused"`
	Changed bool `json:"changed"`
}

func (h *Handler) startBroadcasts(c *gin.Context) {
	changed := h.broadcaster.Resume()
	h.logToggle(c, "start", changed)
	c.JSON(http.StatusOK, toggleResponse{Paused: h.broadcaster.Paused(), Changed: changed})
}

func (h *Handler) stopBroadcasts(c *gin.Context) {
	changed := h.broadcaster.Pause(c.Request.Context())
	h.logToggle(c, "stop", changed)
	c.JSON(http.StatusOK, toggleResponse{Paused: h.broadcaster.Paused(), Changed: changed})
}

func (h *Handler) logToggle(c *gin.Context, action string, changed bool) {
	principal, _ := auth.PrincipalFrom(c)
	h.log.Info("Broadcast toggle", "action", action, "user", principal.Username, "changed", changed)
}

// requestLogger replaces gin.Logger so access logs go through slog.
// The WebSocket route is skipped, sessions log their own lifecycle.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/hub" {
			return
		}
		h.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
