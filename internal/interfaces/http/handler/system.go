package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jdfresh/backend/internal/infrastructure/persistence"
	"github.com/jdfresh/backend/internal/infrastructure/realtime"
)

// SystemHandler handles health and readiness endpoints
type SystemHandler struct {
	BaseHandler
	db        *persistence.Database
	hub       *realtime.Hub
	startedAt time.Time
	version   string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(db *persistence.Database, hub *realtime.Hub, version string, logger *zap.Logger) *SystemHandler {
	return &SystemHandler{
		BaseHandler: NewBaseHandler(logger),
		db:          db,
		hub:         hub,
		startedAt:   time.Now(),
		version:     version,
	}
}

// Health handles GET /health. Reports liveness only.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Ready handles GET /ready. Reports readiness including dependency checks.
func (h *SystemHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			h.logger.Error("Database readiness check failed", zap.Error(err))
			checks["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.hub != nil {
		checks["tracking_connections"] = h.hub.ClientCount()
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
	})
}
