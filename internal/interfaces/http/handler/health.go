package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/dto"
)

const healthPingTimeout = 2 * time.Second

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	BaseHandler
	db        Pinger
	startTime time.Time
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Health pings the database and reports uptime.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	uptime := time.Since(h.startTime).Round(time.Second).String()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    dto.HealthResponse{Status: "unhealthy", Database: "unreachable", Uptime: uptime},
			Error:   &dto.ErrorInfo{Code: dto.ErrCodeUnavailable, Message: "database unreachable", RequestID: getRequestID(c)},
		})
		return
	}

	h.Success(c, dto.HealthResponse{Status: "healthy", Database: "connected", Uptime: uptime})
}
