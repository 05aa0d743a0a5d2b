package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KirkDiggler/livesession/internal/common/clock"
)

// Pinger checks a backing service
type Pinger func(ctx context.Context) error

// HealthHandler handles health and ready checks
type HealthHandler struct {
	ping  Pinger
	clock clock.Clock
}

// NewHealthHandler creates a health handler. A nil ping always reports ready.
func NewHealthHandler(ping Pinger, clk clock.Clock) *HealthHandler {
	return &HealthHandler{ping: ping, clock: clk}
}

// Health responds to GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "livesession",
		"time":    h.clock.Now().Unix(),
	})
}

// Ready responds to GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
