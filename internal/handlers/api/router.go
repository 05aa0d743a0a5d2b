package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// Config holds the dependencies of the HTTP API
type Config struct {
	Sessions   SessionSource
	Repository sessionRepo.Repository
	Ping       Pinger
	Clock      clock.Clock
	Logger     *zap.Logger
}

// NewRouter builds the HTTP router
func NewRouter(cfg *Config) http.Handler {
	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}
	log := logging.OrNop(cfg.Logger)

	health := NewHealthHandler(cfg.Ping, clk)
	sessions := NewSessionHandler(cfg.Sessions, cfg.Repository, clk, log)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)

	group := r.Group("/sessions")
	{
		group.GET("", sessions.ListSessions)
		group.GET("/:id", sessions.GetSession)
		group.POST("/:id/signal", sessions.HostSignal)
	}

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
