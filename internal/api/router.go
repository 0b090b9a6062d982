package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/logging"
	"github.com/kneutral-org/escalator/internal/metrics"
	"github.com/kneutral-org/escalator/internal/middleware"
)

// ReadyFunc reports whether the process can serve, typically by pinging its database.
type ReadyFunc func(ctx context.Context) error

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger       zerolog.Logger
	Maintenance  *Handler
	Catalog      *CatalogHandler
	Ready        ReadyFunc
	AdminSecret  string
	MaxBodyBytes int64
}

// NewRouter builds the HTTP router: /health, /ready and /metrics at the root,
// and the admin API under /api/v1 for whichever handlers are set.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(cfg.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", readyHandler(cfg.Ready, cfg.Logger))
	metrics.RegisterMetricsEndpoint(router)

	if cfg.Maintenance == nil && cfg.Catalog == nil {
		return router
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BodyLimitErrors(cfg.Logger))
	v1.Use(middleware.BodyLimit(cfg.MaxBodyBytes, cfg.Logger))
	v1.Use(middleware.RequireSignature(cfg.AdminSecret, cfg.Logger))
	if cfg.Maintenance != nil {
		cfg.Maintenance.RegisterRoutes(v1)
	}
	if cfg.Catalog != nil {
		cfg.Catalog.RegisterRoutes(v1)
	}
	return router
}

func readyHandler(ready ReadyFunc, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			logger.Warn().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
