package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CacheFlusher drops cached configuration so the next cycle reads it fresh.
type CacheFlusher interface {
	Flush()
}

// CatalogHandler exposes catalog cache administration.
type CatalogHandler struct {
	cache  CacheFlusher
	logger zerolog.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(cache CacheFlusher, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		cache:  cache,
		logger: logger.With().Str("component", "catalog-api").Logger(),
	}
}

// RegisterRoutes registers the catalog routes.
func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/catalog/cache/flush", h.FlushCache)
}

// FlushCache handles POST /catalog/cache/flush. Operators call it after editing actions
// or users so escalations stop using the cached copies.
func (h *CatalogHandler) FlushCache(c *gin.Context) {
	h.cache.Flush()
	h.logger.Info().Msg("catalog cache flushed")
	c.Status(http.StatusNoContent)
}
