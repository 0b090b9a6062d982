// Package api serves the escalator's ops endpoints and its maintenance admin API.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/escalator/internal/catalog"
	"github.com/kneutral-org/escalator/internal/maintenance"
	"github.com/kneutral-org/escalator/internal/middleware"
)

// Handler manages maintenance windows over HTTP.
type Handler struct {
	store   maintenance.Store
	checker maintenance.Checker
	hosts   catalog.Store
	now     func() time.Time
	logger  zerolog.Logger
}

// NewHandler creates a maintenance handler. hosts resolves host IDs for the
// per-host maintenance lookup.
func NewHandler(store maintenance.Store, checker maintenance.Checker, hosts catalog.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		checker: checker,
		hosts:   hosts,
		now:     time.Now,
		logger:  logger.With().Str("component", "maintenance-api").Logger(),
	}
}

// RegisterRoutes registers the maintenance routes on router.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/maintenances", h.CreateMaintenance)
	router.GET("/maintenances", h.ListActiveMaintenances)
	router.GET("/maintenances/:id", h.GetMaintenance)
	router.DELETE("/maintenances/:id", h.DeleteMaintenance)
	router.GET("/hosts/:id/maintenance", h.HostMaintenance)
}

// ListResponse lists maintenance windows.
type ListResponse struct {
	Maintenances []*maintenance.Window `json:"maintenances"`
	Count        int                   `json:"count"`
	At           time.Time             `json:"at"`
}

// HostMaintenanceResponse reports the windows covering a host.
type HostMaintenanceResponse struct {
	HostID        uint64        `json:"host_id"`
	InMaintenance bool          `json:"in_maintenance"`
	At            time.Time     `json:"at"`
	Windows       []WindowMatch `json:"windows"`
}

// WindowMatch is one window covering a host and how it matched.
type WindowMatch struct {
	Window    *maintenance.Window   `json:"window"`
	MatchType maintenance.MatchType `json:"match_type"`
	Reason    string                `json:"reason"`
}

// CreateMaintenance handles POST /maintenances.
func (h *Handler) CreateMaintenance(c *gin.Context) {
	var window maintenance.Window
	if err := c.ShouldBindJSON(&window); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.AbortUnreadableBody(c, err)
			return
		}
		respondError(c, http.StatusBadRequest, "invalidRequest", err.Error())
		return
	}
	window.ID = 0

	created, err := h.store.Create(c.Request.Context(), &window)
	if err != nil {
		if errors.Is(err, maintenance.ErrInvalidWindow) {
			respondError(c, http.StatusBadRequest, "invalidWindow", err.Error())
			return
		}
		h.internalError(c, err, "failed to create maintenance window")
		return
	}

	h.logger.Info().
		Uint64("maintenance_id", created.ID).
		Str("name", created.Name).
		Time("active_since", created.ActiveSince).
		Time("active_till", created.ActiveTill).
		Msg("maintenance window created")
	c.JSON(http.StatusCreated, created)
}

// ListActiveMaintenances handles GET /maintenances, optionally ?at=<RFC3339 or unix seconds>.
func (h *Handler) ListActiveMaintenances(c *gin.Context) {
	at, ok := h.atParam(c)
	if !ok {
		return
	}

	windows, err := h.store.ListActive(c.Request.Context(), at)
	if err != nil {
		h.internalError(c, err, "failed to list maintenance windows")
		return
	}
	if windows == nil {
		windows = []*maintenance.Window{}
	}
	c.JSON(http.StatusOK, ListResponse{Maintenances: windows, Count: len(windows), At: at})
}

// GetMaintenance handles GET /maintenances/:id.
func (h *Handler) GetMaintenance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	window, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, maintenance.ErrNotFound) {
			respondError(c, http.StatusNotFound, "notFound", "maintenance window not found")
			return
		}
		h.internalError(c, err, "failed to get maintenance window")
		return
	}
	c.JSON(http.StatusOK, window)
}

// DeleteMaintenance handles DELETE /maintenances/:id.
func (h *Handler) DeleteMaintenance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, maintenance.ErrNotFound) {
			respondError(c, http.StatusNotFound, "notFound", "maintenance window not found")
			return
		}
		h.internalError(c, err, "failed to delete maintenance window")
		return
	}

	h.logger.Info().Uint64("maintenance_id", id).Msg("maintenance window deleted")
	c.Status(http.StatusNoContent)
}

// HostMaintenance handles GET /hosts/:id/maintenance.
func (h *Handler) HostMaintenance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	at, ok := h.atParam(c)
	if !ok {
		return
	}

	host, err := h.hosts.GetHost(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(c, http.StatusNotFound, "notFound", "host not found")
			return
		}
		h.internalError(c, err, "failed to get host")
		return
	}

	results, err := h.checker.CheckAll(c.Request.Context(), host, at)
	if err != nil {
		h.internalError(c, err, "failed to check maintenance")
		return
	}

	resp := HostMaintenanceResponse{HostID: host.ID, At: at, Windows: make([]WindowMatch, 0, len(results))}
	for _, r := range results {
		resp.Windows = append(resp.Windows, WindowMatch{Window: r.Window, MatchType: r.Match.MatchType, Reason: r.Match.Reason})
	}
	resp.InMaintenance = len(resp.Windows) > 0
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) atParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("at")
	if raw == "" {
		return h.now(), true
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), true
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalidRequest", "at must be RFC3339 or unix seconds")
		return time.Time{}, false
	}
	return at, true
}

func idParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "invalidRequest", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) internalError(c *gin.Context, err error, message string) {
	_ = c.Error(err)
	h.logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
	respondError(c, http.StatusInternalServerError, "internalError", message)
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, middleware.ErrorResponse{Error: code, Message: message})
}
