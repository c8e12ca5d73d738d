package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"rserver/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatusSource reports live proxy state for the status endpoint.
type StatusSource interface {
	ActiveConnections() int64
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
	source  StatusSource
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, src StatusSource) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, source: src}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body of GET /proxy/status.
type StatusResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Listen            string `json:"listen"`
	UpstreamEnabled   bool   `json:"upstream_enabled"`
	Upstream          string `json:"upstream,omitempty"`
	ActiveConnections int64  `json:"active_connections"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := StatusResponse{
		Status:          "ok",
		Version:         string(h.version),
		Listen:          h.cfg.Server.Addr(),
		UpstreamEnabled: h.cfg.Upstream.Enabled,
	}
	if h.cfg.Upstream.Enabled {
		resp.Upstream = h.cfg.Upstream.Addr()
	}
	if h.source != nil {
		resp.ActiveConnections = h.source.ActiveConnections()
	}
	return c.JSON(http.StatusOK, resp)
}
