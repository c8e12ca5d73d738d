// Package handler serves the admin HTTP surface.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rserver/internal/config"
	"rserver/internal/metrics"
)

// RegisterRoutes wires all admin routes onto the Echo instance. The metrics
// route is registered only when metrics are enabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
			Registry: m.Registry,
		})))
	}
}
