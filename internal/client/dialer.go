// Package client provides the outbound TCP dialer for remote destinations.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"rserver/internal/config"
	"rserver/internal/metrics"
	"rserver/internal/model"
)

// Dialer opens the single outbound connection for a routed request.
type Dialer struct {
	dialer  *net.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDialer creates a Dialer with the configured connect timeout.
// The metrics parameter is optional; pass nil to disable dial metrics recording.
func NewDialer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Dialer {
	return &Dialer{
		dialer: &net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		},
		logger:  logger.With("component", "dialer"),
		metrics: m,
	}
}

// DialContext connects to addr once. Failures are wrapped in
// model.ErrRemoteConnect; there is no retry and no fallback route.
func (d *Dialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	start := time.Now()
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	duration := time.Since(start)

	if d.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		d.metrics.DialDuration.WithLabelValues(result).Observe(duration.Seconds())
	}

	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", model.ErrRemoteConnect, addr, err)
	}

	d.logger.Debug("connected",
		"addr", addr,
		"duration_ms", duration.Milliseconds(),
	)
	return conn, nil
}
