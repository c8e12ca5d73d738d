// Package service implements the per-connection handling pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"rserver/internal/config"
	"rserver/internal/metrics"
	"rserver/internal/model"
	"rserver/internal/parser"
	"rserver/internal/relay"
	"rserver/internal/router"
	"rserver/internal/stream"
)

// Dialer opens the outbound connection for a routed request.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
}

// ConnHandler runs read → parse → route → connect → relay for one client
// connection. A ConnHandler is shared by all connections; everything it
// keeps per connection lives on the stack of Handle.
type ConnHandler struct {
	upstream config.UpstreamConfig
	reader   stream.MessageReader
	dialer   Dialer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	nextID atomic.Uint64
	active atomic.Int64
}

// NewConnHandler creates a ConnHandler. The metrics parameter is optional.
func NewConnHandler(cfg *config.Config, reader stream.MessageReader, dialer Dialer, logger *slog.Logger, m *metrics.Metrics) *ConnHandler {
	return &ConnHandler{
		upstream: cfg.Upstream,
		reader:   reader,
		dialer:   dialer,
		logger:   logger.With("component", "conn_handler"),
		metrics:  m,
	}
}

// ActiveConnections returns the number of connections currently being handled.
func (h *ConnHandler) ActiveConnections() int64 {
	return h.active.Load()
}

// outcome is what one pass through the pipeline produced.
type outcome struct {
	req    *model.Request
	route  router.Route
	routed bool
	result relay.Result
}

// Handle serves conn to completion and closes it. Errors are logged here and
// also returned; they never affect other connections.
func (h *ConnHandler) Handle(ctx context.Context, conn net.Conn) error {
	id := h.nextID.Add(1)
	start := time.Now()
	logger := h.logger.With("conn_id", id, "remote_addr", conn.RemoteAddr().String())

	h.active.Add(1)
	defer h.active.Add(-1)
	if h.metrics != nil {
		h.metrics.ConnectionsInFlight.Inc()
		defer h.metrics.ConnectionsInFlight.Dec()
	}

	out, err := h.serve(ctx, conn, logger)
	h.record(logger, out, err, time.Since(start))
	return err
}

func (h *ConnHandler) serve(ctx context.Context, conn net.Conn, logger *slog.Logger) (outcome, error) {
	var out outcome
	defer func() { _ = conn.Close() }()

	raw, err := h.reader.ReadMessage(conn)
	if err != nil {
		if len(raw) == 0 {
			return out, fmt.Errorf("%w: read request: %w", model.ErrRelayIO, err)
		}
		logger.Debug("request read ended with error; parsing what arrived",
			"err", err,
			"bytes", len(raw),
		)
	}
	if len(raw) == 0 {
		return out, fmt.Errorf("%w: empty request", model.ErrMalformedRequest)
	}

	req, err := parser.Parse(raw)
	if err != nil {
		return out, err
	}
	out.req = req
	out.route = router.Resolve(req, &h.upstream)
	out.routed = true

	logger.Debug("request parsed",
		"method", req.Method,
		"target", req.Target,
		"dest", out.route.Addr,
		"via_upstream", out.route.ViaUpstream,
	)

	remote, err := h.dialer.DialContext(ctx, out.route.Addr)
	if err != nil {
		return out, err
	}
	defer func() { _ = remote.Close() }()

	switch {
	case out.route.Strategy == model.MethodConnect && out.route.ViaUpstream:
		out.result, err = relay.TunnelThrough(conn, remote, req.Raw)
	case out.route.Strategy == model.MethodConnect:
		out.result, err = relay.Tunnel(conn, remote, req.Version, req.Body)
	default:
		out.result, err = relay.Direct(conn, remote, req, h.reader)
	}
	return out, err
}

func (h *ConnHandler) record(logger *slog.Logger, out outcome, err error, elapsed time.Duration) {
	strategy := "none"
	attrs := []any{
		"duration_ms", elapsed.Milliseconds(),
		"bytes_up", out.result.Upstream,
		"bytes_down", out.result.Downstream,
	}
	if out.routed {
		strategy = out.route.Strategy.String()
		attrs = append(attrs,
			"method", out.req.Method,
			"dest", out.route.Addr,
			"strategy", strategy,
		)
	}

	kind := model.ErrorKind(err)
	if h.metrics != nil {
		h.metrics.ConnectionsTotal.WithLabelValues(strategy, kind).Inc()
		h.metrics.ConnectionDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
		h.metrics.AddRelayBytes(metrics.DirectionUpstream, out.result.Upstream)
		h.metrics.AddRelayBytes(metrics.DirectionDownstream, out.result.Downstream)
	}

	switch {
	case err == nil:
		logger.Info("connection handled", attrs...)
	case errors.Is(err, model.ErrMalformedRequest):
		logger.Warn("malformed request", append(attrs, "err", err)...)
	default:
		logger.Error("connection failed", append(attrs, "kind", kind, "err", err)...)
	}
}
