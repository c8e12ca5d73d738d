package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/time/rate"

	"rserver/internal/client"
	"rserver/internal/config"
	"rserver/internal/handler"
	"rserver/internal/metrics"
	"rserver/internal/middleware"
	"rserver/internal/server"
	"rserver/internal/service"
	"rserver/internal/stream"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("rserver"),
		kong.Description("Transparent intercepting HTTP proxy with CONNECT tunneling."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newMessageReader,
			fx.Annotate(client.NewDialer, fx.As(new(service.Dialer))),
			service.NewConnHandler,
			func(h *service.ConnHandler) server.Handler { return h },
			func(h *service.ConnHandler) handler.StatusSource { return h },
			server.New,
			newEcho,
			handler.NewHealthHandler,
		),
		fx.Invoke(registerAdminRoutes, warnConfigPermissions, startProxy, startAdmin),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newMessageReader(cfg *config.Config) stream.MessageReader {
	return stream.NewChunkReader(cfg.Server.ReadChunkSize)
}

// newEcho builds the admin HTTP server. The connection rate limit, when
// enabled, also applies per client IP to admin requests.
func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.SecurityHeaders())
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
	}

	if rl := cfg.Server.RateLimit; rl.Enabled {
		store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(rl.ConnectionsPerSecond),
			Burst: rl.Burst,
		})
		e.Use(echomw.RateLimiter(store))
		logger.Info("rate limiter enabled", "cps", rl.ConnectionsPerSecond, "burst", rl.Burst)
	}

	return e
}

// registerAdminRoutes wires the admin routes only when the admin server runs.
func registerAdminRoutes(e *echo.Echo, cfg *config.Config, health *handler.HealthHandler, m *metrics.Metrics) {
	if !cfg.Admin.Enabled {
		return
	}
	handler.RegisterRoutes(e, cfg, health, m)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startProxy(lc fx.Lifecycle, srv *server.Server, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := srv.Listen()
			if err != nil {
				return err
			}
			attrs := []any{"addr", ln.Addr().String(), "upstream_enabled", cfg.Upstream.Enabled}
			if cfg.Upstream.Enabled {
				attrs = append(attrs, "upstream", cfg.Upstream.Addr())
			}
			logger.Info("starting proxy", attrs...)
			go func() {
				if err := srv.Serve(ln); err != nil {
					logger.Error("proxy server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down proxy")
			return srv.Shutdown(ctx)
		},
	})
}

func startAdmin(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Admin.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind admin %s: %w", addr, err)
			}
			logger.Info("starting admin server", "addr", addr, "metrics", cfg.Metrics.Enabled)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("admin server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down admin server")
			return e.Shutdown(ctx)
		},
	})
}
