// Package server accepts client connections and hands each one to its own
// handling goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rserver/internal/config"
	"rserver/internal/metrics"
	"rserver/internal/model"
)

// Handler serves one accepted connection to completion and closes it.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn) error
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server is the connection acceptor for the proxy listener.
type Server struct {
	addr    string
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	serving  bool
	conns    sync.WaitGroup
	done     chan struct{}
}

// New creates a Server for the configured listen address. The metrics
// parameter is optional.
func New(cfg *config.Config, h Handler, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		addr:    cfg.Server.Addr(),
		handler: h,
		logger:  logger.With("component", "server"),
		metrics: m,
		done:    make(chan struct{}),
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(rl.ConnectionsPerSecond), max(rl.Burst, 1))
	}
	return s
}

// Listen binds the listening socket. Failure is wrapped in model.ErrBind.
// The listener is owned by the Server from here on, so Shutdown closes it
// even if Serve never runs.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrBind, s.addr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: %s: %w", model.ErrBind, s.addr, net.ErrClosed)
	}
	s.listener = ln
	return ln, nil
}

// Serve accepts connections on ln until ln is closed. Each connection is
// handled on its own goroutine that shares nothing with its siblings. Accept
// errors are logged and retried with backoff; Serve returns nil once the
// listener is closed by Shutdown, or at once if Shutdown already ran.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.listener = ln
	s.serving = true
	s.mu.Unlock()
	defer close(s.done)

	s.logger.Info("accepting connections", "addr", ln.Addr().String())

	ctx := context.Background()
	var backoff time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: rate limiter: %w", model.ErrAccept, err)
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if s.metrics != nil {
				s.metrics.AcceptErrors.Inc()
			}
			backoff = nextBackoff(backoff)
			s.logger.Error("accept failed; retrying",
				"err", fmt.Errorf("%w: %w", model.ErrAccept, err),
				"retry_in", backoff,
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			_ = s.handler.Handle(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and waits for in-flight connections until
// ctx is done. Connections still running at that point are left to finish
// on their own.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln, serving := s.listener, s.serving
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("close listener: %w", err)
		}
	}
	if !serving {
		return nil
	}

	idle := make(chan struct{})
	go func() {
		<-s.done
		s.conns.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(d*2, maxAcceptBackoff)
}
