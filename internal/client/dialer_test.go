package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/net/nettest"

	"rserver/internal/config"
	"rserver/internal/metrics"
	"rserver/internal/model"
)

func newTestDialer(m *metrics.Metrics) *Dialer {
	cfg := &config.Config{Upstream: config.UpstreamConfig{DialTimeoutSeconds: 5}}
	return NewDialer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
}

func TestDialContext_Success(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("NewLocalListener: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	m := metrics.New()
	conn, err := newTestDialer(m).DialContext(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("DialContext() error = %v", err)
	}
	defer conn.Close()

	if c, ok := <-accepted; ok {
		c.Close()
	} else {
		t.Error("listener did not accept the connection")
	}

	if n := testutil.CollectAndCount(m.DialDuration, "rserver_dial_duration_seconds"); n != 1 {
		t.Errorf("dial duration series = %d, want 1", n)
	}
}

func TestDialContext_Refused(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("NewLocalListener: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	conn, err := newTestDialer(nil).DialContext(context.Background(), addr)
	if err == nil {
		conn.Close()
		t.Fatal("DialContext() expected error for closed port, got nil")
	}
	if !errors.Is(err, model.ErrRemoteConnect) {
		t.Errorf("error = %v, want ErrRemoteConnect", err)
	}
}

func TestDialContext_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestDialer(nil).DialContext(ctx, "127.0.0.1:1")
	if !errors.Is(err, model.ErrRemoteConnect) {
		t.Fatalf("error = %v, want ErrRemoteConnect", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
}
