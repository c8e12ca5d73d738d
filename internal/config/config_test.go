package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a config.toml in a fresh temp dir and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 9000
read_chunk_size = 4096

[upstream]
enabled = true
host = "proxy.internal"
port = 3128
dial_timeout_seconds = 5

[log]
level = "debug"
format = "text"

[admin]
enabled = true
port = 9100
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Server.ReadChunkSize != 4096 {
		t.Errorf("Server.ReadChunkSize = %d, want %d", cfg.Server.ReadChunkSize, 4096)
	}
	if !cfg.Upstream.Enabled {
		t.Error("Upstream.Enabled = false, want true")
	}
	if got := cfg.Upstream.Addr(); got != "proxy.internal:3128" {
		t.Errorf("Upstream.Addr() = %q, want %q", got, "proxy.internal:3128")
	}
	if cfg.Upstream.DialTimeoutSeconds != 5 {
		t.Errorf("Upstream.DialTimeoutSeconds = %d, want %d", cfg.Upstream.DialTimeoutSeconds, 5)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if got := cfg.Admin.Addr(); got != "127.0.0.1:9100" {
		t.Errorf("Admin.Addr() = %q, want %q", got, "127.0.0.1:9100")
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	orig := configSearchPaths
	configSearchPaths = []string{filepath.Join(t.TempDir(), "missing.toml")}
	t.Cleanup(func() { configSearchPaths = orig })

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.ReadChunkSize != 1024 {
		t.Errorf("default Server.ReadChunkSize = %d, want %d", cfg.Server.ReadChunkSize, 1024)
	}
	if cfg.Upstream.Enabled {
		t.Error("default Upstream.Enabled = true, want false")
	}
	if cfg.Upstream.DialTimeoutSeconds != 30 {
		t.Errorf("default Upstream.DialTimeoutSeconds = %d, want %d", cfg.Upstream.DialTimeoutSeconds, 30)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Admin.Enabled {
		t.Error("default Admin.Enabled = true, want false")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing explicit file, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[upstream]
host = "file-proxy"
port = 1080

[log]
level = "info"
`)

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		Port:        3000,
		EnableProxy: true,
		ProxyHost:   "cli-proxy",
		ProxyPort:   3128,
		LogLevel:    "debug",
		LogFormat:   "text",
		AdminPort:   9200,
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if !cfg.Upstream.Enabled {
		t.Error("Upstream.Enabled = false, want true (CLI override)")
	}
	if got := cfg.Upstream.Addr(); got != "cli-proxy:3128" {
		t.Errorf("Upstream.Addr() = %q, want %q (CLI override)", got, "cli-proxy:3128")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q (CLI override)", cfg.Log.Format, "text")
	}
	if !cfg.Admin.Enabled || cfg.Admin.Port != 9200 {
		t.Errorf("Admin = %+v, want enabled on port 9200 (CLI override)", cfg.Admin)
	}
}

func TestLoad_EnableProxyUsesFileAddress(t *testing.T) {
	path := writeConfig(t, `
[upstream]
host = "file-proxy"
port = 1080
`)

	cfg, err := Load(&CLI{Config: path, EnableProxy: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Upstream.Addr(); got != "file-proxy:1080" {
		t.Errorf("Upstream.Addr() = %q, want %q", got, "file-proxy:1080")
	}
}

func TestLoad_UpstreamRequiresAddress(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "missing host",
			data:    "[upstream]\nenabled = true\nport = 3128\n",
			wantErr: "upstream.host",
		},
		{
			name:    "missing port",
			data:    "[upstream]\nenabled = true\nhost = \"proxy\"\n",
			wantErr: "upstream.port",
		},
		{
			name:    "port out of range",
			data:    "[upstream]\nenabled = true\nhost = \"proxy\"\nport = 70000\n",
			wantErr: "upstream.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_UpstreamDisabledIgnoresAddress(t *testing.T) {
	path := writeConfig(t, "[upstream]\nenabled = false\n")

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled upstream needs no address", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"negative port", "[server]\nport = -1\n", "server.port"},
		{"port too large", "[server]\nport = 65536\n", "server.port"},
		{"negative chunk size", "[server]\nread_chunk_size = -1\n", "read_chunk_size"},
		{"negative dial timeout", "[upstream]\ndial_timeout_seconds = -5\n", "dial_timeout_seconds"},
		{"negative admin port", "[admin]\nport = -1\n", "admin.port"},
		{"invalid log level", "[log]\nlevel = \"verbose\"\n", "log.level"},
		{"invalid log format", "[log]\nformat = \"xml\"\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
connections_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.ConnectionsPerSecond != 50.0 {
		t.Errorf("RateLimit.ConnectionsPerSecond = %v, want 50.0", cfg.Server.RateLimit.ConnectionsPerSecond)
	}
	if cfg.Server.RateLimit.Burst != 1 {
		t.Errorf("RateLimit.Burst = %d, want default 1", cfg.Server.RateLimit.Burst)
	}
}

func TestLoad_RateLimitConfig_Disabled(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8080\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = false by default")
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
connections_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with connections_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "connections_per_second") {
		t.Errorf("error = %q, want mention of connections_per_second", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "writable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := writeConfig(t, "# test")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0644 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	(&Config{}).WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no output without a config file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, "[server]\nport = 8080\n")

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "[server]\nport = 1\n")
	path2 := writeConfig(t, "[server]\nport = 2\n")

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = true
path = "metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithAdminRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"healthz", "/healthz"},
		{"healthz sub", "/healthz/metrics"},
		{"proxy/status", "/proxy/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestAddr(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"server", (&ServerConfig{Host: "127.0.0.1", Port: 3000}).Addr(), "127.0.0.1:3000"},
		{"server ipv6", (&ServerConfig{Host: "::1", Port: 8080}).Addr(), "[::1]:8080"},
		{"upstream", (&UpstreamConfig{Host: "proxy", Port: 3128}).Addr(), "proxy:3128"},
		{"admin", (&AdminConfig{Host: "0.0.0.0", Port: 9090}).Addr(), "0.0.0.0:9090"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Addr() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}
