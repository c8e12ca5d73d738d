// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/rserver/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='RSERVER_CONFIG'"`
	Host        string `kong:"help='Listen host (overrides config).',env='RSERVER_HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='RSERVER_PORT'"`
	EnableProxy bool   `kong:"name='enable-proxy',help='Forward every connection to the upstream proxy.'"`
	ProxyHost   string `kong:"name='proxy-host',help='Upstream proxy host (required with --enable-proxy).'"`
	ProxyPort   int    `kong:"name='proxy-port',help='Upstream proxy port (required with --enable-proxy).'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat   string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
	AdminPort   int    `kong:"name='admin-port',help='Serve health, status and metrics on this port.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Admin    AdminConfig    `toml:"admin"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds the proxy listener settings.
type ServerConfig struct {
	Host          string          `toml:"host"`
	Port          int             `toml:"port"` // 0 means "use default" (8080)
	ReadChunkSize int             `toml:"read_chunk_size"`
	RateLimit     RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig throttles how fast new connections are accepted.
type RateLimitConfig struct {
	Enabled              bool    `toml:"enabled"`
	ConnectionsPerSecond float64 `toml:"connections_per_second"`
	Burst                int     `toml:"burst"`
}

// UpstreamConfig selects an upstream proxy that receives every connection.
type UpstreamConfig struct {
	Enabled            bool   `toml:"enabled"`
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	DialTimeoutSeconds int    `toml:"dial_timeout_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AdminConfig holds the admin HTTP listener settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or RSERVER_CONFIG), it searches
// /etc/rserver/config.toml then configs/config.toml. Without a file the
// built-in defaults apply.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.EnableProxy {
		c.Upstream.Enabled = true
	}
	if cli.ProxyHost != "" {
		c.Upstream.Host = cli.ProxyHost
	}
	if cli.ProxyPort != 0 {
		c.Upstream.Port = cli.ProxyPort
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
	if cli.AdminPort != 0 {
		c.Admin.Enabled = true
		c.Admin.Port = cli.AdminPort
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.ReadChunkSize < 0 {
		return fmt.Errorf("server.read_chunk_size must be non-negative; got %d", c.Server.ReadChunkSize)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.ConnectionsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.connections_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.ConnectionsPerSecond)
	}
	if c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit.burst must be non-negative; got %d", c.Server.RateLimit.Burst)
	}

	// An enabled upstream needs a complete address.
	if c.Upstream.Enabled {
		if c.Upstream.Host == "" {
			return fmt.Errorf("upstream.host is required when the upstream proxy is enabled")
		}
		if c.Upstream.Port < 1 || c.Upstream.Port > 65535 {
			return fmt.Errorf("upstream.port must be 1–65535 when the upstream proxy is enabled; got %d", c.Upstream.Port)
		}
	}
	if c.Upstream.DialTimeoutSeconds < 0 {
		return fmt.Errorf("upstream.dial_timeout_seconds must be non-negative; got %d", c.Upstream.DialTimeoutSeconds)
	}

	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}

	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with defaults. For integer fields zero
// means "unset" because TOML cannot distinguish an explicit 0 from an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadChunkSize == 0 {
		c.Server.ReadChunkSize = 1024
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = 1
	}
	if c.Upstream.DialTimeoutSeconds == 0 {
		c.Upstream.DialTimeoutSeconds = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the proxy listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr returns the upstream proxy address as host:port.
func (c *UpstreamConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WarnPermissions logs a warning if the config file is writable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o022 != 0 {
		logger.Warn("config file is writable by group/others; consider chmod 644",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
