package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "0.0.0-dev"
	BuildTime = "unknown"
)

const (
	// FileName is the optional TOML config file next to the executable.
	FileName = "llbot.toml"

	// DotEnvName is the optional environment file next to the executable.
	DotEnvName = ".env"
)

// RegistryConfig describes the package registries used by the updater.
type RegistryConfig struct {
	// Primary is the authoritative npm registry.
	Primary string

	// Mirrors are raced when the primary fails and when picking a download host.
	Mirrors []string

	// Timeout bounds each metadata request.
	Timeout time.Duration

	// RetryMax is the number of retries for a single registry request.
	RetryMax int
}

// Config holds all launcher configuration.
type Config struct {
	// ExeDir is the directory the launcher executable lives in. All
	// component paths are resolved relative to it.
	ExeDir string

	// Debug enables verbose logging.
	Debug bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// PortStart and PortEnd bound the half-open range scanned for the worker port.
	PortStart int
	PortEnd   int

	Registry RegistryConfig

	// DownloadTimeout bounds a single tarball download.
	DownloadTimeout time.Duration

	// APITimeout bounds each call to the worker control API.
	APITimeout time.Duration

	// StreamTimeout bounds one push-event stream connection; the listener
	// reconnects when it elapses.
	StreamTimeout time.Duration

	// SettleDelay is how long the login monitor waits before its first request.
	SettleDelay time.Duration

	// RefreshWindow is how long a QR code is kept before a new one is requested.
	RefreshWindow time.Duration

	// ReconnectDelay is the pause after a failed stream connection.
	ReconnectDelay time.Duration

	// StatusAddr enables the local status server when non-empty.
	StatusAddr string

	// StatusToken, when set, is required as a bearer token by the status server.
	StatusToken string
}

// DefaultConfig returns a Config populated with the stock registries and timings.
func DefaultConfig(exeDir string) *Config {
	return &Config{
		ExeDir:    exeDir,
		LogLevel:  "info",
		PortStart: 13000,
		PortEnd:   14000,
		Registry: RegistryConfig{
			Primary: "https://registry.npmjs.org",
			Mirrors: []string{
				"https://registry.npmmirror.com",
				"https://mirrors.huaweicloud.com/repository/npm",
				"https://mirrors.cloud.tencent.com/npm",
			},
			Timeout:  15 * time.Second,
			RetryMax: 1,
		},
		DownloadTimeout: 300 * time.Second,
		APITimeout:      10 * time.Second,
		StreamTimeout:   300 * time.Second,
		SettleDelay:     3 * time.Second,
		RefreshWindow:   120 * time.Second,
		ReconnectDelay:  2 * time.Second,
	}
}

// Load builds the configuration for a launcher installed in exeDir.
// Precedence, lowest first: defaults, llbot.toml, .env, process environment.
func Load(exeDir string) (*Config, error) {
	cfg := DefaultConfig(exeDir)

	if err := cfg.applyFile(filepath.Join(exeDir, FileName)); err != nil {
		return nil, err
	}

	dotenv, err := readDotEnv(filepath.Join(exeDir, DotEnvName))
	if err != nil {
		return nil, err
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(dotenv[key])
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) applyEnv(lookup func(string) string) error {
	if v := lookup("LLBOT_DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}
	if v := lookup("LLBOT_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := lookup("LLBOT_STATUS_ADDR"); v != "" {
		c.StatusAddr = v
	}
	if v := lookup("LLBOT_STATUS_TOKEN"); v != "" {
		c.StatusToken = v
	}
	if v := lookup("LLBOT_REGISTRY"); v != "" {
		c.Registry.Primary = strings.TrimRight(v, "/")
	}
	if v := lookup("LLBOT_REGISTRY_MIRRORS"); v != "" {
		c.Registry.Mirrors = splitList(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"LLBOT_PORT_START", &c.PortStart},
		{"LLBOT_PORT_END", &c.PortEnd},
		{"LLBOT_REGISTRY_RETRIES", &c.Registry.RetryMax},
	}
	for _, item := range ints {
		v := lookup(item.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", item.key, err)
		}
		*item.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LLBOT_REGISTRY_TIMEOUT", &c.Registry.Timeout},
		{"LLBOT_DOWNLOAD_TIMEOUT", &c.DownloadTimeout},
		{"LLBOT_API_TIMEOUT", &c.APITimeout},
	}
	for _, item := range durations {
		v := lookup(item.key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", item.key, err)
		}
		*item.dst = d
	}
	return nil
}

// Validate rejects configurations the launcher cannot run with.
func (c *Config) Validate() error {
	if c.PortStart <= 0 || c.PortEnd > 65536 || c.PortEnd <= c.PortStart {
		return fmt.Errorf("invalid port range [%d, %d)", c.PortStart, c.PortEnd)
	}
	if c.Registry.Primary == "" {
		return fmt.Errorf("primary registry is required")
	}
	if c.Registry.RetryMax < 0 {
		return fmt.Errorf("registry retries must not be negative")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimRight(strings.TrimSpace(part), "/"); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewLogger creates the launcher's structured logger on stderr. A terminal
// gets the text handler; pipes and files get JSON.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
