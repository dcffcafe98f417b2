package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "LLBOT_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExeDir != dir {
		t.Errorf("ExeDir = %q, want %q", cfg.ExeDir, dir)
	}
	if cfg.PortStart != 13000 || cfg.PortEnd != 14000 {
		t.Errorf("port range = [%d, %d)", cfg.PortStart, cfg.PortEnd)
	}
	if cfg.Registry.Primary != "https://registry.npmjs.org" {
		t.Errorf("primary = %q", cfg.Registry.Primary)
	}
	if len(cfg.Registry.Mirrors) != 3 {
		t.Errorf("mirrors = %v", cfg.Registry.Mirrors)
	}
	if cfg.RefreshWindow != 120*time.Second {
		t.Errorf("refresh window = %v", cfg.RefreshWindow)
	}
}

func TestLoadFileThenDotEnvThenEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	file := `
log_level = "DEBUG"
status_addr = "127.0.0.1:9000"
download_timeout = "1m"

[ports]
start = 20000
end = 20010

[registry]
primary = "https://primary.example/"
mirrors = ["https://a.example", " https://b.example/ "]
timeout = "3s"
retries = 0

[login]
refresh_window = "30s"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}
	dotenv := "LLBOT_PORT_END=20020\nLLBOT_REGISTRY=https://dotenv.example\n"
	if err := os.WriteFile(filepath.Join(dir, DotEnvName), []byte(dotenv), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLBOT_REGISTRY", "https://env.example")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.StatusAddr != "127.0.0.1:9000" {
		t.Errorf("StatusAddr = %q", cfg.StatusAddr)
	}
	if cfg.PortStart != 20000 || cfg.PortEnd != 20020 {
		t.Errorf("port range = [%d, %d)", cfg.PortStart, cfg.PortEnd)
	}
	if cfg.Registry.Primary != "https://env.example" {
		t.Errorf("primary = %q, environment should win", cfg.Registry.Primary)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.Registry.Mirrors, want) {
		t.Errorf("mirrors = %v, want %v", cfg.Registry.Mirrors, want)
	}
	if cfg.Registry.Timeout != 3*time.Second || cfg.Registry.RetryMax != 0 {
		t.Errorf("registry timeout/retries = %v/%d", cfg.Registry.Timeout, cfg.Registry.RetryMax)
	}
	if cfg.DownloadTimeout != time.Minute {
		t.Errorf("DownloadTimeout = %v", cfg.DownloadTimeout)
	}
	if cfg.RefreshWindow != 30*time.Second {
		t.Errorf("RefreshWindow = %v", cfg.RefreshWindow)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric port", "LLBOT_PORT_START", "abc"},
		{"inverted range", "LLBOT_PORT_END", "100"},
		{"bad duration", "LLBOT_API_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(t.TempDir()); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("ports = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}
