package launcher

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/paths"
)

func TestWorkerArgs(t *testing.T) {
	layout := paths.NewLayoutFor("/opt/llbot", "linux")
	got := WorkerArgs(13002, []string{"--headless", "-q", "12345"}, layout)
	want := []string{
		"--port", "13002",
		"--headless", "-q", "12345",
		"--sub-cmd-workdir", layout.LLBotDir,
		"--sub-cmd", "node",
		"--enable-source-maps", "llbot.js",
		"--",
		"--pmhq-port=13002",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("WorkerArgs =\n%q\nwant\n%q", got, want)
	}

	win := paths.NewLayoutFor(`C:\llbot`, "windows")
	if args := WorkerArgs(1, nil, win); args[5] != "node.exe" {
		t.Fatalf("windows sub-cmd = %q", args[5])
	}
}

func TestParseQQPid(t *testing.T) {
	tests := []struct {
		line string
		pid  int
		ok   bool
	}{
		{"QQ 进程 PID: 12345", 12345, true},
		{"QQ进程PID:678", 678, true},
		{"[info] QQ started, PID: 42 (main)", 42, true},
		{"worker PID: 100 QQ PID: 200", 200, true},
		{"PID: 12345", 0, false},
		{"QQ PID: abc", 0, false},
		{"QQ ready", 0, false},
	}
	for _, tt := range tests {
		pid, ok := ParseQQPid(tt.line)
		if pid != tt.pid || ok != tt.ok {
			t.Errorf("ParseQQPid(%q) = %d, %v; want %d, %v", tt.line, pid, ok, tt.pid, tt.ok)
		}
	}
}

func TestShowTerminalQR(t *testing.T) {
	dir := t.TempDir()
	headless := filepath.Join(dir, "headless.json")
	os.WriteFile(headless, []byte("{\n  // run without GUI\n  \"headless\": true,\n}\n"), 0o644)
	gui := filepath.Join(dir, "gui.json")
	os.WriteFile(gui, []byte(`{"headless": false}`), 0o644)
	broken := filepath.Join(dir, "broken.json")
	os.WriteFile(broken, []byte(`{"headless": `), 0o644)
	missing := filepath.Join(dir, "missing.json")

	tests := []struct {
		name   string
		goos   string
		args   []string
		config string
		want   bool
	}{
		{"linux always", "linux", nil, missing, true},
		{"darwin always", "darwin", nil, gui, true},
		{"windows flag", "windows", []string{"--headless"}, missing, true},
		{"windows config with comments", "windows", nil, headless, true},
		{"windows gui config", "windows", nil, gui, false},
		{"windows broken config", "windows", nil, broken, false},
		{"windows no config", "windows", nil, missing, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShowTerminalQR(tt.goos, tt.args, tt.config); got != tt.want {
				t.Fatalf("ShowTerminalQR = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateReportsFirstMissingFile(t *testing.T) {
	root := t.TempDir()
	layout := paths.NewLayoutFor(root, "linux")

	var missing domain.ErrMissingFile
	if err := Validate(layout); !errors.As(err, &missing) || missing.Path != layout.PMHQExe {
		t.Fatalf("err = %v, want missing pmhq", err)
	}

	os.MkdirAll(layout.PMHQDir, 0o755)
	os.WriteFile(layout.PMHQExe, nil, 0o755)
	if err := Validate(layout); !errors.As(err, &missing) || missing.Path != layout.NodeExe {
		t.Fatalf("err = %v, want missing node", err)
	}

	os.MkdirAll(layout.LLBotDir, 0o755)
	os.WriteFile(layout.NodeExe, nil, 0o755)
	if err := Validate(layout); !errors.As(err, &missing) || missing.What != "llbot.js" {
		t.Fatalf("err = %v, want missing llbot.js", err)
	}

	os.WriteFile(layout.LLBotScript, nil, 0o644)
	if err := Validate(layout); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMigrateLegacy(t *testing.T) {
	root := t.TempDir()
	layout := paths.NewLayoutFor(root, "linux")
	os.MkdirAll(filepath.Join(root, "data"), 0o755)
	os.WriteFile(filepath.Join(root, "data", "db.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(root, "pmhq_config.json"), []byte(`{"headless":true}`), 0o644)

	MigrateLegacy(layout, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := os.Stat(filepath.Join(layout.LLBotDir, "data", "db.json")); err != nil {
		t.Fatalf("data not migrated: %v", err)
	}
	if data, err := os.ReadFile(layout.PMHQConfig); err != nil || string(data) != `{"headless":true}` {
		t.Fatalf("config not migrated: %q %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(root, "data")); !os.IsNotExist(err) {
		t.Fatal("legacy data left in place")
	}
}
