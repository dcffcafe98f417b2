//go:build !windows

package launcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/llonebot/llbot-cli/internal/config"
	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/login"
	"github.com/llonebot/llbot-cli/internal/paths"
	"github.com/llonebot/llbot-cli/internal/pmhq"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// idleAPI never produces events.
type idleAPI struct{}

func (idleAPI) RequestQRCode(context.Context) error { return nil }
func (idleAPI) Stream(ctx context.Context, _ func(pmhq.Event) bool) error {
	<-ctx.Done()
	return ctx.Err()
}
func (idleAPI) SelfInfo(context.Context) (domain.SelfInfo, error) { return domain.SelfInfo{}, nil }

// install writes a fake worker script plus the files it depends on.
func install(t *testing.T, script string) *config.Config {
	t.Helper()
	root := t.TempDir()
	layout := paths.NewLayoutFor(root, "linux")
	os.MkdirAll(layout.PMHQDir, 0o755)
	os.MkdirAll(layout.LLBotDir, 0o755)
	if err := os.WriteFile(layout.PMHQExe, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(layout.NodeExe, nil, 0o755)
	os.WriteFile(layout.LLBotScript, nil, 0o644)

	cfg := config.DefaultConfig(root)
	cfg.SettleDelay = 0
	return cfg
}

func newLauncher(cfg *config.Config, out, errOut io.Writer, findPort func(int, int) (int, error)) *Launcher {
	return New(cfg, Options{
		Out:      out,
		Err:      errOut,
		GOOS:     "linux",
		FindPort: findPort,
		NewAPI:   func(int) login.API { return idleAPI{} },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func fixedPort(int, int) (int, error) { return 13555, nil }

func TestRunMirrorsWorkerExitCode(t *testing.T) {
	cfg := install(t, `echo "args: $*"; echo "QQ 进程 PID: notapid"; echo boom >&2; exit 7`)
	var out, errOut syncBuffer

	code, err := newLauncher(cfg, &out, &errOut, fixedPort).Run(context.Background(), []string{"--extra"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}

	stdout := out.String()
	if !strings.Contains(stdout, "Port: 13555") {
		t.Fatalf("missing banner:\n%s", stdout)
	}
	if !strings.Contains(stdout, "args: --port 13555 --extra --sub-cmd-workdir") || !strings.Contains(stdout, "--pmhq-port=13555") {
		t.Fatalf("worker args not relayed:\n%s", stdout)
	}
	if !strings.Contains(errOut.String(), "boom") || !strings.Contains(errOut.String(), "pmhq exited with status 7") {
		t.Fatalf("stderr:\n%s", errOut.String())
	}
}

func TestRunMissingFileSkipsPortSearch(t *testing.T) {
	cfg := config.DefaultConfig(t.TempDir())
	called := false
	findPort := func(int, int) (int, error) {
		called = true
		return 0, nil
	}

	code, err := newLauncher(cfg, io.Discard, io.Discard, findPort).Run(context.Background(), nil)
	var missing domain.ErrMissingFile
	if !errors.As(err, &missing) || code != 1 {
		t.Fatalf("Run = %d, %v; want ErrMissingFile", code, err)
	}
	if called {
		t.Fatal("port search ran before validation")
	}
}

func TestRunNoFreePort(t *testing.T) {
	cfg := install(t, "exit 0")
	noPort := func(int, int) (int, error) { return 0, domain.ErrNoFreePort }

	code, err := newLauncher(cfg, io.Discard, io.Discard, noPort).Run(context.Background(), nil)
	if !errors.Is(err, domain.ErrNoFreePort) || code != 1 {
		t.Fatalf("Run = %d, %v; want ErrNoFreePort", code, err)
	}
}

func TestRunInterruptTerminatesWorker(t *testing.T) {
	cfg := install(t, "sleep 30")
	l := newLauncher(cfg, io.Discard, io.Discard, fixedPort)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	code, err := l.Run(ctx, nil)
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v; want 0, nil", code, err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("interrupt did not stop the worker promptly")
	}

	select {
	case <-l.proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker still running after interrupt")
	}
}

func TestStatusSnapshot(t *testing.T) {
	cfg := install(t, "exit 0")
	l := newLauncher(cfg, io.Discard, io.Discard, fixedPort)
	if _, err := l.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := l.Status()
	if st.Port != 13555 || st.State != domain.StateAwaitingStream.String() || st.WorkerPID != 0 {
		t.Fatalf("Status = %+v", st)
	}
	if l.QRCodeImage() != nil {
		t.Fatal("qrcode image without any push")
	}
}
