package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/llonebot/llbot-cli/internal/config"
	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/login"
	"github.com/llonebot/llbot-cli/internal/network"
	"github.com/llonebot/llbot-cli/internal/paths"
	"github.com/llonebot/llbot-cli/internal/pmhq"
	"github.com/llonebot/llbot-cli/internal/qrcode"
	"github.com/llonebot/llbot-cli/internal/server"
	"github.com/llonebot/llbot-cli/internal/supervisor"
)

// Options overrides launcher collaborators. Zero values select the real
// implementations.
type Options struct {
	Out io.Writer
	Err io.Writer

	GOOS string

	// FindPort picks the worker port from the configured range.
	FindPort func(start, end int) (int, error)

	// NewAPI builds the control client for a worker on port.
	NewAPI func(port int) login.API

	Logger *slog.Logger
}

// Launcher runs one supervised worker session with QR login.
type Launcher struct {
	cfg    *config.Config
	layout paths.Layout
	logger *slog.Logger

	out    io.Writer
	errOut io.Writer
	goos   string

	findPort func(start, end int) (int, error)
	newAPI   func(port int) login.API

	port      int
	proc      *supervisor.Process
	monitor   *login.Monitor
	presenter *qrcode.Presenter
}

func New(cfg *config.Config, opts Options) *Launcher {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FindPort == nil {
		opts.FindPort = network.FindAvailablePort
	}
	if opts.NewAPI == nil {
		opts.NewAPI = func(port int) login.API {
			return pmhq.NewClient(pmhq.BaseURL(port), pmhq.Options{
				APITimeout:    cfg.APITimeout,
				StreamTimeout: cfg.StreamTimeout,
				Logger:        opts.Logger,
			})
		}
	}

	return &Launcher{
		cfg:      cfg,
		layout:   paths.NewLayoutFor(cfg.ExeDir, opts.GOOS),
		logger:   opts.Logger,
		out:      opts.Out,
		errOut:   opts.Err,
		goos:     opts.GOOS,
		findPort: opts.FindPort,
		newAPI:   opts.NewAPI,
	}
}

func (l *Launcher) Layout() paths.Layout {
	return l.layout
}

// Run starts the worker with userArgs, drives the login flow alongside it
// and returns the worker's exit code. Cancelling ctx kills the worker group
// and returns 0. Errors are launcher failures that happened before the
// worker could run.
func (l *Launcher) Run(ctx context.Context, userArgs []string) (int, error) {
	MigrateLegacy(l.layout, l.out, l.logger)

	if err := Validate(l.layout); err != nil {
		return 1, err
	}

	port, err := l.findPort(l.cfg.PortStart, l.cfg.PortEnd)
	if err != nil {
		return 1, fmt.Errorf("find worker port in [%d, %d): %w", l.cfg.PortStart, l.cfg.PortEnd, err)
	}
	l.port = port

	fmt.Fprintln(l.out, "LLBot CLI launcher")
	fmt.Fprintln(l.out, "==================")
	fmt.Fprintf(l.out, "Port: %d\n", port)
	fmt.Fprintln(l.out)

	var proc *supervisor.Process
	proc = supervisor.New(supervisor.Options{
		Stdout: l.out,
		Stderr: l.errOut,
		Logger: l.logger,
		Observers: []supervisor.LineObserver{func(line string) {
			if pid, ok := ParseQQPid(line); ok {
				l.logger.Debug("tracking QQ process", "pid", pid)
				proc.Track(pid)
			}
		}},
	})
	l.proc = proc

	command := supervisor.Command{Path: l.layout.PMHQExe, Args: WorkerArgs(port, userArgs, l.layout)}
	if err := proc.Start(ctx, command); err != nil {
		return 1, err
	}

	l.presenter = qrcode.NewPresenter(l.out, ShowTerminalQR(l.goos, userArgs, l.layout.PMHQConfig), l.layout.QRCodeImage, l.logger)
	l.monitor = login.NewMonitor(l.newAPI(port), login.Options{
		SettleDelay:    l.cfg.SettleDelay,
		RefreshWindow:  l.cfg.RefreshWindow,
		ReconnectDelay: l.cfg.ReconnectDelay,
		OnQRCode:       l.presenter.Present,
		OnLogin:        l.reportLogin,
		Logger:         l.logger,
	})

	sessionCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := l.monitor.Run(sessionCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Debug("login monitor stopped", "err", err)
		}
	}()

	if l.cfg.StatusAddr != "" {
		srv := server.NewServer(l.cfg.StatusAddr, l.cfg.StatusToken, l, l.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(sessionCtx); err != nil {
				l.logger.Error("status server", "err", err)
			}
		}()
	}

	code, err := proc.Wait(ctx)
	cancel()
	wg.Wait()

	switch {
	case errors.Is(err, domain.ErrInterrupted):
		l.logger.Info("interrupted, worker group terminated")
		return 0, nil
	case err != nil:
		return 1, err
	}

	if code != 0 {
		fmt.Fprintf(l.errOut, "pmhq exited with status %d\n", code)
	}
	if code < 0 {
		code = 1
	}
	return code, nil
}

func (l *Launcher) reportLogin(info domain.SelfInfo, err error) {
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, "==================")
	fmt.Fprintln(l.out, "Login successful!")
	if err == nil {
		fmt.Fprintf(l.out, "QQ: %s\n", info.UIN)
		if info.Nickname != "" {
			fmt.Fprintf(l.out, "Nickname: %s\n", info.Nickname)
		}
	}
	fmt.Fprintln(l.out, "==================")
	fmt.Fprintln(l.out)
}

// Status reports the session for the status server.
func (l *Launcher) Status() domain.Status {
	return domain.Status{
		State:     l.monitor.State().String(),
		Port:      l.port,
		WorkerPID: l.proc.Pid(),
		Account:   l.monitor.Account(),
	}
}

// QRCodeImage returns the pending login QR image, or nil once logged in.
func (l *Launcher) QRCodeImage() []byte {
	if l.monitor.State() == domain.StateLoggedIn {
		return nil
	}
	return l.presenter.Latest()
}
