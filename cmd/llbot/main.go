package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/llonebot/llbot-cli/internal/config"
	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/fsutil"
	"github.com/llonebot/llbot-cli/internal/launcher"
	"github.com/llonebot/llbot-cli/internal/paths"
	"github.com/llonebot/llbot-cli/internal/supervisor"
	"github.com/llonebot/llbot-cli/internal/updater"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// exitCode carries a process exit status out of the command.
type exitCode int

func (c exitCode) Error() string {
	return fmt.Sprintf("exit status %d", int(c))
}

// cliArgs is the command line split into launcher flags and worker arguments.
type cliArgs struct {
	update     bool
	assumeYes  bool
	forwardRaw bool
	worker     []string
}

// splitArgs pulls the launcher's own flags out of args. Everything else is
// passed to pmhq untouched.
func splitArgs(args []string) cliArgs {
	var out cliArgs
	out.worker = make([]string, 0, len(args))
	for _, a := range args {
		switch a {
		case "--update":
			out.update = true
		case "--yes":
			out.assumeYes = true
		case "-h", "--help", "--version":
			out.forwardRaw = true
			out.worker = append(out.worker, a)
		default:
			out.worker = append(out.worker, a)
		}
	}
	return out
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "llbot [pmhq flags...]",
		Short: "Launch PMHQ and LLBot with QR code login",
		Long: `llbot starts the PMHQ worker with the bundled LLBot sub-command, shows the
login QR code and supervises the worker until it exits.

  llbot --update [--yes]   check the registry and update every component
  llbot --help|--version   forwarded to pmhq`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := run(cmd.Context(), splitArgs(args))
			if code != 0 {
				return exitCode(code)
			}
			return nil
		},
	}
}

func run(parent context.Context, args cliArgs) int {
	exeDir := paths.ExecutableDir()
	cfg, err := config.Load(exeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return waitExit(1)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)
	logger.Debug("starting llbot",
		"version", config.Version,
		"build_time", config.BuildTime,
		"exe_dir", exeDir,
	)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case args.forwardRaw:
		return forward(ctx, cfg, args.worker, logger)
	case args.update:
		return update(ctx, cfg, args.assumeYes, logger)
	}

	l := launcher.New(cfg, launcher.Options{Logger: logger})
	code, err := l.Run(ctx, args.worker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Debug("launcher failed", "err", err)
		return waitExit(code)
	}
	return code
}

// forward runs pmhq with args for help and version output.
func forward(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	fmt.Printf("LLBot CLI %s\n", config.Version)

	layout := paths.NewLayout(cfg.ExeDir)
	if !fsutil.Exists(layout.PMHQExe) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", domain.ErrMissingFile{What: "pmhq", Path: layout.PMHQExe})
		return 1
	}

	proc := supervisor.New(supervisor.Options{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger})
	if err := proc.Start(ctx, supervisor.Command{Path: layout.PMHQExe, Args: args}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	code, err := proc.Wait(ctx)
	if err != nil {
		return 1
	}
	if code < 0 {
		return 1
	}
	return code
}

func update(ctx context.Context, cfg *config.Config, assumeYes bool, logger *slog.Logger) int {
	u := updater.New(cfg, updater.Options{
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		AssumeYes:   assumeYes,
		Logger:      logger,
	})

	err := u.Run(ctx)
	switch {
	case err == nil, errors.Is(err, domain.ErrHandoff):
		return 0
	case errors.Is(err, context.Canceled):
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		return waitExit(1)
	}
}

// waitExit keeps a double-clicked console window open on windows so the
// error stays readable.
func waitExit(code int) int {
	if runtime.GOOS != "windows" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return code
	}
	fmt.Println()
	fmt.Println("Press Enter to exit...")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	return code
}

func main() {
	err := newRootCmd().Execute()
	var code exitCode
	switch {
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
