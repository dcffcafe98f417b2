package updater

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/llonebot/llbot-cli/internal/config"
	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/paths"
	"github.com/llonebot/llbot-cli/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Resolver finds the latest published version of a package and the best
// host for downloading it.
type Resolver interface {
	ResolveLatest(ctx context.Context, pkg string) (registry.PackageInfo, error)
	BestMirrorForVersion(ctx context.Context, pkg, version, fallback string) (string, registry.Dist)
}

// Options configures an Updater. Zero values select the running process
// and platform.
type Options struct {
	Layout   paths.Layout
	Resolver Resolver

	// Installer overrides the default retrying downloader.
	Installer *Installer

	In  io.Reader
	Out io.Writer

	// Interactive reports whether In is a terminal; prompts are declined
	// otherwise unless AssumeYes is set.
	Interactive bool
	AssumeYes   bool

	// CurrentVersion is the running launcher's version.
	CurrentVersion string
	ExePath        string
	PID            int

	GOOS   string
	GOARCH string

	// StartHelper launches the self-update helper script detached.
	StartHelper func(script string) error

	// ListRunning and Kill check for processes holding installed files.
	// They are only consulted on windows.
	ListRunning func(ctx context.Context) ([]RunningProcess, error)
	Kill        func(ctx context.Context, pid int) error

	Logger *slog.Logger
}

// Updater checks every component against the registry and installs updates.
type Updater struct {
	layout     paths.Layout
	resolver   Resolver
	installer  *Installer
	components []Component

	in          *bufio.Reader
	out         io.Writer
	interactive bool
	assumeYes   bool

	version string
	exePath string
	pid     int
	goos    string

	startHelper func(string) error
	listRunning func(context.Context) ([]RunningProcess, error)
	kill        func(context.Context, int) error

	logger *slog.Logger
}

// New creates an Updater for cfg. Fields left zero in opts are filled from
// the configuration and the running process.
func New(cfg *config.Config, opts Options) *Updater {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.GOARCH == "" {
		opts.GOARCH = runtime.GOARCH
	}
	if opts.Layout.Root == "" {
		opts.Layout = paths.NewLayoutFor(cfg.ExeDir, opts.GOOS)
	}
	if opts.Resolver == nil {
		opts.Resolver = registry.NewResolver(cfg.Registry, opts.Logger)
	}
	if opts.Installer == nil {
		opts.Installer = NewInstaller(cfg.DownloadTimeout, cfg.Registry.RetryMax, opts.Out, opts.Logger)
	}
	if opts.CurrentVersion == "" {
		opts.CurrentVersion = config.Version
	}
	if opts.ExePath == "" {
		opts.ExePath = paths.Executable()
	}
	if opts.PID == 0 {
		opts.PID = os.Getpid()
	}
	if opts.StartHelper == nil {
		opts.StartHelper = startDetached
	}
	if opts.ListRunning == nil {
		opts.ListRunning = listRunning
	}
	if opts.Kill == nil {
		opts.Kill = killPID
	}

	return &Updater{
		layout:      opts.Layout,
		resolver:    opts.Resolver,
		installer:   opts.Installer,
		components:  Components(opts.Layout, opts.GOOS, opts.GOARCH),
		in:          bufio.NewReader(opts.In),
		out:         opts.Out,
		interactive: opts.Interactive,
		assumeYes:   opts.AssumeYes,
		version:     opts.CurrentVersion,
		exePath:     opts.ExePath,
		pid:         opts.PID,
		goos:        opts.GOOS,
		startHelper: opts.StartHelper,
		listRunning: opts.ListRunning,
		kill:        opts.Kill,
		logger:      opts.Logger,
	}
}

// Run performs one interactive update pass. It returns domain.ErrHandoff
// when the self-update helper took over and the process must exit now.
func (u *Updater) Run(ctx context.Context) error {
	fmt.Fprintln(u.out, "LLBot update check")
	fmt.Fprintln(u.out, "==================")
	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, "Checking for updates...")
	fmt.Fprintln(u.out)

	infos := u.CheckAll(ctx)
	RenderTable(u.out, infos)
	fmt.Fprintln(u.out)

	var pending []domain.UpdateInfo
	for _, info := range infos {
		if info.Installable() {
			pending = append(pending, info)
		}
	}
	if len(pending) == 0 {
		fmt.Fprintln(u.out, "All components are up to date")
		return nil
	}
	fmt.Fprintf(u.out, "%d update(s) available\n", len(pending))

	if u.goos == "windows" {
		u.offerToStopRunning(ctx)
	}

	if !u.confirm("Start the update?") {
		fmt.Fprintln(u.out, "Update cancelled")
		return nil
	}
	fmt.Fprintln(u.out)

	var self *domain.UpdateInfo
	for i, info := range pending {
		component := u.component(info.Name)
		if component.Self {
			self = &pending[i]
			continue
		}

		fmt.Fprintf(u.out, "Updating %s...\n", info.Name)
		if err := u.installer.Install(ctx, info.TarballURL, info.Integrity, component.Dir); err != nil {
			u.logger.Error("component update failed", "component", info.Name, "err", err)
			fmt.Fprintf(u.out, "%s update failed: %v\n", info.Name, err)
		} else {
			fmt.Fprintf(u.out, "%s updated\n", info.Name)
		}
		fmt.Fprintln(u.out)
	}

	if self != nil {
		fmt.Fprintf(u.out, "Updating %s...\n", self.Name)
		err := u.selfUpdate(ctx, *self)
		if errors.Is(err, domain.ErrHandoff) {
			return err
		}
		u.logger.Error("self-update failed", "err", err)
		fmt.Fprintf(u.out, "%s update failed: %v\n", self.Name, err)
	}

	fmt.Fprintln(u.out, "Update finished")
	return nil
}

// CheckAll checks every component concurrently. Results keep component order.
func (u *Updater) CheckAll(ctx context.Context) []domain.UpdateInfo {
	infos := make([]domain.UpdateInfo, len(u.components))

	var g errgroup.Group
	for i, component := range u.components {
		g.Go(func() error {
			infos[i] = u.Check(ctx, component)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

// Check compares one component's installed version against the registry.
func (u *Updater) Check(ctx context.Context, component Component) domain.UpdateInfo {
	current := u.version
	if !component.Self {
		current = LocalVersion(component.Manifest)
	}

	info := domain.UpdateInfo{
		Name:           component.Name,
		Package:        component.Package,
		CurrentVersion: current,
		LatestVersion:  domain.VersionUnknown,
	}

	latest, err := u.resolver.ResolveLatest(ctx, component.Package)
	if err != nil {
		u.logger.Warn("update check failed", "component", component.Name, "err", err)
		return info
	}

	info.LatestVersion = latest.Version
	info.HasUpdate = current == domain.VersionNotInstalled || registry.IsNewer(current, latest.Version)
	if !info.HasUpdate {
		return info
	}

	endpoint, dist := u.resolver.BestMirrorForVersion(ctx, component.Package, latest.Version, latest.Registry)
	info.TarballURL = registry.TarballURL(endpoint, component.Package, latest.Version)
	info.Integrity = dist.Checksum()
	if info.Integrity == "" {
		info.Integrity = latest.Dist.Checksum()
	}
	return info
}

// RenderTable writes the version comparison table.
func RenderTable(w io.Writer, infos []domain.UpdateInfo) {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	pending := cell.Foreground(lipgloss.Color("11"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Component", "Current", "Latest", "Status").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 3 && row >= 0 && row < len(infos) && infos[row].HasUpdate:
				return pending
			default:
				return cell
			}
		})

	for _, info := range infos {
		status := "up to date"
		if info.HasUpdate {
			status = "update available"
		}
		t.Row(info.Name, info.CurrentVersion, info.LatestVersion, status)
	}
	fmt.Fprintln(w, t.Render())
}

func (u *Updater) component(name string) Component {
	for _, c := range u.components {
		if c.Name == name {
			return c
		}
	}
	return Component{Name: name}
}

// confirm asks a yes/no question defaulting to no.
func (u *Updater) confirm(prompt string) bool {
	fmt.Fprintf(u.out, "%s [y/N]: ", prompt)
	if u.assumeYes {
		fmt.Fprintln(u.out, "y")
		return true
	}
	if !u.interactive {
		fmt.Fprintln(u.out)
		fmt.Fprintln(u.out, "Not an interactive terminal, pass --yes to confirm")
		return false
	}

	line, err := u.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// offerToStopRunning lists processes that would block file replacement and
// kills them when the operator agrees.
func (u *Updater) offerToStopRunning(ctx context.Context) {
	running, err := u.listRunning(ctx)
	if err != nil {
		u.logger.Warn("list running processes", "err", err)
		return
	}

	var others []RunningProcess
	for _, p := range running {
		if p.PID != u.pid {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return
	}

	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, "The following processes are running:")
	for _, p := range others {
		fmt.Fprintf(u.out, "  - %s (PID: %d)\n", p.Name, p.PID)
	}
	fmt.Fprintln(u.out)

	if !u.confirm("Stop these processes?") {
		return
	}
	for _, p := range others {
		fmt.Fprintf(u.out, "Stopping %s...", p.Name)
		if err := u.kill(ctx, p.PID); err != nil {
			fmt.Fprintln(u.out, " failed")
			u.logger.Warn("stop process", "name", p.Name, "pid", p.PID, "err", err)
		} else {
			fmt.Fprintln(u.out, " done")
		}
	}
	fmt.Fprintln(u.out)
}
