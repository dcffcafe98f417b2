package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llonebot/llbot-cli/internal/domain"
)

// defaultWaitDelay bounds how long Wait keeps relaying output after the
// worker exits while a grandchild still holds the pipes open.
const defaultWaitDelay = 2 * time.Second

// Command describes the worker to spawn.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// LineObserver is called with every line the worker writes to stdout.
type LineObserver func(line string)

// Options configures a Process. Zero values select os.Stdout, os.Stderr
// and slog.Default().
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Observers []LineObserver
	WaitDelay time.Duration
}

// handle is the live worker. It is dropped from the slot when reaped.
type handle struct {
	pid int
	cmd *exec.Cmd
}

// Process supervises one worker process group.
type Process struct {
	logger    *slog.Logger
	stdout    io.Writer
	stderr    io.Writer
	observers []LineObserver
	waitDelay time.Duration

	// mu guards handle. The cancellation path only ever TryLocks it.
	mu      sync.Mutex
	handle  *handle
	started bool

	done     chan struct{}
	exitCode int
	waitErr  error

	// tracked is an extra pid outside the group's control (the QQ client
	// that the worker spawns) killed before the group.
	tracked atomic.Int64
}

func New(opts Options) *Process {
	p := &Process{
		logger:    opts.Logger,
		stdout:    opts.Stdout,
		stderr:    opts.Stderr,
		observers: opts.Observers,
		waitDelay: opts.WaitDelay,
		done:      make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.stdout == nil {
		p.stdout = os.Stdout
	}
	if p.stderr == nil {
		p.stderr = os.Stderr
	}
	if p.waitDelay <= 0 {
		p.waitDelay = defaultWaitDelay
	}
	return p
}

// Start spawns the worker as the leader of a new process group and begins
// relaying its output. It can be called once per Process.
func (p *Process) Start(ctx context.Context, command Command) error {
	if err := ctx.Err(); err != nil {
		return domain.ErrSpawn{Op: "start", Path: command.Path, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return domain.ErrSpawn{Op: "start", Path: command.Path, Err: errors.New("already started")}
	}

	cmd := exec.Command(command.Path, command.Args...)
	cmd.Dir = command.Dir
	if command.Env != nil {
		cmd.Env = command.Env
	}
	cmd.Stdin = nil
	cmd.WaitDelay = p.waitDelay
	setProcessGroup(cmd)

	outReader, outWriter := io.Pipe()
	errReader, errWriter := io.Pipe()
	cmd.Stdout = outWriter
	cmd.Stderr = errWriter

	if err := cmd.Start(); err != nil {
		outWriter.Close()
		errWriter.Close()
		return domain.ErrSpawn{Op: "start", Path: command.Path, Err: err}
	}

	p.started = true
	p.handle = &handle{pid: cmd.Process.Pid, cmd: cmd}
	p.logger.Info("worker started", "pid", cmd.Process.Pid, "path", command.Path)

	var relays sync.WaitGroup
	relays.Add(2)
	go func() {
		defer relays.Done()
		p.relay(outReader, p.stdout, p.observers)
	}()
	go func() {
		defer relays.Done()
		p.relay(errReader, p.stderr, nil)
	}()

	go p.monitor(cmd, outWriter, errWriter, &relays)
	return nil
}

// monitor reaps the worker, drains the relays and empties the handle slot.
func (p *Process) monitor(cmd *exec.Cmd, outWriter, errWriter *io.PipeWriter, relays *sync.WaitGroup) {
	err := cmd.Wait()
	outWriter.Close()
	errWriter.Close()
	relays.Wait()

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		err = nil
	case errors.Is(err, exec.ErrWaitDelay):
		p.logger.Debug("worker output still open after exit", "pid", cmd.Process.Pid)
		err = nil
	default:
		err = fmt.Errorf("wait for worker: %w", err)
	}

	p.mu.Lock()
	p.handle = nil
	p.exitCode = code
	p.waitErr = err
	p.mu.Unlock()

	p.logger.Debug("worker reaped", "pid", cmd.Process.Pid, "code", code)
	close(p.done)
}

// Wait blocks until the worker exits or ctx is cancelled. On cancellation
// the group is interrupted and ErrInterrupted is returned.
func (p *Process) Wait(ctx context.Context) (int, error) {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return -1, errors.New("worker not started")
	}

	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		p.Interrupt()
		return -1, domain.ErrInterrupted
	}
}

// Done is closed once the worker has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate kills the whole worker group. Calling it on a worker that was
// never started or has already been reaped is a no-op.
func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminateLocked()
}

// Interrupt is Terminate for the cancellation path: it never waits for the
// handle lock. It reports false when the lock was contended and the kill
// was skipped.
func (p *Process) Interrupt() bool {
	if !p.mu.TryLock() {
		p.logger.Warn("worker handle busy, skipping group termination")
		return false
	}
	defer p.mu.Unlock()

	if err := p.terminateLocked(); err != nil {
		p.logger.Error("terminate worker group", "err", err)
	}
	return true
}

// Must be called with p.mu held.
func (p *Process) terminateLocked() error {
	if p.handle == nil {
		return nil
	}

	if pid := int(p.tracked.Load()); pid > 0 {
		if err := killProcess(pid); err != nil {
			p.logger.Warn("kill tracked process", "pid", pid, "err", err)
		}
	}

	p.logger.Info("terminating worker group", "pid", p.handle.pid)
	return killGroup(p.handle.pid)
}

// Track records an additional pid to kill ahead of the group.
func (p *Process) Track(pid int) {
	if pid > 0 {
		p.tracked.Store(int64(pid))
	}
}

// Tracked returns the pid recorded by Track, or 0.
func (p *Process) Tracked() int {
	return int(p.tracked.Load())
}

// Pid returns the worker pid, or 0 when no worker is running.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return 0
	}
	return p.handle.pid
}
