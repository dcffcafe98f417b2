package login

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/llonebot/llbot-cli/internal/domain"
	"github.com/llonebot/llbot-cli/internal/pmhq"
)

// API is the slice of the worker control client the monitor drives.
type API interface {
	RequestQRCode(ctx context.Context) error
	Stream(ctx context.Context, handle func(pmhq.Event) bool) error
	SelfInfo(ctx context.Context) (domain.SelfInfo, error)
}

// Options tunes the monitor. A zero RefreshWindow or ReconnectDelay selects
// the default; a zero SettleDelay starts immediately.
type Options struct {
	SettleDelay    time.Duration
	RefreshWindow  time.Duration
	ReconnectDelay time.Duration

	// OnQRCode receives every QR code pushed before login completes.
	OnQRCode func(domain.QRCode)

	// OnLogin is called once after login with the account lookup result.
	OnLogin func(domain.SelfInfo, error)

	Logger *slog.Logger
}

// Monitor drives the worker's QR login until the account is logged in.
type Monitor struct {
	api    API
	opts   Options
	logger *slog.Logger

	flag  *Flag
	state atomic.Int32

	mu      sync.Mutex
	account *domain.SelfInfo
}

func NewMonitor(api API, opts Options) *Monitor {
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = 120 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Monitor{
		api:    api,
		opts:   opts,
		logger: opts.Logger,
		flag:   NewFlag(),
	}
}

// Run blocks until login completes or ctx is done. The refresh loop runs on
// its own goroutine and the stream listener on the caller's.
func (m *Monitor) Run(ctx context.Context) error {
	if !sleep(ctx, m.opts.SettleDelay) {
		return ctx.Err()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.refresh(ctx)
	}()

	err := m.listen(ctx)
	wg.Wait()
	if err != nil {
		return err
	}

	m.reportAccount(ctx)
	return nil
}

// refresh requests a new QR code every RefreshWindow until login.
func (m *Monitor) refresh(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-m.flag.Done():
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if m.flag.IsSet() {
			return
		}
		if err := m.api.RequestQRCode(ctx); err != nil {
			m.logger.Debug("qrcode request failed", "err", err)
		}
		timer.Reset(m.opts.RefreshWindow)
	}
}

// listen keeps an event stream open until a login event arrives.
func (m *Monitor) listen(ctx context.Context) error {
	for !m.flag.IsSet() {
		err := m.api.Stream(ctx, m.handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if m.flag.IsSet() {
			break
		}

		// Streams that end on their own reconnect after a short pause so a
		// worker closing every connection at once is not hammered.
		pause := m.opts.ReconnectDelay / 4
		var streamErr domain.ErrStream
		switch {
		case err == nil:
		case errors.As(err, &streamErr) && streamErr.Op == "connect":
			m.logger.Debug("event stream unavailable", "err", err)
			pause = m.opts.ReconnectDelay
		default:
			m.logger.Debug("event stream broke", "err", err)
		}
		if !sleep(ctx, pause) {
			return ctx.Err()
		}
	}
	return nil
}

// handle processes one event; it returns false to close the stream.
func (m *Monitor) handle(ev pmhq.Event) bool {
	if m.flag.IsSet() {
		return false
	}

	switch ev.Kind {
	case pmhq.KindQRCode:
		m.state.CompareAndSwap(int32(domain.StateAwaitingStream), int32(domain.StateQRCodeIssued))
		if m.opts.OnQRCode != nil {
			m.opts.OnQRCode(ev.QRCode)
		}
	case pmhq.KindLoggedIn:
		if m.flag.Set() {
			m.state.Store(int32(domain.StateLoggedIn))
			m.logger.Info("login complete")
		}
		return false
	}
	return true
}

func (m *Monitor) reportAccount(ctx context.Context) {
	info, err := m.api.SelfInfo(ctx)
	if err != nil {
		m.logger.Warn("fetch account info", "err", err)
	} else {
		m.mu.Lock()
		m.account = &info
		m.mu.Unlock()
	}
	if m.opts.OnLogin != nil {
		m.opts.OnLogin(info, err)
	}
}

func (m *Monitor) State() domain.LoginState {
	return domain.LoginState(m.state.Load())
}

// LoggedIn is closed once login completes.
func (m *Monitor) LoggedIn() <-chan struct{} {
	return m.flag.Done()
}

// Account returns the account fetched after login, or nil.
func (m *Monitor) Account() *domain.SelfInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.account == nil {
		return nil
	}
	info := *m.account
	return &info
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
