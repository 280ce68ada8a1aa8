package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/xid"

	"pinredeem/internal/config"
	"pinredeem/internal/domain"
	"pinredeem/internal/infra/logging"
)

const pingTimeout = 2 * time.Second

// Browser owns the single headless Chrome process shared by all redemptions.
// Every Acquire hands out an isolated CDP browser context on top of it, so
// concurrent sessions never share cookies or storage.
type Browser struct {
	cfg config.BrowserConfig

	// launchMu serialises launches. Chrome is started without holding mu so
	// that Ready, Stats and Release stay responsive meanwhile.
	launchMu sync.Mutex
	launcher func(context.Context) (*launch, error)

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	profileDir    string
	sem           chan struct{}
	closed        bool
	broken        bool
	launched      bool
	relaunching   bool
	restarts      int
	lastRestart   time.Time
}

// launch is one started Chrome process and its profile directory.
type launch struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	profileDir    string
}

func (l *launch) stop() {
	if l.browserCancel != nil {
		l.browserCancel()
	}
	if l.allocCancel != nil {
		l.allocCancel()
	}
	if l.profileDir != "" {
		_ = os.RemoveAll(l.profileDir)
	}
}

// Session is one isolated browsing context. Ctx is a chromedp context bound to
// a fresh target inside its own browser context.
type Session struct {
	ID  string
	Ctx context.Context

	cancel   context.CancelFunc
	isolated bool
}

// Stats is a point-in-time view of the browser handle.
type Stats struct {
	Enabled     bool      `json:"enabled"`
	Capacity    int       `json:"capacity"`
	Idle        int       `json:"idle"`
	InUse       int       `json:"in_use"`
	ProfileDir  string    `json:"profile_dir"`
	Restarts    int       `json:"restarts"`
	LastRestart time.Time `json:"last_restart,omitempty"`
	Broken      bool      `json:"broken"`
	Relaunching bool      `json:"relaunching"`
}

// New creates an unlaunched browser handle with capacity for cfg.MaxSessions
// concurrent sessions.
func New(cfg config.BrowserConfig) *Browser {
	size := cfg.MaxSessions
	if size < 1 {
		size = 1
	}
	b := &Browser{cfg: cfg, sem: make(chan struct{}, size)}
	b.launcher = b.start
	for i := 0; i < size; i++ {
		b.sem <- struct{}{}
	}
	return b
}

// Launch starts Chrome and waits until its DevTools endpoint answers.
func (b *Browser) Launch(ctx context.Context) error {
	_, err := b.relaunch(ctx, false)
	return err
}

func (b *Browser) start(ctx context.Context) (*launch, error) {
	dir, err := createProfileDir(b.cfg)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(b.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logging.Debug("chromedp", "detail", fmt.Sprintf(format, args...))
		}),
	)
	l := &launch{allocCancel: allocCancel, browserCtx: browserCtx, browserCancel: browserCancel, profileDir: dir}

	// The first Run allocates the browser. It must not be bound to ctx,
	// since cancelling that context would kill the process later on.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err = <-started:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		l.stop()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	logging.Info("Chrome launched", "profile_dir", dir, "max_sessions", cap(b.sem))
	return l, nil
}

// relaunch replaces the running Chrome with a fresh one. Unless force is set,
// a healthy browser is kept as is.
func (b *Browser) relaunch(ctx context.Context, force bool) (context.Context, error) {
	b.launchMu.Lock()
	defer b.launchMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	if !force && b.healthyLocked() {
		bctx := b.browserCtx
		b.mu.Unlock()
		return bctx, nil
	}
	b.relaunching = true
	b.teardownLocked()
	b.mu.Unlock()

	l, err := b.launcher(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.relaunching = false
	if err != nil {
		b.broken = true
		return nil, err
	}
	if b.closed {
		l.stop()
		return nil, domain.ErrPoolClosed
	}

	b.allocCancel = l.allocCancel
	b.browserCtx = l.browserCtx
	b.browserCancel = l.browserCancel
	b.profileDir = l.profileDir
	b.broken = false
	if b.launched {
		b.restarts++
		b.lastRestart = time.Now()
	}
	b.launched = true
	return b.browserCtx, nil
}

func (b *Browser) healthyLocked() bool {
	return b.browserCtx != nil && b.browserCtx.Err() == nil && !b.broken
}

func (b *Browser) teardownLocked() {
	if b.browserCancel != nil {
		b.browserCancel()
		b.browserCancel = nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCancel = nil
	}
	b.browserCtx = nil
	if b.profileDir != "" {
		_ = os.RemoveAll(b.profileDir)
		b.profileDir = ""
	}
}

// Ready reports whether the browser is launched and answers a CDP ping.
func (b *Browser) Ready(ctx context.Context) bool {
	b.mu.Lock()
	bctx := b.browserCtx
	ok := !b.closed && !b.relaunching && b.healthyLocked()
	b.mu.Unlock()
	if !ok {
		return false
	}
	return ping(ctx, bctx) == nil
}

func ping(ctx context.Context, bctx context.Context) error {
	c := chromedp.FromContext(bctx)
	if c == nil || c.Browser == nil {
		return domain.ErrBrowserNotReady
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, _, _, _, _, err := browser.GetVersion().Do(cdp.WithExecutor(pctx, c.Browser))
	return err
}

// Acquire waits for a free slot and opens a new isolated session. If the
// browser process was lost since it was launched, it is relaunched first.
func (b *Browser) Acquire(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, domain.ErrPoolClosed
	}

	select {
	case <-b.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	parent, err := b.ensureRunning(ctx)
	if err != nil {
		b.sem <- struct{}{}
		return nil, err
	}

	s := &Session{ID: xid.New().String()}
	if c := chromedp.FromContext(parent); c == nil || c.Browser == nil {
		s.Ctx, s.cancel = context.WithCancel(parent)
		return s, nil
	}

	s.Ctx, s.cancel = chromedp.NewContext(parent, chromedp.WithNewBrowserContext())
	s.isolated = true

	// Same as the browser: the first Run creates the tab and must not be
	// bound to a context that ends with the current step.
	opened := make(chan error, 1)
	go func() { opened <- chromedp.Run(s.Ctx) }()
	select {
	case err = <-opened:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		b.Release(s, err)
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

func (b *Browser) ensureRunning(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	if b.healthyLocked() {
		bctx := b.browserCtx
		b.mu.Unlock()
		return bctx, nil
	}
	launched := b.launched
	b.mu.Unlock()

	// The initial launch belongs to startup, not to a request.
	if !launched {
		return nil, domain.ErrBrowserNotReady
	}

	logging.Warn("Chrome is gone, relaunching")
	bctx, err := b.relaunch(ctx, false)
	if err != nil {
		if errors.Is(err, domain.ErrPoolClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrBrowserNotReady, err)
	}
	return bctx, nil
}

// Release disposes the session's browser context and frees its slot. An error
// that looks like the browser itself went away marks the handle for relaunch.
func (b *Browser) Release(s *Session, err error) {
	if s == nil {
		return
	}
	if s.isolated {
		_ = chromedp.Cancel(s.Ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}

	if isBrowserGone(err) {
		b.mu.Lock()
		bctx := b.browserCtx
		b.mu.Unlock()
		if bctx == nil || ping(context.Background(), bctx) != nil {
			b.mu.Lock()
			b.broken = true
			b.mu.Unlock()
			logging.Warn("Chrome stopped answering, will relaunch on next acquire", "error", err)
		}
	}

	select {
	case b.sem <- struct{}{}:
	default:
	}
}

// Restart relaunches Chrome in place. Sessions still in flight are cut off.
func (b *Browser) Restart() error {
	ctx, cancel := context.WithTimeout(context.Background(), launchTimeout(b.cfg))
	defer cancel()
	_, err := b.relaunch(ctx, true)
	return err
}

// Stats reports capacity and usage.
func (b *Browser) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := cap(b.sem)
	idle := len(b.sem)
	return Stats{
		Enabled:     !b.closed && b.browserCtx != nil,
		Capacity:    capacity,
		Idle:        idle,
		InUse:       capacity - idle,
		ProfileDir:  b.profileDir,
		Restarts:    b.restarts,
		LastRestart: b.lastRestart,
		Broken:      b.broken,
		Relaunching: b.relaunching,
	}
}

// Close shuts Chrome down and removes its profile. Safe to call repeatedly.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.teardownLocked()
	logging.Info("Chrome closed")
}

// IsSessionInterrupted reports whether err means the session was cut short
// rather than the page misbehaving.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, chromedp.ErrInvalidContext) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "connection reset", "broken pipe", "no such target"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isBrowserGone(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsSessionInterrupted(err)
}
