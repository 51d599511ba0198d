// internal/browser/automation.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

var (
	ErrNotInitialized = errors.New("browser is not initialized")
	ErrClosed         = errors.New("browser is closed")
)

// Automation owns one browser process and the single page it works on.
// It is used for one capture and then closed.
type Automation struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	network *networkMonitor

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New creates an Automation. Nothing is launched until Initialize.
func New(cfg *config.Config, logger *zap.Logger) *Automation {
	id := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", id))
	return &Automation{
		id:      id,
		cfg:     cfg,
		logger:  log,
		network: newNetworkMonitor(log),
	}
}

// ID returns the unique identifier of this browser session.
func (a *Automation) ID() string {
	return a.id
}

// Initialize launches the browser, opens the page and applies the page options.
func (a *Automation) Initialize(ctx context.Context, opts InitOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.initialized {
		return nil
	}
	opts = DefaultInitOptions().Merge(opts)

	// 1. Launch. The browser lifetime is bound to a.ctx, not to the caller's context.
	allocOpts := AllocatorOptions(a.cfg.Browser)
	allocOpts = append(allocOpts, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(a.logger.Sugar().Debugf),
		chromedp.WithErrorf(a.logger.Sugar().Debugf),
	)
	a.allocCancel, a.ctx, a.cancel = allocCancel, pageCtx, pageCancel

	if err := a.launch(ctx); err != nil {
		a.teardown()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	a.initialized = true

	// 2. Track network and lifecycle events for the waits that follow.
	a.network.listen(a.ctx)

	tasks := chromedp.Tasks{
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetDeviceMetricsOverride(
			int64(opts.Viewport.Width),
			int64(opts.Viewport.Height),
			opts.Viewport.DeviceScaleFactor,
			opts.Viewport.Mobile,
		),
	}

	// 3. Permissions for a single origin.
	if len(opts.Permissions.Types) > 0 {
		perms := make([]browser.PermissionType, 0, len(opts.Permissions.Types))
		for _, p := range opts.Permissions.Types {
			perms = append(perms, browser.PermissionType(p))
		}
		grant := browser.GrantPermissions(perms)
		if opts.Permissions.Origin != "" {
			grant = grant.WithOrigin(opts.Permissions.Origin)
		}
		tasks = append(tasks, grant)
	}

	// 4. Explicit cookies.
	if len(opts.Cookies) > 0 {
		tasks = append(tasks, network.SetCookies(cookieParams(opts.Cookies)))
	}

	if err := a.run(ctx, tasks); err != nil {
		return fmt.Errorf("failed to prepare page: %w", err)
	}

	// 5. Saved session cookies. Never fatal.
	if err := a.LoadCookies(ctx); err != nil {
		a.logger.Warn("Failed to load cookies.", zap.Error(err))
	}

	// 6. Extra headers.
	if len(opts.Headers) > 0 {
		headers := make(network.Headers, len(opts.Headers))
		for k, v := range opts.Headers {
			headers[k] = v
		}
		if err := a.run(ctx, network.SetExtraHTTPHeaders(headers)); err != nil {
			return fmt.Errorf("failed to set extra headers: %w", err)
		}
	}

	a.logger.Info("Browser initialized.",
		zap.Int("viewport_width", opts.Viewport.Width),
		zap.Int("viewport_height", opts.Viewport.Height),
		zap.Bool("mobile", opts.Viewport.Mobile),
	)
	return nil
}

// launch starts the browser process with the first Run on the page context.
// That Run must not use a derived context, or the browser dies with it.
func (a *Automation) launch(ctx context.Context) error {
	timeout := a.cfg.Browser.LaunchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(a.ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("browser did not start within %s", timeout)
	}
}

// run executes actions on the page, bounded by both the page lifetime and ctx.
func (a *Automation) run(ctx context.Context, actions ...chromedp.Action) error {
	if a.ctx == nil {
		return ErrNotInitialized
	}
	runCtx, cancel := CombineContext(a.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Close shuts the page and the browser down. It is safe to call more than once.
func (a *Automation) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.initialized {
		// Graceful shutdown first so the browser can flush its profile.
		if cerr := chromedp.Cancel(a.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	}
	a.teardown()
	a.logger.Debug("Browser closed.")
	return err
}

func (a *Automation) teardown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
}
