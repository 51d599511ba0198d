// internal/browser/navigate.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// NavigateAndWait loads url, applies the authentication strategy and waits
// until the page is ready to be captured.
func (a *Automation) NavigateAndWait(ctx context.Context, url string, opts NavigateOptions) error {
	opts = opts.withDefaults()
	log := a.logger.With(zap.String("url", url), zap.String("auth_strategy", opts.AuthStrategy))

	// 1. Navigate.
	if err := a.navigate(ctx, url, opts.WaitUntil, opts.Timeout); err != nil {
		return err
	}
	log.Debug("Page loaded.", zap.String("wait_until", opts.WaitUntil))

	// 2. Authenticate.
	if err := a.HandleAuth(ctx, opts.AuthStrategy, url, opts.Credentials); err != nil {
		return err
	}

	// 3. Wait for the caller's selector.
	if opts.WaitForSelector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		if err := a.run(waitCtx, chromedp.WaitReady(opts.WaitForSelector, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("waiting for selector %q: %w", opts.WaitForSelector, err)
		}
	}

	// 4. Last-minute page adjustments.
	if opts.BeforeScreenshot != nil {
		hookCtx, cancel := CombineContext(a.ctx, ctx)
		defer cancel()
		if err := opts.BeforeScreenshot(hookCtx); err != nil {
			return fmt.Errorf("before screenshot hook failed: %w", err)
		}
	}
	return nil
}

// navigate loads url and blocks until the lifecycle event matching waitUntil
// fires for the new document, or the timeout elapses.
func (a *Automation) navigate(ctx context.Context, url, waitUntil string, timeout time.Duration) error {
	if a.ctx == nil {
		return ErrNotInitialized
	}
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watch := watchLifecycle(a.ctx)
	defer watch.Close()

	err := a.run(navCtx, chromedp.ActionFunc(func(c context.Context) error {
		_, loaderID, errorText, _, err := page.Navigate(url).Do(c)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		// Same-document navigations have no loader and no lifecycle events.
		if loaderID == "" {
			return nil
		}
		return watch.Wait(c, loaderID, lifecycleEventFor(waitUntil))
	}))
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}
