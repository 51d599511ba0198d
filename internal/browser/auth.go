// internal/browser/auth.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// ErrCredentialsRequired is returned by PerformLogin when no username or password is available.
var ErrCredentialsRequired = errors.New("Credentials required for login strategy")

// HandleAuth applies an authentication strategy to the page that was just
// loaded from destination. Unknown strategies are treated as none.
func (a *Automation) HandleAuth(ctx context.Context, strategy, destination string, creds *Credentials) error {
	switch strategy {
	case StrategyDismiss:
		a.DismissDialogs(ctx)

	case StrategyLogin:
		if err := a.PerformLogin(ctx, creds); err != nil {
			return err
		}
		return a.SaveCookies(ctx)

	case StrategyAuto:
		a.DismissDialogs(ctx)
		selector := "input[name=email]"
		if creds != nil {
			selector = creds.selectors().Username
		}
		if a.CheckLoginRequired(ctx, selector) {
			if err := a.PerformLogin(ctx, creds); err != nil {
				return err
			}
			return a.SaveCookies(ctx)
		}

	case StrategySession:
		return a.ensureSession(ctx, destination, creds)

	case StrategyNone, "":
	default:
		a.logger.Warn("Unknown auth strategy, continuing without authentication.", zap.String("strategy", strategy))
	}
	return nil
}

// ensureSession reuses the saved cookie file when there is one. Otherwise it
// logs in through the login page, saves the session and returns to destination.
func (a *Automation) ensureSession(ctx context.Context, destination string, creds *Credentials) error {
	if cookieFileExists(a.cfg.Browser.CookieFile) {
		a.logger.Debug("Reusing saved session.", zap.String("path", a.cfg.Browser.CookieFile))
		return nil
	}
	if creds == nil || creds.LoginURL == "" {
		return errors.New("login failed: no login_url configured for the session strategy")
	}

	loginURL, err := sessionLoginURL(creds.LoginURL, destination)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	a.logger.Info("No saved session, logging in.", zap.String("login_url", creds.LoginURL))
	nav := a.cfg.Navigation
	if err := a.navigate(ctx, loginURL, nav.WaitUntil, nav.Timeout); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := a.PerformLogin(ctx, creds); err != nil {
		return err
	}
	if err := a.SaveCookies(ctx); err != nil {
		return err
	}
	return a.navigate(ctx, destination, nav.WaitUntil, nav.Timeout)
}

// sessionLoginURL points the login page back at the destination path.
func sessionLoginURL(loginURL, destination string) (string, error) {
	login, err := url.Parse(loginURL)
	if err != nil {
		return "", fmt.Errorf("invalid login_url: %w", err)
	}
	dest, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}
	q := login.Query()
	q.Set("returnUrl", dest.RequestURI())
	login.RawQuery = q.Encode()
	return login.String(), nil
}

// DismissDialogs presses Escape to close cookie banners and modals, then waits
// for the network to settle. Failures are logged and never returned.
func (a *Automation) DismissDialogs(ctx context.Context) {
	if err := a.run(ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		a.logger.Warn("Failed to dismiss dialogs.", zap.Error(err))
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, a.navigationTimeout())
	defer cancel()
	if err := a.network.WaitIdle(waitCtx, 2, a.cfg.Navigation.IdleQuietPeriod); err != nil {
		a.logger.Warn("Failed to dismiss dialogs.", zap.Error(err))
	}
}

// CheckLoginRequired reports whether the page currently contains an element
// matching selector. Errors count as no login required.
func (a *Automation) CheckLoginRequired(ctx context.Context, selector string) bool {
	a.logger.Debug("Checking for login form.", zap.String("selector", selector))

	var nodes []*cdp.Node
	if err := a.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		a.logger.Warn("Failed to check login status.", zap.Error(err))
		return false
	}
	return len(nodes) > 0
}

// PerformLogin fills in and submits the login form, then waits for the page
// it leads to.
func (a *Automation) PerformLogin(ctx context.Context, creds *Credentials) error {
	if creds == nil || creds.Username == "" || creds.Password == "" {
		return ErrCredentialsRequired
	}
	if a.ctx == nil {
		return ErrNotInitialized
	}
	sel := creds.selectors()

	var err error
	if creds.Flow == FlowTwoStep {
		err = a.twoStepLogin(ctx, creds, sel.Username, sel.Password, sel.Submit)
	} else {
		err = a.singleLogin(ctx, creds, sel.Username, sel.Password, sel.Submit)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.logger.Info("Logged in.")
	return nil
}

func (a *Automation) singleLogin(ctx context.Context, creds *Credentials, userSel, passSel, submitSel string) error {
	waitCtx, cancel := context.WithTimeout(ctx, a.navigationTimeout())
	defer cancel()
	if err := a.run(waitCtx, chromedp.WaitReady(userSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for %q: %w", userSel, err)
	}
	if err := a.typeInto(ctx, userSel, creds.Username, creds.KeyDelay); err != nil {
		return err
	}
	if err := a.typeInto(ctx, passSel, creds.Password, creds.KeyDelay); err != nil {
		return err
	}
	return a.submitAndWait(ctx, submitSel)
}

func (a *Automation) twoStepLogin(ctx context.Context, creds *Credentials, userSel, passSel, submitSel string) error {
	if err := a.typeInto(ctx, userSel, creds.Username, creds.KeyDelay); err != nil {
		return err
	}
	if err := a.run(ctx, chromedp.Click(submitSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("submitting username: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.navigationTimeout())
	defer cancel()
	if err := a.run(waitCtx, chromedp.WaitVisible(passSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for %q: %w", passSel, err)
	}
	if err := a.typeInto(ctx, passSel, creds.Password, creds.KeyDelay); err != nil {
		return err
	}

	// Some identity providers finish without a full navigation.
	err := a.submitAndWait(ctx, submitSel)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		a.logger.Warn("No navigation after login submit, continuing.", zap.Error(err))
		return nil
	}
	return err
}

// submitAndWait clicks submit and waits for the resulting navigation to reach
// network idle (at most two connections).
func (a *Automation) submitAndWait(ctx context.Context, submitSel string) error {
	watch := watchLifecycle(a.ctx)
	defer watch.Close()

	if err := a.run(ctx, chromedp.Click(submitSel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clicking %q: %w", submitSel, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.navigationTimeout())
	defer cancel()
	if err := watch.WaitNext(waitCtx, lifecycleNetworkAlmostIdle); err != nil {
		return fmt.Errorf("waiting for navigation: %w", err)
	}
	return nil
}

// typeInto types text into the element matching sel, one key at a time when delay is set.
func (a *Automation) typeInto(ctx context.Context, sel, text string, delay time.Duration) error {
	if delay <= 0 {
		if err := a.run(ctx, chromedp.SendKeys(sel, text, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("typing into %q: %w", sel, err)
		}
		return nil
	}

	if err := a.run(ctx, chromedp.Focus(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("focusing %q: %w", sel, err)
	}
	for _, r := range text {
		if err := a.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("typing into %q: %w", sel, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}

func (a *Automation) navigationTimeout() time.Duration {
	if a.cfg.Navigation.Timeout > 0 {
		return a.cfg.Navigation.Timeout
	}
	return defaultNavigationTimeout
}
