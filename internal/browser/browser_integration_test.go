// internal/browser/browser_integration_test.go
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

const browserTestTimeout = 90 * time.Second

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// findChrome locates a local Chrome or Chromium binary, skipping the test when there is none.
func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome or Chromium binary found; skipping browser integration test")
	return ""
}

// newTestAutomation returns an initialized Automation with an isolated profile.
func newTestAutomation(t *testing.T, configure ...func(*config.Config)) (*Automation, context.Context) {
	t.Helper()
	execPath := findChrome(t)

	cfg := config.NewDefaultConfig()
	cfg.Browser.ExecutablePath = execPath
	cfg.Browser.CookieFile = filepath.Join(t.TempDir(), "cookies.json")
	cfg.Browser.Args = []string{"--user-data-dir=" + t.TempDir()}
	if os.Geteuid() == 0 {
		// Chrome refuses to start its sandbox as root, which is common in CI containers.
		cfg.Browser.Args = append(cfg.Browser.Args, "--no-sandbox")
	}
	cfg.Navigation.IdleQuietPeriod = 100 * time.Millisecond
	for _, fn := range configure {
		fn(cfg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), browserTestTimeout)
	t.Cleanup(cancel)

	a := New(cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Initialize(ctx, InitOptionsFromConfig(cfg.Browser)))
	return a, ctx
}

const loginPage = `<!doctype html><html><body>
<form method="POST" action="/session">
  <input name="email" type="text">
  <input name="password" type="password">
  <button type="submit">Log in</button>
</form></body></html>`

// twoStepPage asks for the email first and reveals the password field after
// the first submit. With inline set, the second submit renders the board in
// place instead of posting the form.
const twoStepPage = `<!doctype html><html><body>
<form method="POST" action="/session">
  <input name="email" type="text">
  <div id="password-step" style="display:none"><input name="password" type="password"></div>
  <button type="submit">Continue</button>
</form>
<script>
const inline = %t;
document.querySelector('form').addEventListener('submit', e => {
  const step = document.getElementById('password-step');
  if (step.style.display === 'none') {
    e.preventDefault();
    step.style.display = 'block';
    return;
  }
  if (inline) {
    e.preventDefault();
    document.body.innerHTML = '<h1 id="board">Roadmap</h1>';
  }
});
</script></body></html>`

const boardPage = `<!doctype html><html><body><h1 id="board">Roadmap</h1></body></html>`

// newTestSite serves a board that requires a session cookie and a login form that sets it.
func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/board", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			fmt.Fprint(w, loginPage)
			return
		}
		fmt.Fprint(w, boardPage)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("email") != "someone@example.com" || r.PostFormValue("password") != "hunter2" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cr3t", Path: "/", Expires: time.Now().Add(time.Hour)})
		http.Redirect(w, r, "/board", http.StatusSeeOther)
	})
	mux.HandleFunc("/two-step", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, twoStepPage, false)
	})
	mux.HandleFunc("/two-step-inline", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, twoStepPage, true)
	})
	mux.HandleFunc("/modal", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body>
<div id="modal">Accept cookies?</div>
<script>document.addEventListener('keydown', e => { if (e.key === 'Escape') document.getElementById('modal').remove(); });</script>
</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testCredentials() *Credentials {
	return &Credentials{Username: "someone@example.com", Password: "hunter2", Flow: FlowSingle}
}

func TestIntegrationNavigateAndScreenshot(t *testing.T) {
	server := newTestSite(t)

	for _, waitUntil := range []string{WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle0, WaitNetworkIdle2} {
		t.Run(waitUntil, func(t *testing.T) {
			a, ctx := newTestAutomation(t)
			require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/login", NavigateOptions{WaitUntil: waitUntil}))

			buf, err := a.TakeScreenshot(ctx, ScreenshotOptions{})
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(buf, pngMagic))
		})
	}
}

func TestIntegrationScreenshotFormats(t *testing.T) {
	server := newTestSite(t)

	t.Run("JPEGFullPage", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/login", NavigateOptions{}))
		buf, err := a.TakeScreenshot(ctx, ScreenshotOptions{Format: FormatJPEG, FullPage: true})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf, jpegMagic))
	})

	t.Run("Clip", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/login", NavigateOptions{}))
		buf, err := a.TakeScreenshot(ctx, ScreenshotOptions{Clip: &Clip{Width: 200, Height: 100}})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(buf, pngMagic))
	})

	t.Run("BrowserClosedAfterScreenshot", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/login", NavigateOptions{}))
		_, err := a.TakeScreenshot(ctx, ScreenshotOptions{})
		require.NoError(t, err)
		assert.Error(t, a.run(ctx, chromedp.Reload()))
	})
}

func TestIntegrationAuthStrategies(t *testing.T) {
	server := newTestSite(t)

	t.Run("Login", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		err := a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategyLogin,
			Credentials:     testCredentials(),
			WaitForSelector: "#board",
		})
		require.NoError(t, err)

		cookies, err := ReadCookieFile(a.cfg.Browser.CookieFile)
		require.NoError(t, err)
		names := make([]string, 0, len(cookies))
		for _, c := range cookies {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, "sid")
	})

	t.Run("LoginWithKeyDelay", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		creds := testCredentials()
		creds.KeyDelay = 5 * time.Millisecond
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategyLogin,
			Credentials:     creds,
			WaitForSelector: "#board",
		}))
	})

	t.Run("TwoStep", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		creds := testCredentials()
		creds.Flow = FlowTwoStep
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/two-step", NavigateOptions{
			AuthStrategy:    StrategyLogin,
			Credentials:     creds,
			WaitForSelector: "#board",
		}))

		var path string
		require.NoError(t, a.run(ctx, chromedp.Evaluate(`location.pathname`, &path)))
		assert.Equal(t, "/board", path)
		assert.True(t, cookieFileExists(a.cfg.Browser.CookieFile))
	})

	t.Run("TwoStepWithoutNavigation", func(t *testing.T) {
		const navTimeout = 2 * time.Second
		a, ctx := newTestAutomation(t, func(cfg *config.Config) { cfg.Navigation.Timeout = navTimeout })
		creds := testCredentials()
		creds.Flow = FlowTwoStep

		start := time.Now()
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/two-step-inline", NavigateOptions{
			AuthStrategy:    StrategyLogin,
			Credentials:     creds,
			WaitForSelector: "#board",
			Timeout:         10 * time.Second,
		}))
		assert.GreaterOrEqual(t, time.Since(start), navTimeout, "the final submit waits out the navigation timeout")

		var path string
		require.NoError(t, a.run(ctx, chromedp.Evaluate(`location.pathname`, &path)))
		assert.Equal(t, "/two-step-inline", path)
	})

	t.Run("AutoSkipsLoginWhenNoForm", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		// No credentials: a login attempt would fail.
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/modal", NavigateOptions{AuthStrategy: StrategyAuto}))
	})

	t.Run("AutoLogsInWhenFormPresent", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategyAuto,
			Credentials:     testCredentials(),
			WaitForSelector: "#board",
		}))
	})

	t.Run("Dismiss", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/modal", NavigateOptions{AuthStrategy: StrategyDismiss}))
		assert.False(t, a.CheckLoginRequired(ctx, "#modal"), "escape closes the modal")
	})

	t.Run("SessionLogsInThenReturns", func(t *testing.T) {
		a, ctx := newTestAutomation(t)
		creds := testCredentials()
		creds.LoginURL = server.URL + "/login"
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategySession,
			Credentials:     creds,
			WaitForSelector: "#board",
		}))
		assert.True(t, cookieFileExists(a.cfg.Browser.CookieFile))
	})

	t.Run("SavedCookiesReused", func(t *testing.T) {
		cookieFile := filepath.Join(t.TempDir(), "cookies.json")
		host := server.Listener.Addr().String()
		require.NoError(t, WriteCookieFile(cookieFile, []Cookie{{Name: "sid", Value: "saved", URL: "http://" + host + "/"}}))

		a, ctx := newTestAutomation(t, func(cfg *config.Config) { cfg.Browser.CookieFile = cookieFile })
		require.NoError(t, a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategySession,
			WaitForSelector: "#board",
		}))
	})

	t.Run("WrongPasswordFails", func(t *testing.T) {
		a, ctx := newTestAutomation(t, func(cfg *config.Config) { cfg.Navigation.Timeout = 5 * time.Second })
		creds := testCredentials()
		creds.Password = "wrong"
		err := a.NavigateAndWait(ctx, server.URL+"/board", NavigateOptions{
			AuthStrategy:    StrategyLogin,
			Credentials:     creds,
			WaitForSelector: "#board",
			Timeout:         5 * time.Second,
		})
		assert.Error(t, err)
	})
}

func TestIntegrationBeforeScreenshotHook(t *testing.T) {
	server := newTestSite(t)
	a, ctx := newTestAutomation(t)

	var title string
	err := a.NavigateAndWait(ctx, server.URL+"/modal", NavigateOptions{
		BeforeScreenshot: func(c context.Context) error {
			return chromedp.Run(c, chromedp.Evaluate(`document.title = "ready"`, &title))
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", title)
}
