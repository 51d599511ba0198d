// internal/browser/options.go
package browser

import (
	"context"
	"time"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

// Navigation wait modes, named after the events a page load goes through.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle0     = "networkidle0"
	WaitNetworkIdle2     = "networkidle2"
)

// Authentication strategies understood by HandleAuth.
const (
	StrategyNone    = "none"
	StrategyDismiss = "dismiss"
	StrategyLogin   = "login"
	StrategyAuto    = "auto"
	StrategySession = "session"
)

// Login flows understood by PerformLogin.
const (
	FlowSingle  = "single"
	FlowTwoStep = "two_step"
)

// Screenshot formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultIdleQuietPeriod   = 500 * time.Millisecond
	defaultJPEGQuality       = 90
)

// InitOptions configures the page opened by Initialize.
type InitOptions struct {
	Viewport    config.ViewportConfig
	UserAgent   string
	Permissions config.PermissionsConfig
	Cookies     []Cookie
	Headers     map[string]string
}

// DefaultInitOptions returns a 1200x800 desktop viewport with nothing else set.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		Viewport: config.ViewportConfig{Width: 1200, Height: 800, DeviceScaleFactor: 1},
	}
}

// Merge overlays the non-zero fields of override on top of o.
// The viewport is merged field by field.
func (o InitOptions) Merge(override InitOptions) InitOptions {
	merged := o
	if override.Viewport.Width > 0 {
		merged.Viewport.Width = override.Viewport.Width
	}
	if override.Viewport.Height > 0 {
		merged.Viewport.Height = override.Viewport.Height
	}
	if override.Viewport.DeviceScaleFactor > 0 {
		merged.Viewport.DeviceScaleFactor = override.Viewport.DeviceScaleFactor
	}
	if override.Viewport.Mobile {
		merged.Viewport.Mobile = true
	}
	if override.UserAgent != "" {
		merged.UserAgent = override.UserAgent
	}
	if override.Permissions.Origin != "" || len(override.Permissions.Types) > 0 {
		merged.Permissions = override.Permissions
	}
	if len(override.Cookies) > 0 {
		merged.Cookies = override.Cookies
	}
	if len(override.Headers) > 0 {
		merged.Headers = override.Headers
	}
	return merged
}

// InitOptionsFromConfig builds the page options described by the browser section of the config.
func InitOptionsFromConfig(cfg config.BrowserConfig) InitOptions {
	return DefaultInitOptions().Merge(InitOptions{
		Viewport:    cfg.Viewport,
		UserAgent:   cfg.UserAgent,
		Permissions: cfg.Permissions,
		Headers:     cfg.Headers,
	})
}

// Credentials are used by the login strategies.
type Credentials struct {
	Username  string
	Password  string
	Flow      string
	KeyDelay  time.Duration
	LoginURL  string
	Selectors config.SelectorsConfig
}

// CredentialsFromConfig returns the login credentials from the auth section, or nil when none are configured.
func CredentialsFromConfig(cfg config.AuthConfig) *Credentials {
	if cfg.Username == "" && cfg.Password == "" {
		return nil
	}
	return &Credentials{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Flow:      cfg.Flow,
		KeyDelay:  cfg.KeyDelay,
		LoginURL:  cfg.LoginURL,
		Selectors: cfg.Selectors,
	}
}

func (c *Credentials) selectors() config.SelectorsConfig {
	s := c.Selectors
	if s.Username == "" {
		s.Username = "input[name=email]"
	}
	if s.Password == "" {
		s.Password = "input[name=password]"
	}
	if s.Submit == "" {
		s.Submit = "button[type=submit]"
	}
	return s
}

// NavigateOptions controls NavigateAndWait.
type NavigateOptions struct {
	WaitUntil       string
	Timeout         time.Duration
	AuthStrategy    string
	Credentials     *Credentials
	WaitForSelector string
	// BeforeScreenshot runs last, with a context bound to the page.
	BeforeScreenshot func(ctx context.Context) error
}

func (o NavigateOptions) withDefaults() NavigateOptions {
	if o.WaitUntil == "" {
		o.WaitUntil = WaitNetworkIdle2
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultNavigationTimeout
	}
	if o.AuthStrategy == "" {
		o.AuthStrategy = StrategyNone
	}
	return o
}

// Clip is a page region in CSS pixels.
type Clip struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ScreenshotOptions controls TakeScreenshot.
type ScreenshotOptions struct {
	Format   string
	Quality  int
	FullPage bool
	Clip     *Clip
}

func (o ScreenshotOptions) withDefaults() ScreenshotOptions {
	switch o.Format {
	case "jpg", FormatJPEG:
		o.Format = FormatJPEG
	default:
		o.Format = FormatPNG
	}
	if o.Format == FormatJPEG && (o.Quality <= 0 || o.Quality > 100) {
		o.Quality = defaultJPEGQuality
	}
	return o
}

// FormatDetails returns the file extension and content type for a screenshot format.
func FormatDetails(format string) (ext, contentType string) {
	switch format {
	case FormatJPEG, "jpg":
		return "jpg", "image/jpeg"
	default:
		return "png", "image/png"
	}
}
