// internal/browser/cookies.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// Cookie is the on-disk cookie shape, compatible with the JSON that
// puppeteer's page.cookies() produces.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	URL      string  `json:"url,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

func (c Cookie) param() *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		URL:      c.URL,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if c.SameSite != "" {
		p.SameSite = network.CookieSameSite(c.SameSite)
	}
	// Session cookies are stored with expires -1.
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
		p.Expires = &expires
	}
	return p
}

func cookieFromNetwork(c *network.Cookie) Cookie {
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		Session:  c.Session,
		SameSite: string(c.SameSite),
	}
}

func cookieParams(cookies []Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, c.param())
	}
	return params
}

// ReadCookieFile decodes a cookie file.
func ReadCookieFile(path string) ([]Cookie, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("malformed cookie file %s: %w", expanded, err)
	}
	return cookies, nil
}

// WriteCookieFile stores cookies as indented JSON, readable only by the owner.
func WriteCookieFile(path string, cookies []Cookie) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(expanded, data, 0o600)
}

// cookieFileExists reports whether a saved session is available.
func cookieFileExists(path string) bool {
	if path == "" {
		return false
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(expanded)
	return err == nil
}

// LoadCookies installs the cookies from the configured cookie file. A missing
// or unreadable file is only logged; initialization carries on without it.
func (a *Automation) LoadCookies(ctx context.Context) error {
	path := a.cfg.Browser.CookieFile
	if path == "" {
		return nil
	}
	a.logger.Debug("Loading cookies.", zap.String("path", path))

	cookies, err := ReadCookieFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Info("No saved cookies found.", zap.String("path", path))
		} else {
			a.logger.Warn("Failed to read cookies.", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	if len(cookies) == 0 {
		return nil
	}

	if err := a.run(ctx, network.SetCookies(cookieParams(cookies))); err != nil {
		a.logger.Warn("Failed to install saved cookies.", zap.Error(err))
		return nil
	}
	a.logger.Debug("Cookies loaded.", zap.Int("count", len(cookies)))
	return nil
}

// SaveCookies writes every cookie the browser holds to the configured cookie file.
func (a *Automation) SaveCookies(ctx context.Context) error {
	path := a.cfg.Browser.CookieFile
	if path == "" {
		return nil
	}

	var raw []*network.Cookie
	err := a.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, cookieFromNetwork(c))
	}
	if err := WriteCookieFile(path, cookies); err != nil {
		return fmt.Errorf("failed to save cookies to %s: %w", path, err)
	}
	a.logger.Info("Cookies saved.", zap.String("path", path), zap.Int("count", len(cookies)))
	return nil
}
