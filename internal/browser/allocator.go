// internal/browser/allocator.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

// serverlessChromiumArgs is the flag set the Lambda Chromium build needs to start
// inside the sandboxless, single-process execution environment.
var serverlessChromiumArgs = []string{
	"allow-running-insecure-content",
	"autoplay-policy=user-gesture-required",
	"disable-component-update",
	"disable-dev-shm-usage",
	"disable-domain-reliability",
	"disable-features=AudioServiceOutOfProcess,IsolateOrigins,site-per-process",
	"disable-print-preview",
	"disable-setuid-sandbox",
	"disable-site-isolation-trials",
	"disable-speech-api",
	"disable-web-security",
	"disk-cache-size=33554432",
	"enable-features=SharedArrayBuffer",
	"hide-scrollbars",
	"ignore-gpu-blocklist",
	"in-process-gpu",
	"mute-audio",
	"no-default-browser-check",
	"no-sandbox",
	"no-pings",
	"no-zygote",
	"single-process",
	"use-angle=swiftshader",
	"use-gl=angle",
}

// AllocatorOptions translates the browser config into chromedp exec allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	// Start with chromedp defaults.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	for name, value := range launchFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// launchFlags returns the command line flags layered over the chromedp defaults.
func launchFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{}

	// The chromedp defaults already run headless; a visible window must be asked for.
	if !cfg.Headless {
		flags["headless"] = false
	}
	if cfg.DevTools {
		flags["auto-open-devtools-for-tabs"] = true
	}
	if cfg.DisableGPU {
		flags["disable-gpu"] = true
	}
	if cfg.UserAgent != "" {
		flags["user-agent"] = cfg.UserAgent
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}

	if !cfg.IsLocal() {
		addFlags(flags, serverlessChromiumArgs)
	}
	addFlags(flags, cfg.Args)
	return flags
}

// addFlags parses "--flag" and "--key=value" strings into flags.
// chromedp adds the leading dashes itself.
func addFlags(flags map[string]interface{}, args []string) {
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
}
