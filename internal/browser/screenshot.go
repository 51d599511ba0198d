// internal/browser/screenshot.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// TakeScreenshot captures the current page. The browser is closed before it
// returns, whether the capture worked or not.
func (a *Automation) TakeScreenshot(ctx context.Context, opts ScreenshotOptions) (buf []byte, err error) {
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("Error closing browser.", zap.Error(cerr))
		}
	}()

	opts = opts.withDefaults()
	a.logger.Info("Taking screenshot.",
		zap.String("format", opts.Format),
		zap.Bool("full_page", opts.FullPage),
		zap.Bool("clipped", opts.Clip != nil),
	)

	if err := a.run(ctx, screenshotAction(opts, &buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("screenshot failed: browser returned an empty image")
	}
	return buf, nil
}

func screenshotAction(opts ScreenshotOptions, buf *[]byte) chromedp.Action {
	format := page.CaptureScreenshotFormatPng
	if opts.Format == FormatJPEG {
		format = page.CaptureScreenshotFormatJpeg
	}

	// FullScreenshot switches to PNG at quality 100 and to JPEG below it.
	if opts.FullPage && opts.Clip == nil {
		quality := 100
		if format == page.CaptureScreenshotFormatJpeg {
			quality = min(opts.Quality, 99)
		}
		return chromedp.FullScreenshot(buf, quality)
	}

	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(format).
			WithFromSurface(true)
		if format == page.CaptureScreenshotFormatJpeg {
			params = params.WithQuality(int64(opts.Quality))
		}
		if opts.Clip != nil {
			params = params.
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{
					X:      opts.Clip.X,
					Y:      opts.Clip.Y,
					Width:  opts.Clip.Width,
					Height: opts.Clip.Height,
					Scale:  1,
				})
		}
		var err error
		*buf, err = params.Do(ctx)
		return err
	})
}
