// Package capture runs one screenshot job from request to stored image.
package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/browser"
	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/event"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/storage"
	"github.com/xkilldash9x/preview-capture/internal/store"
)

// Browser is the page automation the service drives.
type Browser interface {
	Initialize(ctx context.Context, opts browser.InitOptions) error
	NavigateAndWait(ctx context.Context, url string, opts browser.NavigateOptions) error
	TakeScreenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error)
	Close() error
}

// BrowserFactory creates a fresh browser for every capture.
type BrowserFactory func(cfg *config.Config, logger *zap.Logger) Browser

// DefaultBrowserFactory launches a real chromedp browser.
func DefaultBrowserFactory(cfg *config.Config, logger *zap.Logger) Browser {
	return browser.New(cfg, logger)
}

// Ledger records successful captures.
type Ledger interface {
	RecordCapture(ctx context.Context, rec store.Record) error
}

// Result is the outcome of a capture.
type Result struct {
	Key      string           `json:"key"`
	Name     string           `json:"name"`
	Location storage.Location `json:"location"`
	Bytes    int              `json:"bytes"`
	Duration time.Duration    `json:"duration"`
}

// Service runs captures sequentially: launch, navigate, authenticate, screenshot, persist, record.
type Service struct {
	cfg        *config.Config
	sink       storage.Sink
	ledger     Ledger
	newBrowser BrowserFactory
	logger     *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithLedger records every successful capture in l.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithBrowserFactory replaces the browser used for captures.
func WithBrowserFactory(f BrowserFactory) Option {
	return func(s *Service) { s.newBrowser = f }
}

// NewService builds the capture pipeline around sink.
func NewService(cfg *config.Config, sink storage.Sink, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		sink:       sink,
		newBrowser: DefaultBrowserFactory,
		logger:     logger.Named("capture"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture takes the screenshot described by req and stores it.
// The browser is closed on every path.
func (s *Service) Capture(ctx context.Context, req *event.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := observability.WithInvocation(ctx, s.logger).With(
		zap.String("key", req.Key),
		zap.String("destination_url", req.DestinationURL),
	)

	// 1. Launch.
	b := s.newBrowser(s.cfg, log)
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Failed to close browser.", zap.Error(err))
		}
	}()
	if err := b.Initialize(ctx, browser.InitOptionsFromConfig(s.cfg.Browser)); err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	// 2. Navigate and authenticate.
	if err := b.NavigateAndWait(ctx, req.DestinationURL, s.navigateOptions(req)); err != nil {
		return nil, err
	}

	// 3. Screenshot. This also closes the browser.
	shotOpts := s.screenshotOptions(req)
	image, err := b.TakeScreenshot(ctx, shotOpts)
	if err != nil {
		return nil, err
	}

	// 4. Persist.
	ext, contentType := browser.FormatDetails(shotOpts.Format)
	obj := storage.Object{
		Key:         req.Key,
		Extension:   ext,
		ContentType: contentType,
		Body:        image,
		Metadata:    req.ObjectMetadata(),
	}
	loc, err := s.sink.Put(ctx, obj)
	if err != nil {
		return nil, err
	}

	// 5. Record. Never fails the capture.
	if s.ledger != nil {
		rec := store.Record{
			Key:            req.Key,
			DestinationURL: req.DestinationURL,
			Location:       loc.URL,
			StatusCode:     loc.StatusCode,
			RequestID:      observability.RequestID(ctx),
		}
		if err := s.ledger.RecordCapture(ctx, rec); err != nil {
			log.Warn("Failed to record capture in ledger.", zap.Error(err))
		}
	}

	res := &Result{
		Key:      req.Key,
		Name:     obj.Name(),
		Location: loc,
		Bytes:    len(image),
		Duration: time.Since(start),
	}
	log.Info("Capture complete.",
		zap.String("url", loc.URL),
		zap.Int("status_code", loc.StatusCode),
		zap.Int("bytes", res.Bytes),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (s *Service) navigateOptions(req *event.Request) browser.NavigateOptions {
	strategy := s.cfg.Auth.Strategy
	if req.AuthStrategy != "" {
		strategy = req.AuthStrategy
	}
	waitFor := s.cfg.Navigation.WaitForSelector
	if req.WaitForSelector != "" {
		waitFor = req.WaitForSelector
	}
	return browser.NavigateOptions{
		WaitUntil:       s.cfg.Navigation.WaitUntil,
		Timeout:         s.cfg.Navigation.Timeout,
		AuthStrategy:    strategy,
		Credentials:     browser.CredentialsFromConfig(s.cfg.Auth),
		WaitForSelector: waitFor,
	}
}

func (s *Service) screenshotOptions(req *event.Request) browser.ScreenshotOptions {
	opts := browser.ScreenshotOptions{
		Format:   s.cfg.Screenshot.Format,
		Quality:  s.cfg.Screenshot.Quality,
		FullPage: s.cfg.Screenshot.FullPage,
	}
	if req.Format != "" {
		opts.Format = req.Format
	}
	if req.FullPage != nil {
		opts.FullPage = *req.FullPage
	}
	return opts
}
