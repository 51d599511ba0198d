package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/capture"
	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/event"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/storage"
	"github.com/xkilldash9x/preview-capture/internal/store"
)

// captureFlags are the per-request overrides of the capture command.
type captureFlags struct {
	title        string
	authStrategy string
	waitFor      string
	format       string
	fullPage     bool
	metadata     map[string]string
}

// newCaptureCmd creates the `capture` command, which runs one capture outside of Lambda.
func newCaptureCmd(a *app) *cobra.Command {
	f := &captureFlags{}

	cmd := &cobra.Command{
		Use:   "capture <key> <destination-url>",
		Short: "Captures a screenshot of a page and stores it",
		Example: `  preview-capture capture board-42 https://trello.com/b/abc/board --debug
  preview-capture capture post-7 https://www.facebook.com/some/post --auth-strategy login`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bindFlag(cmd, "storage.debug", "debug"); err != nil {
				return err
			}
			if err := a.bindFlag(cmd, "storage.local_dir", "local-dir"); err != nil {
				return err
			}
			return a.bindFlag(cmd, "browser.headless", "headless")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("cli")

			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				return err
			}

			sink, err := storage.NewSink(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}

			var opts []capture.Option
			if cfg.Database.URL != "" {
				st, closeDB, err := store.Connect(ctx, cfg.Database.URL, logger)
				if err != nil {
					return err
				}
				defer closeDB()
				opts = append(opts, capture.WithLedger(st))
			}

			req := f.request(cmd, args[0], args[1])
			svc := capture.NewService(cfg, sink, logger, opts...)
			res, err := svc.Capture(ctx, req)
			if err != nil {
				return err
			}

			logger.Info("Capture stored",
				zap.String("key", res.Key),
				zap.String("url", res.Location.URL),
				zap.Duration("duration", res.Duration),
			)
			return writeJSON(cmd, res)
		},
	}

	cmd.Flags().StringVar(&f.title, "title", "", "title stored in the object metadata")
	cmd.Flags().StringVar(&f.authStrategy, "auth-strategy", "", "none, dismiss, login, auto or session (default from config)")
	cmd.Flags().StringVar(&f.waitFor, "wait-for", "", "CSS selector to wait for before the screenshot")
	cmd.Flags().StringVar(&f.format, "format", "", "png or jpeg (default from config)")
	cmd.Flags().BoolVar(&f.fullPage, "full-page", false, "capture the whole scrollable page")
	cmd.Flags().StringToStringVar(&f.metadata, "metadata", nil, "extra object metadata as key=value pairs")
	cmd.Flags().Bool("debug", false, "write the screenshot to --local-dir instead of S3")
	cmd.Flags().String("local-dir", ".", "directory used in debug mode")
	cmd.Flags().Bool("headless", true, "run the browser without a window")

	return cmd
}

// request builds the capture request. Only flags the user actually set override the config.
func (f *captureFlags) request(cmd *cobra.Command, key, destination string) *event.Request {
	req := &event.Request{
		Key:             key,
		DestinationURL:  destination,
		Title:           f.title,
		Metadata:        f.metadata,
		AuthStrategy:    f.authStrategy,
		WaitForSelector: f.waitFor,
		Format:          f.format,
	}
	if cmd.Flags().Changed("full-page") {
		fullPage := f.fullPage
		req.FullPage = &fullPage
	}
	return req
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
