// Command redirect-lambda builds HTML redirect pages for screenshots uploaded to the preview bucket.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/redirect"
	"github.com/xkilldash9x/preview-capture/internal/storage"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "redirect-lambda:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadRedirect(os.Getenv("PREVIEW_CONFIG_FILE"))
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	defer observability.Sync()
	logger := observability.GetLogger()

	client, err := storage.NewS3Client(ctx, cfg.Redirect.Region, cfg.Storage)
	if err != nil {
		return err
	}

	b := redirect.NewBuilder(client, cfg.Redirect, logger)
	logger.Info("Redirect function ready", zap.String("bucket", cfg.Redirect.Bucket))
	lambda.StartWithOptions(b.HandleS3Event, lambda.WithEnableSIGTERM(observability.Sync))
	return nil
}
