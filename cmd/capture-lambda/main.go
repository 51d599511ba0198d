// Command capture-lambda is the AWS Lambda entry point of the screenshot function.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/capture"
	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/handler"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/storage"
	"github.com/xkilldash9x/preview-capture/internal/store"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "capture-lambda:", err)
		os.Exit(1)
	}
}

// run wires the handler once per container. Invocations reuse the sink and the ledger pool.
func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("PREVIEW_CONFIG_FILE"))
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	defer observability.Sync()
	logger := observability.GetLogger()

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

	h := handler.New(capture.NewService(cfg, sink, logger, opts...), logger)
	logger.Info("Capture function ready",
		zap.Bool("debug", cfg.Storage.Debug),
		zap.Bool("ledger", cfg.Database.URL != ""),
	)
	lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(observability.Sync))
	return nil
}
