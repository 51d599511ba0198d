package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// LocalSink writes objects into a directory. Used in debug mode.
type LocalSink struct {
	dir    string
	logger *zap.Logger
}

// NewLocalSink creates the sink, creating dir if needed.
func NewLocalSink(dir string, logger *zap.Logger) (*LocalSink, error) {
	if dir == "" {
		dir = "."
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, err
	}
	return &LocalSink{dir: expanded, logger: logger.Named("local_sink")}, nil
}

// Put writes <dir>/<key>.<ext>. Metadata is not kept.
func (s *LocalSink) Put(ctx context.Context, obj Object) (Location, error) {
	if err := obj.validate(); err != nil {
		return Location{}, wrapPut(obj.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return Location{}, wrapPut(obj.Name(), err)
	}

	path := filepath.Join(s.dir, obj.Name())
	if err := os.WriteFile(path, obj.Body, 0o644); err != nil {
		return Location{}, wrapPut(obj.Name(), err)
	}
	s.logger.Info("Screenshot saved locally.", zap.String("path", path), zap.Int("bytes", len(obj.Body)))

	return Location{URL: "local://screenshots/" + obj.Name(), StatusCode: 200}, nil
}
