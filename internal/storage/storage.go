// Package storage persists captured images, either on local disk for debugging or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"mime"
	"slices"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

// ErrEmptyObject is returned when asked to store an object without a body.
var ErrEmptyObject = errors.New("object has no body")

// Object is a single file to persist.
type Object struct {
	Key         string
	Extension   string
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// Name is the stored file name, <key>.<ext>.
func (o Object) Name() string {
	if o.Extension == "" {
		return o.Key
	}
	return o.Key + "." + o.Extension
}

func (o Object) validate() error {
	if o.Key == "" {
		return errors.New("object has no key")
	}
	if len(o.Body) == 0 {
		return ErrEmptyObject
	}
	return nil
}

// Location describes where an object ended up.
type Location struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
}

// Sink stores objects.
type Sink interface {
	Put(ctx context.Context, obj Object) (Location, error)
}

// NewSink returns a LocalSink in debug mode and an S3Sink otherwise.
func NewSink(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Sink, error) {
	if cfg.Debug {
		return NewLocalSink(cfg.LocalDir, logger)
	}
	client, err := NewS3Client(ctx, cfg.Region, cfg)
	if err != nil {
		return nil, err
	}
	return NewS3Sink(client, cfg.Bucket, cfg.Region, logger).WithEndpoint(cfg.Endpoint), nil
}

// EncodeMetadata prepares metadata for S3, which only accepts ASCII header values.
// Keys are lower-cased, with the lower-case spelling winning a collision.
// Values with non-ASCII or control characters are RFC 2047 encoded.
func EncodeMetadata(md map[string]string) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for _, k := range slices.Sorted(maps.Keys(md)) {
		out[strings.ToLower(k)] = encodeValue(md[k])
	}
	return out
}

func encodeValue(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] >= utf8.RuneSelf || v[i] < 0x20 || v[i] == 0x7f {
			return mime.QEncoding.Encode("utf-8", v)
		}
	}
	return v
}

// DecodeMetadata reverses EncodeMetadata. Values that fail to decode are returned as is.
func DecodeMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	dec := new(mime.WordDecoder)
	for k, v := range md {
		if decoded, err := dec.DecodeHeader(v); err == nil {
			v = decoded
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func wrapPut(name string, err error) error {
	return fmt.Errorf("failed to store %s: %w", name, err)
}
