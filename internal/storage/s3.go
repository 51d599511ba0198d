package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.uber.org/zap"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

// S3API is the part of the S3 client the sinks use.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds an S3 client for region. Static credentials from cfg are
// used when present, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, region string, cfg config.StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// ObjectInfo is what HeadObject reports about a stored object.
type ObjectInfo struct {
	ContentType   string
	ContentLength int64
	Metadata      map[string]string
}

// S3Sink stores objects in a single bucket.
type S3Sink struct {
	client   S3API
	bucket   string
	region   string
	endpoint string
	logger   *zap.Logger
}

// NewS3Sink returns a sink writing into bucket.
func NewS3Sink(client S3API, bucket, region string, logger *zap.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger.Named("s3_sink").With(zap.String("bucket", bucket)),
	}
}

// WithEndpoint makes returned URLs point at a custom S3-compatible endpoint.
func (s *S3Sink) WithEndpoint(endpoint string) *S3Sink {
	s.endpoint = strings.TrimRight(endpoint, "/")
	return s
}

// Bucket returns the bucket name.
func (s *S3Sink) Bucket() string {
	return s.bucket
}

// URL returns the public URL of name in this bucket.
func (s *S3Sink) URL(name string) string {
	escaped := url.PathEscape(name)
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

// Put uploads the object as <key>.<ext>.
func (s *S3Sink) Put(ctx context.Context, obj Object) (Location, error) {
	name := obj.Name()
	if err := obj.validate(); err != nil {
		return Location{}, wrapPut(name, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(obj.Body),
		ContentLength: aws.Int64(int64(len(obj.Body))),
		Metadata:      EncodeMetadata(obj.Metadata),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return Location{}, wrapPut(name, err)
	}

	status := http.StatusOK
	if out != nil {
		if raw, ok := awsmiddleware.GetRawResponse(out.ResultMetadata).(*smithyhttp.Response); ok && raw != nil {
			status = raw.StatusCode
		}
	}

	loc := Location{URL: s.URL(name), StatusCode: status}
	s.logger.Info("Object uploaded.", zap.String("key", name), zap.Int("status_code", status), zap.Int("bytes", len(obj.Body)))
	return loc, nil
}

// Head returns the content type, size and decoded metadata of name.
func (s *S3Sink) Head(ctx context.Context, name string) (*ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head %s/%s: %w", s.bucket, name, err)
	}
	return &ObjectInfo{
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
		Metadata:      DecodeMetadata(out.Metadata),
	}, nil
}
