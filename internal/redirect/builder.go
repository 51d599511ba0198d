package redirect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/storage"
)

const maxConcurrentRecords = 4

// ErrMissingDestination is returned when a screenshot carries no destination-url metadata.
var ErrMissingDestination = errors.New("object metadata has no destination-url")

// Builder reacts to new screenshots by publishing their redirect pages.
type Builder struct {
	client   storage.S3API
	region   string
	redirect *storage.S3Sink
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewBuilder returns a Builder writing into the configured redirect bucket.
func NewBuilder(client storage.S3API, cfg config.RedirectConfig, logger *zap.Logger) *Builder {
	log := logger.Named("redirect")
	return &Builder{
		client:   client,
		region:   cfg.Region,
		redirect: storage.NewS3Sink(client, cfg.Bucket, cfg.Region, log),
		limiter:  newLimiter(cfg.PutsPerSecond),
		logger:   log,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// PageURL is the path-style URL a redirect page is served from.
func (b *Builder) PageURL(name string) string {
	return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", b.region, b.redirect.Bucket(), url.PathEscape(name))
}

// HandleS3Event publishes one redirect page per uploaded object and returns their URLs.
func (b *Builder) HandleS3Event(ctx context.Context, evt events.S3Event) ([]string, error) {
	log := observability.WithInvocation(ctx, b.logger)
	urls := make([]string, len(evt.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRecords)
	for i, rec := range evt.Records {
		g.Go(func() error {
			u, err := b.handleRecord(gctx, rec)
			if err != nil {
				return err
			}
			urls[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Failed to build redirect pages.", zap.Error(err))
		return nil, err
	}

	created := urls[:0]
	for _, u := range urls {
		if u != "" {
			created = append(created, u)
		}
	}
	log.Info("Redirect pages created.", zap.Strings("urls", created))
	return created, nil
}

func (b *Builder) handleRecord(ctx context.Context, rec events.S3EventRecord) (string, error) {
	bucket := rec.S3.Bucket.Name
	objectKey := rec.S3.Object.URLDecodedKey
	if objectKey == "" {
		decoded, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return "", fmt.Errorf("malformed object key %q: %w", rec.S3.Object.Key, err)
		}
		objectKey = decoded
	}
	log := b.logger.With(zap.String("bucket", bucket), zap.String("object_key", objectKey))

	// A page landing in a watched bucket must not produce a page of its own.
	if strings.HasSuffix(objectKey, ".html") {
		log.Debug("Skipping redirect page upload.")
		return "", nil
	}

	source := storage.NewS3Sink(b.client, bucket, b.region, b.logger)
	info, err := source.Head(ctx, objectKey)
	if err != nil {
		return "", err
	}

	page, key, err := pageFromMetadata(info.Metadata, source.URL(objectKey), objectKey)
	if err != nil {
		return "", fmt.Errorf("%s/%s: %w", bucket, objectKey, err)
	}
	html, err := Render(page)
	if err != nil {
		return "", fmt.Errorf("failed to render redirect page for %s: %w", key, err)
	}

	obj := storage.Object{Key: key, Extension: "html", ContentType: "text/html", Body: html}
	if err := b.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	if _, err := b.redirect.Put(ctx, obj); err != nil {
		return "", err
	}
	pageURL := b.PageURL(obj.Name())
	log.Info("Redirect page created.", zap.String("url", pageURL))
	return pageURL, nil
}

// pageFromMetadata builds the page for a screenshot and returns the key its page is stored under.
func pageFromMetadata(md map[string]string, previewURL, objectKey string) (Page, string, error) {
	dest := md["destination-url"]
	if dest == "" {
		return Page{}, "", ErrMissingDestination
	}
	title := md["title"]
	if title == "" {
		title = GuessTitle(dest)
	}
	key := md["key"]
	if key == "" {
		key = strings.TrimSuffix(objectKey, path.Ext(objectKey))
	}
	return Page{Title: title, PreviewURL: previewURL, DestinationURL: dest}, key, nil
}
