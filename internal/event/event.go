// Package event turns the raw payload handed to the capture function into a validated Request.
//
// API Gateway proxy integrations deliver the request body as a JSON-encoded string,
// direct invocations (and the local CLI) deliver it as an object. Both are accepted.
package event

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strings"

	json "github.com/json-iterator/go"
	"golang.org/x/net/idna"

	"github.com/xkilldash9x/preview-capture/internal/config"
)

var (
	ErrInvalidJSON     = errors.New("Invalid JSON string")
	ErrUnsupportedBody = errors.New("Unsupported body type")
	ErrMissingKey      = errors.New("key is required")
	ErrInvalidKey      = errors.New("key must be a plain name without path separators")
	ErrMissingURL      = errors.New("destinationUrl is required")
	ErrInvalidURL      = errors.New("destinationUrl must be an absolute http(s) URL")
	ErrInvalidOption   = errors.New("invalid capture option")
	ErrInvalidField    = errors.New("request field has the wrong type")
)

const maxKeyLength = 1000

// Envelope is the outer shape of the invocation payload.
type Envelope struct {
	Body json.RawMessage `json:"body"`
}

// Request is a single capture job.
type Request struct {
	Key             string            `json:"key"`
	DestinationURL  string            `json:"destinationUrl"`
	Title           string            `json:"title,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	AuthStrategy    string            `json:"authStrategy,omitempty"`
	WaitForSelector string            `json:"waitForSelector,omitempty"`
	FullPage        *bool             `json:"fullPage,omitempty"`
	Format          string            `json:"format,omitempty"`
}

// Parse decodes a full invocation payload and validates the request inside it.
func Parse(raw []byte) (*Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedBody, err)
	}
	return ParseBody(env.Body)
}

// ParseBody normalizes a body that is either a JSON string containing an object, or an object.
func ParseBody(body []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrUnsupportedBody
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		inner := bytes.TrimSpace([]byte(s))
		if len(inner) == 0 || inner[0] != '{' {
			return nil, ErrInvalidJSON
		}
		return decodeObject(inner, ErrInvalidJSON)
	case '{':
		return decodeObject(trimmed, ErrUnsupportedBody)
	default:
		// null, numbers, booleans and arrays are not capture requests.
		return nil, ErrUnsupportedBody
	}
}

func decodeObject(data []byte, sentinel error) (*Request, error) {
	if !json.Valid(data) {
		return nil, sentinel
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// Well formed JSON that does not fit Request, e.g. a numeric key.
		return nil, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Request) normalize() {
	r.Key = strings.TrimSpace(r.Key)
	r.DestinationURL = strings.TrimSpace(r.DestinationURL)
	r.AuthStrategy = strings.ToLower(strings.TrimSpace(r.AuthStrategy))
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "jpg" {
		r.Format = "jpeg"
	}
}

// Validate checks required fields and the shape of the key and destination URL.
func (r *Request) Validate() error {
	if r.Key == "" {
		return ErrMissingKey
	}
	if len(r.Key) > maxKeyLength || r.Key == "." || r.Key == ".." || strings.ContainsAny(r.Key, `/\`) {
		return ErrInvalidKey
	}
	if r.DestinationURL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(r.DestinationURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := idna.Lookup.ToASCII(host); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
	}
	if r.AuthStrategy != "" && !config.ValidStrategy(r.AuthStrategy) {
		return fmt.Errorf("%w: unknown authStrategy %q", ErrInvalidOption, r.AuthStrategy)
	}
	if r.Format != "" && r.Format != "png" && r.Format != "jpeg" {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidOption, r.Format)
	}
	return nil
}

// ObjectMetadata returns the metadata stored alongside the captured image.
// Caller-supplied metadata overrides the defaults. Keys are lower-cased; when
// several caller keys fold to the same name, the lower-case spelling wins.
func (r *Request) ObjectMetadata() map[string]string {
	md := map[string]string{
		"destination-url": r.DestinationURL,
		"key":             r.Key,
		"title":           r.Title,
	}
	for _, k := range slices.Sorted(maps.Keys(r.Metadata)) {
		md[strings.ToLower(k)] = r.Metadata[k]
	}
	return md
}

// IsBadRequest reports whether err was caused by the caller's payload rather than by the capture itself.
func IsBadRequest(err error) bool {
	for _, target := range []error{ErrInvalidJSON, ErrUnsupportedBody, ErrMissingKey, ErrInvalidKey, ErrMissingURL, ErrInvalidURL, ErrInvalidOption, ErrInvalidField} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
