package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/smarttraffic/console/internal/provider/resilience"
)

const (
	// ProviderName identifies the feed loader in the health registry.
	ProviderName = "media-feed"

	// DefaultMaxFrameSize caps the bytes read for one frame.
	DefaultMaxFrameSize = 8 << 20
)

var (
	// ErrUnexpectedContent is returned when a feed serves something other than an image.
	ErrUnexpectedContent = errors.New("unexpected feed content type")

	// ErrFrameTooLarge is returned when a frame exceeds the configured size.
	ErrFrameTooLarge = errors.New("frame too large")
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPLoaderConfig holds configuration for an HTTPLoader.
type HTTPLoaderConfig struct {
	// HTTPClient executes requests. If nil, a resilient client is created.
	HTTPClient HTTPDoer

	// Registry receives the default client's health. Ignored when HTTPClient is set.
	Registry *resilience.Registry

	// Timeout for a single frame (default: 10s).
	Timeout time.Duration

	// MaxFrameSize defaults to DefaultMaxFrameSize.
	MaxFrameSize int64
}

// HTTPLoader reads single frames from the backend's video feed. The feed is
// either one image or a multipart/x-mixed-replace stream, in which case only
// the first part is read.
type HTTPLoader struct {
	client  HTTPDoer
	maxSize int64
}

var _ Loader = (*HTTPLoader)(nil)

// NewHTTPLoader creates an HTTPLoader.
func NewHTTPLoader(cfg HTTPLoaderConfig) *HTTPLoader {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		// The controller owns retries for feeds.
		client = resilience.NewClient(resilience.ClientConfig{
			Name:         ProviderName,
			Timeout:      timeout,
			DisableRetry: true,
			Registry:     cfg.Registry,
		})
	}
	return &HTTPLoader{client: client, maxSize: cfg.MaxFrameSize}
}

// Load fetches one frame from locator.
func (l *HTTPLoader) Load(ctx context.Context, locator string) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*, multipart/x-mixed-replace")

	resp, err := l.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("load frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Frame{}, fmt.Errorf("load frame: status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrUnexpectedContent, err)
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		data, err := l.read(resp.Body)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Data: data, ContentType: mediaType}, nil

	case strings.HasPrefix(mediaType, "multipart/"):
		part, err := multipart.NewReader(resp.Body, params["boundary"]).NextPart()
		if err != nil {
			return Frame{}, fmt.Errorf("read first part: %w", err)
		}
		defer part.Close()

		ct := part.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "image/") {
			return Frame{}, fmt.Errorf("%w: part %q", ErrUnexpectedContent, ct)
		}
		data, err := l.read(part)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Data: data, ContentType: ct}, nil

	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnexpectedContent, mediaType)
	}
}

func (l *HTTPLoader) read(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, ErrFrameTooLarge
	}
	return data, nil
}

// FrameSource renders frames without a network round trip, as the fixture
// backend does.
type FrameSource interface {
	Frame(ctx context.Context, locator string) ([]byte, string, error)
}

// SourceLoader adapts a FrameSource to Loader.
func SourceLoader(src FrameSource) Loader {
	return LoaderFunc(func(ctx context.Context, locator string) (Frame, error) {
		data, contentType, err := src.Frame(ctx, locator)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Data: data, ContentType: contentType}, nil
	})
}
