// Package imagefetch downloads a hint image, downsamples it towards a target
// box and stores the result in the session image cache.
package imagefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"bird-quiz-service/internal/imagecache"
)

const (
	// ChunkSize is the read size used while buffering the response body.
	ChunkSize = 4096
	// DefaultConnectTimeout bounds establishing the TCP connection.
	DefaultConnectTimeout = 10 * time.Second
)

// Fetcher performs single image downloads. One Fetcher is shared by both slots of a session.
type Fetcher struct {
	client *http.Client
	cache  *imagecache.Cache
	logger zerolog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client, e.g. for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher builds a Fetcher that fills cache on success.
// connectTimeout only bounds dialing; the download itself is bounded by the caller's context.
func NewFetcher(cache *imagecache.Cache, connectTimeout time.Duration, opts ...Option) *Fetcher {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext

	f := &Fetcher{
		client: &http.Client{Transport: transport},
		cache:  cache,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL, decodes it downsampled towards target and caches it under rawURL.
// progress may be nil. Errors wrap ErrFetch, ErrDecode or ErrCancelled.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, target Target, progress ProgressFunc) (image.Image, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	img, err := f.fetch(ctx, rawURL, target, progress)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("hint image not downloaded")
		return nil, err
	}
	if f.cache != nil {
		f.cache.Put(rawURL, img)
	}
	return img, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, target Target, progress ProgressFunc) (image.Image, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetch, resp.Status)
	}

	data, err := readChunked(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	img, err := decodeSampled(data, target)
	if err != nil {
		return nil, err
	}
	progress(Progress{Total: int64(len(data)), ContentLength: resp.ContentLength, Done: true})
	return img, nil
}

// readChunked buffers the whole body, reporting every chunk.
func readChunked(body io.Reader, contentLength int64, progress ProgressFunc) ([]byte, error) {
	var data bytes.Buffer
	if contentLength > 0 {
		data.Grow(int(contentLength))
	}
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data.Write(buf[:n])
			total += int64(n)
			progress(Progress{Read: n, Total: total, ContentLength: contentLength})
		}
		if errors.Is(err, io.EOF) {
			return data.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// decodeSampled reads the raw dimensions first, then decodes and reduces the
// image by the power-of-two factor computed for target.
func decodeSampled(data []byte, target Target) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	factor := SampleFactor(cfg.Width, cfg.Height, target)

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if factor == 1 {
		return img, nil
	}
	b := img.Bounds()
	w := max(1, b.Dx()/factor)
	h := max(1, b.Dy()/factor)
	return imaging.Resize(img, w, h, imaging.Box), nil
}
