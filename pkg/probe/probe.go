// Package probe measures the intrinsic dimensions of images.
package probe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

var (
	// ErrStatus is returned when a remote image responds with a non-2xx status.
	ErrStatus = errors.New("unexpected status")
	// ErrEmpty is returned for images with a zero width or height.
	ErrEmpty = errors.New("empty image")
)

// Size is the intrinsic size of an image in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Prober returns the intrinsic size of the image at url.
type Prober interface {
	Probe(ctx context.Context, url string) (Size, error)
}

// Func adapts a plain function to a Prober.
type Func func(ctx context.Context, url string) (Size, error)

// Probe calls f.
func (f Func) Probe(ctx context.Context, url string) (Size, error) {
	return f(ctx, url)
}

// decode reads just enough of r to learn the image dimensions.
func decode(r io.Reader) (Size, error) {
	ic, _, err := image.DecodeConfig(r)
	if err != nil {
		return Size{}, fmt.Errorf("decode: %w", err)
	}
	if ic.Width == 0 || ic.Height == 0 {
		return Size{}, fmt.Errorf("%dx%d: %w", ic.Width, ic.Height, ErrEmpty)
	}
	return Size{Width: ic.Width, Height: ic.Height}, nil
}

// File probes images served from a local static directory.
// A URL such as "/portfolio2/pf-1.PNG" resolves to Root/portfolio2/pf-1.PNG.
type File struct {
	Root string
}

// Path returns the local path for url.
func (f File) Path(url string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(url))
	return filepath.Join(f.Root, clean)
}

func (f File) Probe(ctx context.Context, url string) (Size, error) {
	if err := ctx.Err(); err != nil {
		return Size{}, err
	}

	p := f.Path(url)
	fh, err := os.Open(p)
	if err != nil {
		return Size{}, fmt.Errorf("open: %w", err)
	}
	defer fh.Close()

	s, err := decode(fh)
	if err != nil {
		return Size{}, fmt.Errorf("%s: %w", p, err)
	}
	klog.V(2).Infof("probed %s: %dx%d", p, s.Width, s.Height)
	return s, nil
}

// HTTP probes remote images. Only the image header is downloaded.
type HTTP struct {
	Client  *http.Client
	Limiter *rate.Limiter
}

// NewHTTP returns an HTTP prober limited to rps requests per second.
func NewHTTP(rps float64) *HTTP {
	return &HTTP{
		Client:  http.DefaultClient,
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (h *HTTP) Probe(ctx context.Context, url string) (Size, error) {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return Size{}, fmt.Errorf("wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Size{}, fmt.Errorf("request: %w", err)
	}

	c := h.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return Size{}, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Size{}, fmt.Errorf("%s: %d: %w", url, resp.StatusCode, ErrStatus)
	}

	s, err := decode(resp.Body)
	if err != nil {
		return Size{}, fmt.Errorf("%s: %w", url, err)
	}
	klog.V(2).Infof("probed %s: %dx%d", url, s.Width, s.Height)
	return s, nil
}

// Auto routes http(s) URLs to Remote and everything else to Local.
type Auto struct {
	Local  Prober
	Remote Prober
}

// New returns a cached prober for a static root that also handles remote URLs.
func New(root string, rps float64) *Cache {
	return NewCache(&Auto{Local: File{Root: root}, Remote: NewHTTP(rps)})
}

func (a *Auto) Probe(ctx context.Context, url string) (Size, error) {
	if IsRemote(url) {
		return a.Remote.Probe(ctx, url)
	}
	return a.Local.Probe(ctx, url)
}

// IsRemote reports whether url must be fetched over the network.
func IsRemote(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
