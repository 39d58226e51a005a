package folio

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"k8s.io/klog/v2"
)

var ModTimeFormat = "150405"

// ThumbOpts are thumbnail options.
type ThumbOpts struct {
	X       int `toml:"x"`
	Y       int `toml:"y"`
	Quality int `toml:"quality"`
}

func defaultThumbOpts() map[string]ThumbOpts {
	return map[string]ThumbOpts{
		"Column": {X: 400, Quality: 85},
		"Row":    {Y: 400, Quality: 85},
		"View":   {X: 2048, Quality: 85},
	}
}

// thumbnails creates (or reuses) the renditions of a local illustration.
func thumbnails(il *Illustration, outDir string, opts map[string]ThumbOpts) (map[string]ThumbMeta, error) {
	klog.V(1).Infof("creating thumbnails for %s in %s", il.InPath, outDir)

	sst, err := os.Stat(il.InPath)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	rel := strings.TrimPrefix(il.ImageURL, "/")

	var img image.Image
	thumbs := map[string]ThumbMeta{}

	for name, t := range opts {
		relPath := thumbRelPath(rel, sst.ModTime(), t)
		klog.V(1).Infof("thumb relpath: %s", relPath)
		fullPath := filepath.Join(outDir, relPath)

		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}

		st, err := os.Stat(fullPath)
		if err == nil && st.Size() > int64(128) {
			klog.V(1).Infof("%s exists (%d bytes)", fullPath, st.Size())
			rt, err := readThumb(fullPath)
			if err == nil {
				rt.RelPath = relPath
				thumbs[name] = *rt
				continue
			}
			klog.Warningf("unable to read thumb: %v", err)
		}

		if img == nil {
			img, err = imgio.Open(il.InPath)
			if err != nil {
				return nil, fmt.Errorf("imgio.Open: %w", err)
			}
		}

		ct, err := createThumb(img, fullPath, t)
		if err != nil {
			return nil, fmt.Errorf("create thumb: %w", err)
		}

		ct.RelPath = relPath
		thumbs[name] = *ct
		klog.V(1).Infof("created thumb: %+v", ct)
	}

	return thumbs, nil
}

func createThumb(i image.Image, path string, t ThumbOpts) (*ThumbMeta, error) {
	klog.V(1).Infof("creating %dx%d thumb: %s - %+v", t.X, t.Y, path, i.Bounds())
	dx := i.Bounds().Dx()
	dy := i.Bounds().Dy()

	if dy == 0 {
		return nil, fmt.Errorf("no Y for %+v", i.Bounds())
	}
	if dx == 0 {
		return nil, fmt.Errorf("no X for %+v", i.Bounds())
	}
	if t.X == 0 && t.Y == 0 {
		return nil, fmt.Errorf("thumb options need X or Y: %+v", t)
	}

	// Never upscale.
	x, y := min(t.X, dx), min(t.Y, dy)

	if t.X == 0 {
		scale := float64(dy) / float64(y)
		x = int(float64(dx) / scale)
	}
	if t.Y == 0 {
		scale := float64(dx) / float64(x)
		y = int(float64(dy) / scale)
	}
	x, y = max(x, 1), max(y, 1)

	rimg := transform.Resize(i, x, y, transform.Lanczos)
	if err := imgio.Save(path, rimg, imgio.JPEGEncoder(t.Quality)); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	return &ThumbMeta{X: rimg.Bounds().Dx(), Y: rimg.Bounds().Dy(), Path: path}, nil
}

func readThumb(path string) (*ThumbMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	ic, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode: %w", err)
	}

	return &ThumbMeta{X: ic.Width, Y: ic.Height, Path: path}, nil
}

// thumbRelPath returns a relative path to a thumbnail, optimizing for both cache busting and SEO.
func thumbRelPath(rel string, modTime time.Time, t ThumbOpts) string {
	base := filepath.Base(rel)
	ext := filepath.Ext(base)
	noExt := strings.TrimSuffix(base, ext)

	thumbDir := filepath.Join(filepath.Dir(rel), "_")
	dimensions := ""
	if t.X != 0 {
		dimensions = fmt.Sprintf("x%d", t.X)
	}
	if t.Y != 0 {
		dimensions = fmt.Sprintf("y%d", t.Y)
	}

	// ModTimeFormat is important to catch minor adjustments
	newBase := fmt.Sprintf("%s@%s_%s.jpg", noExt, dimensions, modTime.Format(ModTimeFormat))
	return urlSafePath(filepath.ToSlash(filepath.Join(thumbDir, newBase)))
}

// urlSafePath replaces characters that would need escaping in a URL.
func urlSafePath(p string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("/._-@", r):
			return r
		}
		return '_'
	}, p)
}
