package folio

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/layout"
	"github.com/tstromberg/folio/pkg/lightbox"
)

//go:embed assets/*.tmpl
var templateFS embed.FS

//go:embed assets/style.css
var styleText string

// columnPlan is a gallery plan for one column count.
type columnPlan struct {
	N    int
	Plan *layout.Plan
}

// Render writes the site for a to c.OutDir.
func Render(c *Config, a *Assembly) error {
	if err := copyAssets(c.ContentDir, c.OutDir); err != nil {
		return fmt.Errorf("copyAssets: %w", err)
	}

	tmpl, err := parseTemplates(a)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if err := writeHome(c, a, tmpl); err != nil {
		return fmt.Errorf("write home: %w", err)
	}

	if err := writeIllustrations(c, a, tmpl); err != nil {
		return fmt.Errorf("write illustrations: %w", err)
	}

	if err := writeLightboxes(c, a, tmpl); err != nil {
		return fmt.Errorf("write lightboxes: %w", err)
	}

	if err := writePage(tmpl, "games.tmpl", filepath.Join(c.OutDir, "games", "index.html"), struct {
		Site  *Config
		Path  string
		Style template.CSS
		Games []Game
	}{Site: c, Path: "/games/", Style: template.CSS(styleText), Games: a.Games}); err != nil {
		return fmt.Errorf("write games: %w", err)
	}

	if err := writePage(tmpl, "about.tmpl", filepath.Join(c.OutDir, "about", "index.html"), struct {
		Site  *Config
		Path  string
		Style template.CSS
	}{Site: c, Path: "/about/", Style: template.CSS(styleText)}); err != nil {
		return fmt.Errorf("write about: %w", err)
	}

	return nil
}

// copyAssets mirrors the content directory (images, icons, logo) into outDir.
func copyAssets(inDir string, outDir string) error {
	if inDir == "" {
		return nil
	}
	if _, err := os.Stat(inDir); errors.Is(err, fs.ErrNotExist) {
		klog.Warningf("content directory %s does not exist, nothing to copy", inDir)
		return nil
	}
	klog.V(1).Infof("copying assets from %s to %s", inDir, outDir)
	return copy.Copy(inDir, outDir, copy.Options{
		PreserveTimes: true,
		Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
			return strings.HasPrefix(filepath.Base(src), "."), nil
		},
	})
}

func writeHome(c *Config, a *Assembly, tmpl *template.Template) error {
	var featured []layout.Placed
	if a.Featured != nil && len(a.Featured.Buckets) > 0 {
		featured = a.Featured.Buckets[0]
	}
	klog.V(1).Infof("writing home with %d featured illustrations ...", len(featured))

	data := struct {
		Site     *Config
		Path     string
		Style    template.CSS
		Featured []layout.Placed
	}{
		Site:     c,
		Path:     "/",
		Style:    template.CSS(styleText),
		Featured: featured,
	}
	return writePage(tmpl, "home.tmpl", filepath.Join(c.OutDir, "index.html"), data)
}

func writeIllustrations(c *Config, a *Assembly, tmpl *template.Template) error {
	plans := []columnPlan{}
	for n, p := range a.Columns {
		plans = append(plans, columnPlan{N: n, Plan: p})
	}
	slices.SortFunc(plans, func(x, y columnPlan) int { return x.N - y.N })
	klog.V(1).Infof("writing gallery with %d layouts ...", len(plans))

	data := struct {
		Site   *Config
		Path   string
		Style  template.CSS
		Plans  []columnPlan
		Faults []layout.Fault
	}{
		Site:   c,
		Path:   "/illustrations/",
		Style:  template.CSS(styleText),
		Plans:  plans,
		Faults: a.Faults,
	}
	return writePage(tmpl, "illustrations.tmpl", filepath.Join(c.OutDir, "illustrations", "index.html"), data)
}

// writeLightboxes writes one viewer page per illustration. Each page links to
// its wrapped neighbors, so the pages form the same cycle as the lightbox.
func writeLightboxes(c *Config, a *Assembly, tmpl *template.Template) error {
	n := len(a.Illustrations)
	klog.Infof("Writing out %d lightbox pages ...", n)
	for i, il := range a.Illustrations {
		prev, next := lightbox.Neighbors(n, i)
		data := struct {
			Site         *Config
			Path         string
			Style        template.CSS
			Illustration *Illustration
			Index        int
			Total        int
			Prev         int
			Next         int
		}{
			Site:         c,
			Path:         "/illustrations/",
			Style:        template.CSS(styleText),
			Illustration: il,
			Index:        i,
			Total:        n,
			Prev:         prev,
			Next:         next,
		}
		p := filepath.Join(c.OutDir, "illustrations", fmt.Sprint(i), "index.html")
		if err := writePage(tmpl, "lightbox.tmpl", p, data); err != nil {
			return fmt.Errorf("lightbox %d: %w", i, err)
		}
	}
	return nil
}

func writePage(tmpl *template.Template, name string, path string, data any) error {
	var tpl bytes.Buffer
	if err := tmpl.ExecuteTemplate(&tpl, name, data); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	klog.V(1).Infof("Writing %s to %s", name, path)
	return os.WriteFile(path, tpl.Bytes(), 0o644)
}

func parseTemplates(a *Assembly) (*template.Template, error) {
	return template.New("folio").Funcs(tmplFunctions(a)).ParseFS(templateFS, "assets/*.tmpl")
}

// tmplFunctions are functions available to our templates.
func tmplFunctions(a *Assembly) template.FuncMap {
	byID := map[string]*Illustration{}
	index := map[string]int{}
	for i, il := range a.Illustrations {
		byID[il.ID] = il
		index[il.ID] = i
	}

	return template.FuncMap{
		"Px": func(f float64) string {
			return fmt.Sprintf("%.0fpx", f)
		},
		"Thumb": func(id string, name string) string {
			if il, ok := byID[id]; ok {
				return il.ThumbURL(name)
			}
			return ""
		},
		"LightboxURL": func(i int) string {
			return fmt.Sprintf("/illustrations/%d/", i)
		},
		"IndexOf": func(id string) int {
			return index[id]
		},
		"Plus1": func(i int) int {
			return i + 1
		},
		"Active": func(current string, path string) bool {
			return current == path
		},
		"dict": func(kv ...any) (map[string]any, error) {
			if len(kv)%2 != 0 {
				return nil, fmt.Errorf("dict: odd number of arguments")
			}
			m := make(map[string]any, len(kv)/2)
			for i := 0; i < len(kv); i += 2 {
				k, ok := kv[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
				}
				m[k] = kv[i+1]
			}
			return m, nil
		},
	}
}
