// folio builds (and optionally serves) a portfolio website.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/folio"
	"github.com/tstromberg/folio/pkg/probe"
	"github.com/tstromberg/folio/pkg/server"
)

var (
	configPath   = flag.String("config", "folio.toml", "Location of the site configuration")
	catalogPath  = flag.String("catalog", "", "Location of the illustration and game catalog (overrides config)")
	contentDir   = flag.String("content", "", "Location of the content directory (overrides config)")
	outDir       = flag.String("out", "", "Location of output directory (overrides config)")
	listen       = flag.Bool("listen", false, "serve content via HTTP")
	addr         = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag    = flag.Bool("watch", false, "watch for changes to the content directory and rebuild")
	exifFlag     = flag.Bool("exif", false, "read titles and descriptions of discovered images with exiftool")
	placeholders = flag.Bool("placeholders", false, "show broken images as placeholders instead of leaving them out")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := folio.LoadConfig(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	override(c)

	if c.OutDir == "" {
		klog.Exitf("--out is a required flag")
	}
	if c.ContentDir == "" {
		c.ContentDir = filepath.Dir(c.Catalog)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := probe.New(c.ContentDir, c.Layout.RemoteRPS)
	a, err := build(ctx, c, p)
	if err != nil {
		klog.Exitf("build failed: %v", err)
	}

	srv := server.New(c, a, p)
	g, ctx := errgroup.WithContext(ctx)

	if *watchFlag {
		g.Go(func() error {
			return watch(ctx, c, p, srv)
		})
	}

	if *listen {
		g.Go(func() error {
			return serve(ctx, srv, *addr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		klog.Exitf("%v", err)
	}
}

// override applies command-line flags on top of the configuration file.
func override(c *folio.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "catalog":
			c.Catalog = *catalogPath
		case "content":
			c.ContentDir = *contentDir
		case "out":
			c.OutDir = *outDir
		case "exif":
			c.Exif = *exifFlag
		case "placeholders":
			c.Layout.Placeholders = *placeholders
		}
	})
}

func build(ctx context.Context, c *folio.Config, p probe.Prober) (*folio.Assembly, error) {
	start := time.Now()
	a, err := folio.Collect(ctx, c, p)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	if err := folio.Render(c, a); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	klog.Infof("built %s in %s", c.OutDir, time.Since(start).Round(time.Millisecond))
	return a, nil
}

// serve serves the site and its layout API via HTTP until ctx is done.
func serve(ctx context.Context, srv *server.Server, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(sctx); err != nil {
			klog.Warningf("shutdown: %v", err)
		}
	}()

	klog.Infof("Listening on %s...", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen failed: %w", err)
	}
	return nil
}

// watchDirs returns the catalog directory plus every directory under the content root.
func watchDirs(c *folio.Config) ([]string, error) {
	dirs := []string{filepath.Dir(c.Catalog)}
	out, err := filepath.Abs(c.OutDir)
	if err != nil {
		return nil, err
	}

	err = godirwalk.Walk(c.ContentDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if abs, err := filepath.Abs(path); err == nil && abs == out {
				return godirwalk.SkipThis
			}
			if base := filepath.Base(path); path != c.ContentDir && (strings.HasPrefix(base, ".") || base == "_") {
				return godirwalk.SkipThis
			}
			dirs = append(dirs, path)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

// contentURL maps a file under root to the site URL it is served at.
func contentURL(root, name string) (string, bool) {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// forget drops the cached size of a changed file, if it is site content.
func forget(p *probe.Cache, root, name string) {
	if u, ok := contentURL(root, name); ok {
		p.Forget(u)
		klog.V(1).Infof("forgot size of %s, %d sizes cached", u, p.Len())
	}
}

// watch watches the catalog and content for changes and rebuilds.
func watch(ctx context.Context, c *folio.Config, p *probe.Cache, srv *server.Server) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	dirs, err := watchDirs(c)
	if err != nil {
		return err
	}
	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("event: %s", event)
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}

			forget(p, c.ContentDir, event.Name)
			a, err := build(ctx, c, p)
			if err != nil {
				klog.Errorf("rebuild failed: %v", err)
				continue
			}
			srv.SetAssembly(a)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Warningf("watch error: %v", err)
		}
	}
}
