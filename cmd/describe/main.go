// describe fills in missing illustration titles and descriptions using Gemini.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	"google.golang.org/genai"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/folio"
	"github.com/tstromberg/folio/pkg/probe"
)

var (
	configPath = flag.String("config", "folio.toml", "Location of the site configuration")
	dryRun     = flag.Bool("n", false, "dry-run mode, don't update the catalog")
	overwrite  = flag.Bool("o", false, "overwrite existing titles and descriptions")
	outDir     = flag.String("out", "", "Location of output directory for thumbnails (overrides config)")
	modelName  = flag.String("model", "gemini-2.5-flash", "model to describe illustrations with")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := folio.LoadConfig(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if *outDir != "" {
		c.OutDir = *outDir
	}
	if c.OutDir == "" {
		klog.Exitf("please give me an out directory for thumbnails")
	}

	key := os.Getenv("GOOGLE_AI_API_KEY")
	if key == "" {
		klog.Exitf("GOOGLE_AI_API_KEY is not set")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		klog.Exitf("genai: %v", err)
	}

	klog.Infof("Collecting illustrations from %s ...", c.Catalog)
	if c.ContentDir == "" {
		c.ContentDir = filepath.Dir(c.Catalog)
	}
	a, err := folio.Collect(ctx, c, probe.New(c.ContentDir, c.Layout.RemoteRPS))
	if err != nil {
		klog.Exitf("unable to collect: %v", err)
	}

	cat, err := folio.LoadCatalog(c.Catalog)
	if err != nil {
		klog.Exitf("catalog: %v", err)
	}

	changed := 0
	for _, il := range a.Illustrations {
		if !*overwrite && il.Title != "" && il.Description != "" {
			klog.V(1).Infof("%s is already described", il.ImageURL)
			continue
		}
		if il.Remote() {
			klog.Infof("skipping remote image %s", il.ImageURL)
			continue
		}

		s, err := folio.Describe(ctx, client, *modelName, il)
		if err != nil {
			klog.Errorf("describe %s: %v", il.ImageURL, err)
			continue
		}
		klog.Infof("%s: %q - %s", il.ImageURL, s.Title, s.Description)

		i := cat.Index(il.ID)
		if i < 0 {
			// Discovered but not yet listed.
			cat.Illustrations = append(cat.Illustrations, il)
			i = len(cat.Illustrations) - 1
		}
		if s.Apply(cat.Illustrations[i], *overwrite) {
			changed++
		}
	}

	if *dryRun {
		klog.Infof("dry-run: %d illustrations would change", changed)
		return
	}
	if changed == 0 {
		klog.Infof("nothing to update")
		return
	}
	if err := folio.SaveCatalog(c.Catalog, cat); err != nil {
		klog.Exitf("save: %v", err)
	}
	klog.Infof("describe completed. Updated %d illustrations in %s", changed, c.Catalog)
}
