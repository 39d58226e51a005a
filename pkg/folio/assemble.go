package folio

import (
	"context"
	"fmt"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/layout"
	"github.com/tstromberg/folio/pkg/probe"
)

// an Assembly is an assembled portfolio, ready to render.
type Assembly struct {
	Illustrations []*Illustration
	Games         []Game

	// Featured is the single row shown on the home page.
	Featured *layout.Plan
	// Columns holds a gallery plan for every supported column count.
	Columns map[int]*layout.Plan
	// Faults lists illustrations that could not be measured.
	Faults []layout.Fault
}

// Collect loads the catalog, discovers and thumbnails local images, and lays
// out the home page strip and the gallery.
func Collect(ctx context.Context, c *Config, p probe.Prober) (*Assembly, error) {
	klog.Infof("collect: %s + %s -> %s", c.Catalog, c.ContentDir, c.OutDir)

	cat, err := LoadCatalog(c.Catalog)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if len(c.Discover) > 0 {
		var et *exiftool.Exiftool
		if c.Exif {
			et, err = exiftool.NewExiftool()
			if err != nil {
				return nil, fmt.Errorf("exiftool: %w", err)
			}
			defer et.Close()
		}

		found, err := Find(c.ContentDir, c.Discover, et)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		klog.Infof("discovered %d images, %d new", len(found), cat.Merge(found))
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}

	if c.OutDir != "" {
		for _, il := range cat.Illustrations {
			if il.Remote() {
				continue
			}
			if il.InPath == "" {
				il.InPath = probe.File{Root: c.ContentDir}.Path(il.ImageURL)
			}
			il.Resize, err = thumbnails(il, c.OutDir, c.Thumbnails)
			if err != nil {
				// The layout records the same failure as a fault.
				klog.Warningf("thumbnails for %s: %v", il.ImageURL, err)
			}
		}
	}

	ds := cat.Descriptors()
	a := &Assembly{
		Illustrations: cat.Illustrations,
		Games:         cat.Games,
		Columns:       map[int]*layout.Plan{},
	}

	a.Featured, err = layout.Run(ctx, ds, c.Layout.RowOptions(), p)
	if err != nil {
		return nil, fmt.Errorf("featured layout: %w", err)
	}

	for n := 1; n <= c.Layout.MaxColumns; n++ {
		plan, err := layout.Run(ctx, ds, c.Layout.ColumnOptions(n), p)
		if err != nil {
			return nil, fmt.Errorf("%d column layout: %w", n, err)
		}
		a.Columns[n] = plan
	}
	if plan := a.Columns[c.Layout.MaxColumns]; plan != nil {
		a.Faults = plan.Faults
	}

	for _, f := range a.Faults {
		klog.Warningf("unable to measure %s", f.Error())
	}
	klog.Infof("collected %d illustrations (%d faults) and %d games", len(a.Illustrations), len(a.Faults), len(a.Games))
	return a, nil
}

// Illustration returns the illustration with id, or nil.
func (a *Assembly) Illustration(id string) *Illustration {
	for _, il := range a.Illustrations {
		if il.ID == id {
			return il
		}
	}
	return nil
}
