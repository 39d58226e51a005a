// Package folio builds a portfolio website of illustrations and games.
package folio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/layout"
)

// Config holds configuration for folio.
type Config struct {
	Title        string       `toml:"title"`
	Tagline      string       `toml:"tagline"`
	Description  string       `toml:"description"`
	Intro        string       `toml:"intro"`
	Banner       string       `toml:"banner"`
	Logo         string       `toml:"logo"`
	Announcement Announcement `toml:"announcement"`
	Contacts     []Contact    `toml:"contacts"`
	Layout       LayoutConfig `toml:"layout"`

	Thumbnails map[string]ThumbOpts `toml:"thumbnails"`

	// Catalog is the YAML file listing illustrations and games.
	Catalog string `toml:"catalog"`
	// ContentDir holds the static files that image URLs resolve against.
	ContentDir string `toml:"content"`
	// Discover lists directories under ContentDir whose images are added
	// to the gallery even if the catalog does not mention them.
	Discover []string `toml:"discover"`
	// Exif reads titles and descriptions of discovered images with exiftool.
	Exif   bool   `toml:"exif"`
	OutDir string `toml:"out"`
}

// Announcement is the "latest updates" box on the home page.
type Announcement struct {
	Title string `toml:"title"`
	Body  string `toml:"body"`
}

// LayoutConfig controls gallery packing.
type LayoutConfig struct {
	ColumnWidth float64 `toml:"column_width"`
	MaxColumns  int     `toml:"max_columns"`
	RowHeight   float64 `toml:"row_height"`
	RowWidth    float64 `toml:"row_width"`
	// Placeholders shows broken images as placeholders instead of leaving them out.
	Placeholders bool    `toml:"placeholders"`
	Concurrency  int     `toml:"concurrency"`
	RemoteRPS    float64 `toml:"remote_rps"`
	// ProvisionalMS holds a slot for a slow image after this many
	// milliseconds of live layout. Zero waits without holding.
	ProvisionalMS int `toml:"provisional_ms"`
}

// ColumnOptions returns layout options for a gallery of n columns.
func (lc LayoutConfig) ColumnOptions(n int) layout.Options {
	return layout.Options{
		Buckets:     n,
		Orientation: layout.Columns,
		Target:      lc.ColumnWidth,
		Faults:      lc.faults(),
		Concurrency: lc.Concurrency,
		Provisional: lc.provisional(),
	}
}

// RowOptions returns layout options for the home page featured strip.
func (lc LayoutConfig) RowOptions() layout.Options {
	return layout.Options{
		Buckets:     1,
		Orientation: layout.Rows,
		Target:      lc.RowHeight,
		Limit:       lc.RowWidth,
		Faults:      lc.faults(),
		Concurrency: lc.Concurrency,
		Provisional: lc.provisional(),
	}
}

func (lc LayoutConfig) faults() layout.FaultPolicy {
	if lc.Placeholders {
		return layout.PlaceholderFaults
	}
	return layout.SkipFaults
}

func (lc LayoutConfig) provisional() time.Duration {
	return time.Duration(lc.ProvisionalMS) * time.Millisecond
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Title:   "folio",
		Tagline: "Illustrator & Game Designer",
		Catalog: "catalog.yaml",
		Layout: LayoutConfig{
			ColumnWidth: 200,
			MaxColumns:  3,
			RowHeight:   200,
			RowWidth:    960,
			Concurrency: 8,
			RemoteRPS:   4,
		},
		Thumbnails: defaultThumbOpts(),
	}
}

// LoadConfig reads a TOML config file on top of the defaults. A missing file
// is not an error.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		klog.Infof("%s not found, using defaults", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	def := DefaultConfig()
	if c.Layout.ColumnWidth <= 0 {
		c.Layout.ColumnWidth = def.Layout.ColumnWidth
	}
	if c.Layout.MaxColumns <= 0 {
		c.Layout.MaxColumns = def.Layout.MaxColumns
	}
	if c.Layout.RowHeight <= 0 {
		c.Layout.RowHeight = def.Layout.RowHeight
	}
	if c.Layout.RowWidth < 0 {
		c.Layout.RowWidth = def.Layout.RowWidth
	}
	if c.Layout.RemoteRPS <= 0 {
		c.Layout.RemoteRPS = def.Layout.RemoteRPS
	}
	if len(c.Thumbnails) == 0 {
		c.Thumbnails = def.Thumbnails
	}
	return c, nil
}
