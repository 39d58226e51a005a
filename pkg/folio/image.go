package folio

import (
	"github.com/tstromberg/folio/pkg/layout"
	"github.com/tstromberg/folio/pkg/probe"
)

// ThumbMeta describes a thumbnail.
type ThumbMeta struct {
	X       int
	Y       int
	RelPath string
	Path    string
}

// Illustration is a single piece of artwork.
type Illustration struct {
	ID          string   `yaml:"id"`
	ImageURL    string   `yaml:"url"`
	Title       string   `yaml:"title,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"`

	// InPath is the local source file, empty for remote images.
	InPath string               `yaml:"-"`
	Resize map[string]ThumbMeta `yaml:"-"`
}

// Descriptor returns the layout descriptor for an illustration.
func (il *Illustration) Descriptor() layout.Descriptor {
	return layout.Descriptor{ID: il.ID, URL: il.ImageURL, Title: il.Title, Description: il.Description}
}

// Remote reports whether the image is hosted elsewhere.
func (il *Illustration) Remote() bool {
	return probe.IsRemote(il.ImageURL)
}

// ThumbURL returns the URL of a named rendition, falling back to the original.
func (il *Illustration) ThumbURL(name string) string {
	if t, ok := il.Resize[name]; ok && t.RelPath != "" {
		return "/" + t.RelPath
	}
	return il.ImageURL
}

// Platform is a platform a game runs on.
type Platform string

const (
	Browser Platform = "Browser"
	Windows Platform = "Windows"
	Linux   Platform = "Linux"
	MacOS   Platform = "MacOS"
	Android Platform = "Android"
	IOS     Platform = "iOS"
)

var platformIcons = map[Platform]string{
	Browser: "/icons/icons8-html-5-48.png",
	Windows: "/icons/icons8-windows8-48.png",
	Linux:   "/icons/icons8-linux-52.png",
	MacOS:   "/icons/icons8-mac-logo-50.png",
	Android: "/icons/icons8-android-os-48.png",
	IOS:     "/icons/icons8-ios-50.png",
}

// Known reports whether p is a supported platform.
func (p Platform) Known() bool {
	_, ok := platformIcons[p]
	return ok
}

// Icon returns the icon path for p, or "" if unknown.
func (p Platform) Icon() string {
	return platformIcons[p]
}

// Game is a released or upcoming game.
type Game struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	ImageURL    string     `yaml:"image"`
	Link        string     `yaml:"link,omitempty"`
	Genre       string     `yaml:"genre"`
	Platforms   []Platform `yaml:"platforms"`
}

// Locked reports whether the game has no public link yet.
func (g Game) Locked() bool {
	return g.Link == ""
}

// Contact is a way to reach the artist.
type Contact struct {
	Kind string `toml:"kind"`
	Href string `toml:"href"`
	Text string `toml:"text"`
}
