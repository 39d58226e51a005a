// lightbox browses a folio catalog in the terminal.
package main

import (
	"flag"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/folio"
	"github.com/tstromberg/folio/pkg/viewer"
)

var (
	configPath  = flag.String("config", "folio.toml", "Location of the site configuration")
	catalogPath = flag.String("catalog", "", "Location of the catalog (overrides config)")
	start       = flag.Int("start", -1, "open the lightbox at this index")
)

func main() {
	klog.InitFlags(nil)
	// The terminal belongs to the viewer.
	flag.Set("logtostderr", "false")
	flag.Set("log_file", filepath.Join(os.TempDir(), "folio-lightbox.log"))
	flag.Parse()

	c, err := folio.LoadConfig(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if *catalogPath != "" {
		c.Catalog = *catalogPath
	}

	cat, err := folio.LoadCatalog(c.Catalog)
	if err != nil {
		klog.Exitf("catalog: %v", err)
	}
	if err := cat.Validate(); err != nil {
		klog.Exitf("%v", err)
	}

	m := viewer.New(c.Title, cat.Illustrations)
	if *start >= 0 {
		if err := m.Lightbox().Open(*start); err != nil {
			klog.Exitf("start: %v", err)
		}
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		klog.Exitf("viewer: %v", err)
	}
	klog.Flush()
}
