package folio

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/layout"
)

// ErrInvalidCatalog is wrapped by every validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the static content of the site.
type Catalog struct {
	Illustrations []*Illustration `yaml:"illustrations"`
	Games         []Game          `yaml:"games"`
}

// LoadCatalog reads a YAML catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	klog.V(1).Infof("loaded %d illustrations and %d games from %s", len(c.Illustrations), len(c.Games), path)
	return c, nil
}

// SaveCatalog writes c to path as YAML.
func SaveCatalog(path string, c *Catalog) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that illustration IDs are unique and every entry is usable.
func (c *Catalog) Validate() error {
	var errs []error
	seen := map[string]int{}
	for i, il := range c.Illustrations {
		if il == nil {
			errs = append(errs, fmt.Errorf("illustration %d: empty entry", i))
			continue
		}
		if il.ID == "" {
			errs = append(errs, fmt.Errorf("illustration %d: missing id", i))
		} else if prev, ok := seen[il.ID]; ok {
			errs = append(errs, fmt.Errorf("illustration %d: id %q already used by illustration %d", i, il.ID, prev))
		} else {
			seen[il.ID] = i
		}
		if il.ImageURL == "" {
			errs = append(errs, fmt.Errorf("illustration %q: missing url", il.ID))
		}
	}

	for _, g := range c.Games {
		if g.Title == "" {
			errs = append(errs, errors.New("game with no title"))
		}
		for _, p := range g.Platforms {
			if !p.Known() {
				errs = append(errs, fmt.Errorf("game %q: unknown platform %q", g.Title, p))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return nil
}

// Merge appends discovered illustrations whose URL is not already listed.
// It returns the number added.
func (c *Catalog) Merge(found []*Illustration) int {
	known := map[string]bool{}
	for _, il := range c.Illustrations {
		if il != nil {
			known[il.ImageURL] = true
		}
	}

	added := 0
	for _, il := range found {
		if known[il.ImageURL] {
			continue
		}
		klog.V(1).Infof("adding discovered illustration %s", il.ImageURL)
		c.Illustrations = append(c.Illustrations, il)
		known[il.ImageURL] = true
		added++
	}
	return added
}

// Descriptors returns layout descriptors in catalog order.
func (c *Catalog) Descriptors() []layout.Descriptor {
	ds := make([]layout.Descriptor, len(c.Illustrations))
	for i, il := range c.Illustrations {
		ds[i] = il.Descriptor()
	}
	return ds
}

// Index returns the position of the illustration with id, or -1.
func (c *Catalog) Index(id string) int {
	for i, il := range c.Illustrations {
		if il != nil && il.ID == id {
			return i
		}
	}
	return -1
}
