// Package layout packs measured images into balanced columns or rows.
//
// Images are measured concurrently but placed strictly in input order: each
// image goes to the bucket with the smallest running extent, ties going to the
// lowest bucket index. Every placement is published as an Update before the
// next image is considered, so a page can render progressively.
package layout

import (
	"errors"
	"fmt"
	"time"

	"github.com/tstromberg/folio/pkg/probe"
)

var (
	ErrInvalidBuckets = errors.New("bucket count must be positive")
	ErrInvalidTarget  = errors.New("target cross-axis size must be positive")
	ErrInvalidLimit   = errors.New("main-axis limit must not be negative")
	ErrDuplicateID    = errors.New("duplicate image id")
)

// Orientation selects which axis is fixed.
type Orientation int

const (
	// Columns fixes width to the target and stacks images vertically.
	Columns Orientation = iota
	// Rows fixes height to the target and lines images up horizontally.
	Rows
)

func (o Orientation) String() string {
	switch o {
	case Columns:
		return "columns"
	case Rows:
		return "rows"
	}
	return fmt.Sprintf("Orientation(%d)", int(o))
}

// MarshalText encodes o as "columns" or "rows".
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (o *Orientation) UnmarshalText(b []byte) error {
	v, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOrientation parses "columns" or "rows".
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "columns", "column", "":
		return Columns, nil
	case "rows", "row":
		return Rows, nil
	}
	return Columns, fmt.Errorf("unknown orientation %q", s)
}

// FaultPolicy controls what happens to an image whose probe failed.
type FaultPolicy int

const (
	// SkipFaults leaves the image out of the plan and records a Fault.
	SkipFaults FaultPolicy = iota
	// PlaceholderFaults places the image at the placeholder aspect, marked Broken.
	PlaceholderFaults
)

const defaultConcurrency = 8

// Options configure a layout run.
type Options struct {
	Buckets     int
	Orientation Orientation
	// Target is the fixed cross-axis size: column width or row height.
	Target float64
	// Limit caps the main-axis extent of every bucket. Zero means unlimited.
	Limit  float64
	Faults FaultPolicy
	// Placeholder is the aspect used for broken and pending images. Defaults to square.
	Placeholder probe.Size
	// Concurrency bounds in-flight probes.
	Concurrency int
	// Provisional is how long placement waits on a pending probe before
	// emitting a Hold at the placeholder size. Zero disables holds.
	Provisional time.Duration
}

func (o Options) validate() error {
	if o.Buckets <= 0 {
		return fmt.Errorf("%d: %w", o.Buckets, ErrInvalidBuckets)
	}
	if o.Target <= 0 {
		return fmt.Errorf("%v: %w", o.Target, ErrInvalidTarget)
	}
	if o.Limit < 0 {
		return fmt.Errorf("%v: %w", o.Limit, ErrInvalidLimit)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Placeholder.Width <= 0 || o.Placeholder.Height <= 0 {
		o.Placeholder = probe.Size{Width: 1, Height: 1}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	return o
}

// Descriptor identifies an image to lay out.
type Descriptor struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Measured is a descriptor with its intrinsic size.
type Measured struct {
	Descriptor
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Placed is a measured image assigned to a bucket.
type Placed struct {
	Measured
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
	Bucket        int     `json:"bucket"`
	// Broken marks a placeholder substituted for an image that failed to load.
	Broken bool `json:"broken,omitempty"`
}

// Fault records an image that could not be measured.
type Fault struct {
	Descriptor
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func newFault(d Descriptor, err error) *Fault {
	return &Fault{Descriptor: d, Reason: err.Error(), Err: err}
}

func (f Fault) Error() string {
	return fmt.Sprintf("%s (%s): %v", f.ID, f.URL, f.Err)
}

func (f Fault) Unwrap() error {
	return f.Err
}

// display returns the display size and main-axis extent for an image.
func display(o Orientation, target float64, s probe.Size) (w, h, extent float64) {
	if o == Rows {
		w = float64(s.Width) / float64(s.Height) * target
		return w, target, w
	}
	h = float64(s.Height) / float64(s.Width) * target
	return target, h, h
}

func checkIDs(images []Descriptor) error {
	seen := make(map[string]bool, len(images))
	for _, d := range images {
		if seen[d.ID] {
			return fmt.Errorf("%q: %w", d.ID, ErrDuplicateID)
		}
		seen[d.ID] = true
	}
	return nil
}
