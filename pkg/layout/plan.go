package layout

import "slices"

// Kind is the kind of an Update.
type Kind int

const (
	// Place puts an image into a bucket.
	Place Kind = iota + 1
	// Skip records an image that failed to load and was left out.
	Skip
	// Stop drops the remaining images because the limit was reached.
	Stop
	// Hold reserves the next slot at the placeholder size while its probe is
	// still pending. The following update for the same index replaces it.
	Hold
)

func (k Kind) String() string {
	switch k {
	case Place:
		return "place"
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	case Hold:
		return "hold"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Update is one incremental change to a Plan.
type Update struct {
	Kind  Kind `json:"kind"`
	Index int  `json:"index"`
	// Placed is set for Place and Hold.
	Placed *Placed `json:"placed,omitempty"`
	// Fault is set for Skip, and for Place or Stop when a placeholder was substituted.
	Fault *Fault `json:"fault,omitempty"`
	// Dropped is set for Stop.
	Dropped []Descriptor `json:"dropped,omitempty"`
}

// Plan is the result of a layout run.
type Plan struct {
	Orientation Orientation  `json:"orientation"`
	Buckets     [][]Placed   `json:"buckets"`
	Totals      []float64    `json:"totals"`
	Faults      []Fault      `json:"faults,omitempty"`
	Dropped     []Descriptor `json:"dropped,omitempty"`
	// Pending counts images whose placement has not been decided yet.
	Pending int `json:"pending"`
	// Held is the provisional slot of the next pending image, if any.
	Held *Placed `json:"held,omitempty"`
}

// NewPlan returns an empty plan awaiting total images.
func NewPlan(o Options, total int) *Plan {
	p := &Plan{
		Orientation: o.Orientation,
		Buckets:     make([][]Placed, o.Buckets),
		Totals:      make([]float64, o.Buckets),
		Pending:     total,
	}
	for i := range p.Buckets {
		p.Buckets[i] = []Placed{}
	}
	return p
}

// Apply folds u into the plan.
func (p *Plan) Apply(u Update) {
	if u.Kind == Hold {
		pl := *u.Placed
		p.Held = &pl
		return
	}
	p.Held = nil
	if u.Fault != nil {
		p.Faults = append(p.Faults, *u.Fault)
	}

	switch u.Kind {
	case Place:
		pl := *u.Placed
		p.Buckets[pl.Bucket] = append(p.Buckets[pl.Bucket], pl)
		p.Totals[pl.Bucket] += p.extent(pl)
		p.Pending--
	case Skip:
		p.Pending--
	case Stop:
		p.Dropped = append(p.Dropped, u.Dropped...)
		p.Pending -= len(u.Dropped)
	}
}

func (p *Plan) extent(pl Placed) float64 {
	if p.Orientation == Rows {
		return pl.DisplayWidth
	}
	return pl.DisplayHeight
}

// shortest returns the bucket with the smallest total, preferring lower indexes.
func (p *Plan) shortest() int {
	best := 0
	for i, t := range p.Totals {
		if t < p.Totals[best] {
			best = i
		}
	}
	return best
}

// Placed returns the number of placed images, placeholders included.
func (p *Plan) Placed() int {
	n := 0
	for _, b := range p.Buckets {
		n += len(b)
	}
	return n
}

// Skipped returns the number of images left out because their probe failed.
func (p *Plan) Skipped() int {
	n := 0
	for _, f := range p.Faults {
		if !p.contains(f.ID) {
			n++
		}
	}
	return n
}

func (p *Plan) contains(id string) bool {
	for _, b := range p.Buckets {
		for _, pl := range b {
			if pl.ID == id {
				return true
			}
		}
	}
	return false
}

// Spread returns the difference between the largest and smallest bucket totals.
func (p *Plan) Spread() float64 {
	if len(p.Totals) == 0 {
		return 0
	}
	return slices.Max(p.Totals) - slices.Min(p.Totals)
}

// Extent returns the largest bucket total.
func (p *Plan) Extent() float64 {
	if len(p.Totals) == 0 {
		return 0
	}
	return slices.Max(p.Totals)
}

// Clone returns a deep copy that shares no slices with p.
func (p *Plan) Clone() *Plan {
	c := &Plan{
		Orientation: p.Orientation,
		Buckets:     make([][]Placed, len(p.Buckets)),
		Totals:      slices.Clone(p.Totals),
		Faults:      slices.Clone(p.Faults),
		Dropped:     slices.Clone(p.Dropped),
		Pending:     p.Pending,
	}
	if p.Held != nil {
		h := *p.Held
		c.Held = &h
	}
	for i, b := range p.Buckets {
		c.Buckets[i] = slices.Clone(b)
	}
	return c
}
