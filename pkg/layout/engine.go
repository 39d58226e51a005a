package layout

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/probe"
)

type result struct {
	size probe.Size
	err  error
}

// Stream lays out images, emitting one Update per decision in input order.
//
// When o.Provisional is set and the next image's probe is slow, a Hold at the
// placeholder size is sent first so the page can reserve its slot.
//
// Probes run concurrently. The returned channel is closed once every image is
// decided, the limit is reached, or ctx is cancelled; in the last case no
// further updates are sent. All probe goroutines have returned by the time the
// channel is closed.
func Stream(ctx context.Context, images []Descriptor, o Options, p probe.Prober) (<-chan Update, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := checkIDs(images); err != nil {
		return nil, err
	}
	o = o.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	results := make([]chan result, len(images))
	for i := range results {
		results[i] = make(chan result, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i, d := range images {
			if err := gctx.Err(); err != nil {
				results[i] <- result{err: err}
				continue
			}
			g.Go(func() error {
				s, err := p.Probe(gctx, d.URL)
				results[i] <- result{size: s, err: err}
				return nil
			})
		}
	}()

	out := make(chan Update)
	go func() {
		defer close(out)
		defer func() {
			cancel()
			<-launched
			_ = g.Wait()
		}()

		plan := NewPlan(o, len(images))
		emit := func(u Update) bool {
			plan.Apply(u)
			select {
			case out <- u:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for i, d := range images {
			r, ok := await(ctx, results[i], o.Provisional, func() bool {
				return emit(hold(plan, o, i, d))
			})
			if !ok || ctx.Err() != nil {
				return
			}

			u := decide(plan, o, images, i, d, r)
			if !emit(u) {
				return
			}
			if u.Kind == Stop {
				klog.V(1).Infof("layout: limit %.0f reached, dropped %d images", o.Limit, len(u.Dropped))
				return
			}
		}
		klog.V(1).Infof("layout: placed %d of %d images into %d %s, skipped %d, spread %.0f", plan.Placed(), len(images), o.Buckets, o.Orientation, plan.Skipped(), plan.Spread())
	}()

	return out, nil
}

// await waits for a probe result. If grace is positive and the result is not in
// by then, onHold is called once; a false return abandons the wait.
func await(ctx context.Context, ch <-chan result, grace time.Duration, onHold func() bool) (result, bool) {
	select {
	case r := <-ch:
		return r, true
	default:
	}

	var timeout <-chan time.Time
	if grace > 0 {
		t := time.NewTimer(grace)
		defer t.Stop()
		timeout = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return result{}, false
		case r := <-ch:
			return r, true
		case <-timeout:
			timeout = nil
			if !onHold() {
				return result{}, false
			}
		}
	}
}

// hold reserves the slot image i would take at the placeholder size.
func hold(plan *Plan, o Options, i int, d Descriptor) Update {
	w, h, _ := display(o.Orientation, o.Target, o.Placeholder)
	return Update{Kind: Hold, Index: i, Placed: &Placed{
		Measured:      Measured{Descriptor: d},
		DisplayWidth:  w,
		DisplayHeight: h,
		Bucket:        plan.shortest(),
	}}
}

// decide places, skips, or stops at image i given the plan so far.
func decide(plan *Plan, o Options, images []Descriptor, i int, d Descriptor, r result) Update {
	size := r.size
	if r.err == nil && (size.Width <= 0 || size.Height <= 0) {
		r.err = probe.ErrEmpty
	}

	var fault *Fault
	if r.err != nil {
		klog.Warningf("layout: unable to measure %s: %v", d.URL, r.err)
		fault = newFault(d, r.err)
		if o.Faults == SkipFaults {
			return Update{Kind: Skip, Index: i, Fault: fault}
		}
		size = o.Placeholder
	}

	w, h, extent := display(o.Orientation, o.Target, size)
	b := plan.shortest()
	if o.Limit > 0 && plan.Totals[b]+extent > o.Limit {
		return Update{Kind: Stop, Index: i, Fault: fault, Dropped: slices.Clone(images[i:])}
	}

	pl := &Placed{
		Measured:      Measured{Descriptor: d},
		DisplayWidth:  w,
		DisplayHeight: h,
		Bucket:        b,
		Broken:        fault != nil,
	}
	if fault == nil {
		pl.Width = size.Width
		pl.Height = size.Height
	}
	return Update{Kind: Place, Index: i, Placed: pl, Fault: fault}
}

// Run lays out images and returns the finished plan.
func Run(ctx context.Context, images []Descriptor, o Options, p probe.Prober) (*Plan, error) {
	ch, err := Stream(ctx, images, o, p)
	if err != nil {
		return nil, err
	}

	plan := NewPlan(o, len(images))
	for u := range ch {
		plan.Apply(u)
	}
	if plan.Pending > 0 && ctx.Err() != nil {
		return plan, ctx.Err()
	}
	return plan, nil
}
