package layout

import (
	"context"
	"errors"
	"sync"

	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/probe"
)

// ErrGalleryClosed is returned by Relayout after Close.
var ErrGalleryClosed = errors.New("gallery closed")

// Snapshot is delivered to subscribers after every applied update.
type Snapshot struct {
	Generation uint64 `json:"generation"`
	Update     Update `json:"update"`
	Plan       *Plan  `json:"plan"`
}

// Gallery owns the layout state for one page: the images, the prober, and the
// plan currently being built. Each Relayout starts a new generation; updates
// from an older generation, or arriving after Close, are discarded.
type Gallery struct {
	images []Descriptor
	prober probe.Prober
	notify func(Snapshot)

	mu     sync.Mutex
	gen    uint64
	plan   *Plan
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewGallery returns a gallery for images. notify, if non-nil, is called with
// the gallery lock held and must not call back into the gallery.
func NewGallery(images []Descriptor, p probe.Prober, notify func(Snapshot)) *Gallery {
	return &Gallery{images: images, prober: p, notify: notify}
}

// Relayout cancels any run in progress and starts a new one with o.
func (g *Gallery) Relayout(ctx context.Context, o Options) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrGalleryClosed
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch, err := Stream(runCtx, g.images, o, g.prober)
	if err != nil {
		cancel()
		return err
	}

	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	gen := g.gen
	g.cancel = cancel
	g.plan = NewPlan(o, len(g.images))
	done := make(chan struct{})
	g.done = done

	klog.V(1).Infof("gallery: generation %d: %d %s of %.0f", gen, o.Buckets, o.Orientation, o.Target)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(done)
		g.consume(gen, ch)
	}()
	return nil
}

func (g *Gallery) consume(gen uint64, ch <-chan Update) {
	for u := range ch {
		g.mu.Lock()
		if g.closed || gen != g.gen {
			g.mu.Unlock()
			klog.V(2).Infof("gallery: discarding stale update from generation %d", gen)
			continue
		}
		g.plan.Apply(u)
		if g.notify != nil {
			g.notify(Snapshot{Generation: gen, Update: u, Plan: g.plan.Clone()})
		}
		g.mu.Unlock()
	}
}

// Wait blocks until the current run has finished or was cancelled.
func (g *Gallery) Wait() {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Plan returns a copy of the current plan, or nil before the first Relayout.
func (g *Gallery) Plan() *Plan {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.plan == nil {
		return nil
	}
	return g.plan.Clone()
}

// Generation returns the number of layout runs started.
func (g *Gallery) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// Close cancels any run in progress and waits for it to wind down. It is safe
// to call more than once.
func (g *Gallery) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Unlock()
	g.wg.Wait()
}
