// Package lightbox implements navigation for a modal image viewer.
//
// A Lightbox is either closed or open at a cursor into an ordered collection.
// Next and Previous wrap around, and record the direction of travel so the
// presentation layer can animate the transition. While open, the lightbox
// holds a key binding that is released on Close.
//
// A Lightbox has a single owner and is not safe for concurrent use.
package lightbox

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

var (
	// ErrOutOfRange is returned when opening at an index outside the collection.
	ErrOutOfRange = errors.New("index out of range")
	// ErrClosed is returned when navigating a closed lightbox.
	ErrClosed = errors.New("lightbox is closed")
)

// Direction is the direction of the most recent navigation.
type Direction int

const (
	Backward Direction = -1
	None     Direction = 0
	Forward  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	}
	return "none"
}

// Lightbox navigates a collection of T.
type Lightbox[T any] struct {
	items   []T
	cursor  int
	open    bool
	dir     Direction
	binder  Binder
	release func()
}

// New returns a closed lightbox over items. binder may be nil when no keyboard
// is attached.
func New[T any](items []T, binder Binder) *Lightbox[T] {
	return &Lightbox[T]{items: items, binder: binder}
}

// Open shows the item at index i.
func (l *Lightbox[T]) Open(i int) error {
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("open %d of %d: %w", i, len(l.items), ErrOutOfRange)
	}

	l.cursor = i
	l.dir = None
	if !l.open {
		l.open = true
		if l.binder != nil {
			l.release = l.binder.Bind(l.HandleKey)
		}
	}
	klog.V(1).Infof("lightbox: open at %d/%d", i, len(l.items))
	return nil
}

// Resume reopens the lightbox at the cursor it had when it was last closed.
func (l *Lightbox[T]) Resume() error {
	return l.Open(l.cursor)
}

// Next advances to the following item, wrapping to the first.
func (l *Lightbox[T]) Next() error {
	if !l.open {
		return ErrClosed
	}
	l.cursor = (l.cursor + 1) % len(l.items)
	l.dir = Forward
	return nil
}

// Previous moves to the preceding item, wrapping to the last.
func (l *Lightbox[T]) Previous() error {
	if !l.open {
		return ErrClosed
	}
	l.cursor = (l.cursor - 1 + len(l.items)) % len(l.items)
	l.dir = Backward
	return nil
}

// Close hides the lightbox and releases its key binding. Closing a closed
// lightbox does nothing.
func (l *Lightbox[T]) Close() {
	if !l.open {
		return
	}
	l.open = false
	l.dir = None
	if l.release != nil {
		l.release()
		l.release = nil
	}
	klog.V(1).Infof("lightbox: closed at %d", l.cursor)
}

// HandleKey applies a key press. It reports whether the key was consumed.
func (l *Lightbox[T]) HandleKey(k Key) bool {
	if !l.open {
		return false
	}
	switch k {
	case Left:
		_ = l.Previous()
	case Right:
		_ = l.Next()
	case Escape:
		l.Close()
	default:
		return false
	}
	return true
}

// IsOpen reports whether the lightbox is showing an item.
func (l *Lightbox[T]) IsOpen() bool { return l.open }

// Cursor returns the index of the current item. It is kept across Close.
func (l *Lightbox[T]) Cursor() int { return l.cursor }

// Direction returns the direction of the last Next or Previous since Open.
func (l *Lightbox[T]) Direction() Direction { return l.dir }

// Len returns the size of the collection.
func (l *Lightbox[T]) Len() int { return len(l.items) }

// Current returns the item under the cursor, if open.
func (l *Lightbox[T]) Current() (T, bool) {
	var zero T
	if !l.open {
		return zero, false
	}
	return l.items[l.cursor], true
}

// Neighbors returns the indexes before and after i in a wrapping collection of n.
func Neighbors(n, i int) (prev, next int) {
	if n <= 0 {
		return 0, 0
	}
	return (i - 1 + n) % n, (i + 1) % n
}
