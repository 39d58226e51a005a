package lightbox

import (
	"maps"
	"slices"
	"sync"
)

// Key is a navigation key.
type Key int

const (
	NoKey Key = iota
	Left
	Right
	Escape
)

func (k Key) String() string {
	switch k {
	case Left:
		return "left"
	case Right:
		return "right"
	case Escape:
		return "escape"
	}
	return "none"
}

// ParseKey maps browser (KeyboardEvent.key) and terminal key names to a Key.
func ParseKey(s string) Key {
	switch s {
	case "ArrowLeft", "left", "h":
		return Left
	case "ArrowRight", "right", "l":
		return Right
	case "Escape", "esc":
		return Escape
	}
	return NoKey
}

// Binder attaches a key handler. The returned release func detaches it.
type Binder interface {
	Bind(fn func(Key) bool) (release func())
}

// Keys is a Binder that fans key presses out to the handlers bound to it.
type Keys struct {
	mu     sync.Mutex
	next   int
	listen map[int]func(Key) bool
}

// NewKeys returns an empty dispatcher.
func NewKeys() *Keys {
	return &Keys{listen: map[int]func(Key) bool{}}
}

// Bind registers fn until release is called. release is idempotent.
func (k *Keys) Bind(fn func(Key) bool) func() {
	k.mu.Lock()
	id := k.next
	k.next++
	k.listen[id] = fn
	k.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.listen, id)
			k.mu.Unlock()
		})
	}
}

// Dispatch delivers key to every bound handler, oldest binding first, and
// reports whether any consumed it.
func (k *Keys) Dispatch(key Key) bool {
	k.mu.Lock()
	fns := make([]func(Key) bool, 0, len(k.listen))
	for _, id := range slices.Sorted(maps.Keys(k.listen)) {
		fns = append(fns, k.listen[id])
	}
	k.mu.Unlock()

	handled := false
	for _, fn := range fns {
		if fn(key) {
			handled = true
		}
	}
	return handled
}

// Listeners returns the number of bound handlers.
func (k *Keys) Listeners() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.listen)
}
