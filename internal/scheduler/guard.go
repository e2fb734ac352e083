package scheduler

import "sync/atomic"

// Guard admits one active cycle at a time. The zero value is ready to use.
// Share one Guard between everything that can start a cycle against the same
// store.
type Guard struct {
	active atomic.Bool
}

// TryAcquire claims the guard. On success the returned release must be called
// exactly once when the cycle ends.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.active.CompareAndSwap(false, true) {
		return nil, false
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.active.Store(false)
		}
	}, true
}

// Active reports whether a cycle holds the guard.
func (g *Guard) Active() bool {
	return g.active.Load()
}
