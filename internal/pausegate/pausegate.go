// Package pausegate implements the shared pause signal asserted by the asset
// manager during a coherent registry swap (spec.md §4.3, §5). It has no
// other state and no cyclic relationships to any other package, per spec.md
// §9's note that all pipeline state is DAG-shaped.
package pausegate

import "sync"

// Gate is a single shared boolean, read by the source/enrich stage and
// written by the asset manager. Readers that observe Assert() must block
// until the matching Release() before pulling further records.
type Gate struct {
	mu      sync.Mutex
	paused  bool
	waiters []chan struct{}
}

// New returns an unpaused Gate.
func New() *Gate {
	return &Gate{}
}

// Assert marks the gate paused. Safe to call repeatedly.
func (g *Gate) Assert() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = true
}

// Release marks the gate unpaused and wakes every waiter blocked in Wait.
func (g *Gate) Release() {
	g.mu.Lock()
	g.paused = false
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Paused reports the current state without blocking.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks until the gate is unpaused, or ctx is done. It is a no-op when
// the gate is already unpaused.
func (g *Gate) Wait(done <-chan struct{}) {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return
	}
	w := make(chan struct{})
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case <-w:
	case <-done:
	}
}
