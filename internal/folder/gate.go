package folder

import (
	"context"
	"sync"
)

// gate mirrors segment's pause/resume primitive (a closed channel means
// runnable; Pause swaps in a fresh, open one). Duplicated rather than
// exported from segment because FolderAggregator's own pause semantics are
// "stop admitting new sub-task runs", not "block mid-chunk like a worker".
type gate struct {
	mu     sync.Mutex
	ch     chan struct{}
	paused bool
}

func newGate() *gate {
	g := &gate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

func (g *gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.ch = make(chan struct{})
	}
}

func (g *gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.ch)
	}
}

func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
