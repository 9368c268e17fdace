package segment

import (
	"context"
	"sync"
)

// gate is a pause/resume signal shared by every worker in a download,
// translating the original implementation's asyncio.Event used the same
// way (cleared on pause, set on resume, workers await it between chunks).
type gate struct {
	mu     sync.Mutex
	ch     chan struct{} // closed == runnable; replaced on each Pause
	paused bool
}

func newGate() *gate {
	g := &gate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

// Pause blocks future Wait calls until the next Resume.
func (g *gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.ch = make(chan struct{})
	}
}

// Resume unblocks any worker currently parked in Wait.
func (g *gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.ch)
	}
}

// Wait blocks until Resume is called, ctx is canceled, or the gate was
// never paused to begin with.
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
