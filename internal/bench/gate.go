// Package bench orchestrates the benchmark: sequential setup phases gated on
// queue drain, then a steady-state transfer loop under an in-flight cap.
package bench

import (
	"context"
	"sync"
)

// Gate pauses and resumes the steady-state loop. A new Gate is open.
type Gate struct {
	mu     sync.Mutex
	resume chan struct{} // closed while the gate is open
	paused bool
}

// NewGate creates an open gate.
func NewGate() *Gate {
	resume := make(chan struct{})
	close(resume)
	return &Gate{resume: resume}
}

// Pause closes the gate. Callers already past Wait are unaffected.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

// Resume opens the gate, releasing every waiting caller.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

// Paused reports whether the gate is closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused, until the gate opens or ctx ends.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
