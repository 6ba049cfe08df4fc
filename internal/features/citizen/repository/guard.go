package repository

import "sync"

// Guard serializes subscription callback delivery against teardown. Stop
// blocks until any running callback returns, then marks the subscription
// dead, so no callback can fire after an Unsubscribe returns. In-flight
// deliveries to a torn-down listener are dropped, never buffered.
type Guard struct {
	mu      sync.Mutex
	stopped bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// Deliver invokes fn unless the guard has been stopped.
func (g *Guard) Deliver(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	fn()
}

// Stop prevents any further delivery.
func (g *Guard) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
}
