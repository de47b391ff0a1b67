package lifecycle

import "sync"

// EditGuard marks that an order edit is in progress. The sweep does not run
// while the guard is held.
type EditGuard struct {
	mu      sync.Mutex
	orderID uint
	held    bool
}

// Begin takes the guard for orderID. It fails if another edit holds it.
func (g *EditGuard) Begin(orderID uint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held && g.orderID != orderID {
		return false
	}
	g.held = true
	g.orderID = orderID
	return true
}

// End releases the guard if orderID holds it
func (g *EditGuard) End(orderID uint) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.held && g.orderID == orderID {
		g.held = false
		g.orderID = 0
	}
}

// Active reports whether an edit is in progress, and for which order
func (g *EditGuard) Active() (uint, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orderID, g.held
}
