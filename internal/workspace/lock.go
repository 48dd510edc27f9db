package workspace

import "sync/atomic"

// warmGate admits one Warm per workspace. A second Warm started while one
// runs fails fast with ErrWarmInProgress instead of queueing behind it, so
// an MCP client never waits on a full-project scan it did not start.
type warmGate struct {
	running atomic.Bool
}

// TryAcquire claims the gate; false means a warm-up is already running.
func (g *warmGate) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release reopens the gate. Only the caller whose TryAcquire succeeded may
// call it.
func (g *warmGate) Release() {
	g.running.Store(false)
}

// Held reports whether a warm-up is running.
func (g *warmGate) Held() bool {
	return g.running.Load()
}
