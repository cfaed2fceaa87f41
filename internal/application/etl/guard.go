package etl

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunGuard admits at most one sync run at a time. TryAcquire never blocks
// waiting for the holder; it reports false when the guard is taken.
type RunGuard interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// MemoryRunGuard is a process-local guard backed by compare-and-set
type MemoryRunGuard struct {
	held atomic.Bool
}

// NewMemoryRunGuard creates an unheld guard
func NewMemoryRunGuard() *MemoryRunGuard {
	return &MemoryRunGuard{}
}

// TryAcquire implements RunGuard. The returned release is idempotent.
func (g *MemoryRunGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.held.Store(false) })
	}, true, nil
}

// Held reports whether a run currently holds the guard
func (g *MemoryRunGuard) Held() bool {
	return g.held.Load()
}
