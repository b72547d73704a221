package flags

import (
	"context"
	"sync"
)

// MemoryGate is an in-process gate for tests and dry runs.
type MemoryGate struct {
	mu       sync.Mutex
	enabled  map[string]bool
	legacy   bool
	failWith error
}

// NewMemoryGate returns a gate with every worker disabled.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{enabled: make(map[string]bool, len(KnownWorkers))}
}

// FailWith makes every subsequent call return err. Clears with nil.
func (g *MemoryGate) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *MemoryGate) IsEnabled(_ context.Context, worker string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return false, g.failWith
	}
	if !IsKnownWorker(worker) {
		return false, &ErrUnknownWorker{Name: worker, Available: KnownWorkers}
	}
	return g.enabled[worker], nil
}

func (g *MemoryGate) SetEnabled(_ context.Context, worker string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	if !IsKnownWorker(worker) {
		return &ErrUnknownWorker{Name: worker, Available: KnownWorkers}
	}
	g.enabled[worker] = enabled
	return nil
}

func (g *MemoryGate) SetAllEnabled(_ context.Context, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return g.failWith
	}
	for _, worker := range KnownWorkers {
		g.enabled[worker] = enabled
	}
	g.legacy = enabled
	return nil
}

func (g *MemoryGate) Flags(_ context.Context) (map[string]bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	result := make(map[string]bool, len(KnownWorkers))
	for _, worker := range KnownWorkers {
		result[worker] = g.enabled[worker]
	}
	return result, nil
}

func (g *MemoryGate) LegacyDisabled(_ context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return false, g.failWith
	}
	return g.legacy, nil
}
