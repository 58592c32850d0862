package dedup

import (
	"context"
	"sync"
)

// MemoryGuard keeps attempt marks in process memory. It does not survive
// restarts and is not shared between worker instances; use PostgresGuard
// for anything beyond a single-node deployment or tests.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]struct{})}
}

func (g *MemoryGuard) TryMark(ctx context.Context, key Key) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := key.String()
	if _, ok := g.seen[k]; ok {
		return false, nil
	}
	g.seen[k] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Unmark(ctx context.Context, key Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key.String())
	return nil
}
