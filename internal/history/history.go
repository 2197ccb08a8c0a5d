// Package history is the durable, append-only clipboard log per user.
//
// The relay depends only on the Store contract; the Postgres implementation
// is the production backing and Memory serves tests and --dev runs.
package history

import (
	"context"
	"sync"

	"go.clipd.dev/clipd/internal/item"
)

// Store is the append/query contract for the per-user clipboard log.
type Store interface {
	// Append records it. The item's StampedAt must already be assigned.
	Append(ctx context.Context, it *item.Item) error

	// LastN returns up to n items for userID, most recent first.
	// n <= 0 and unknown users both yield an empty slice, not an error.
	LastN(ctx context.Context, userID string, n int) ([]item.Item, error)
}

// Memory is an in-memory Store.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string][]item.Item // userID → append order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]item.Item)}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, it *item.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it.ID = m.nextID
	m.items[it.UserID] = append(m.items[it.UserID], *it)
	return nil
}

// LastN implements Store.
func (m *Memory) LastN(_ context.Context, userID string, n int) ([]item.Item, error) {
	if n <= 0 {
		return []item.Item{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.items[userID]
	if len(all) < n {
		n = len(all)
	}
	out := make([]item.Item, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
