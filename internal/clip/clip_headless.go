package clip

import "go.clipd.dev/clipd/internal/item"

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless servers, containers, CI). It never produces Watch
// events and silently discards writes.
type headlessBackend struct {
	watchCh chan struct{}
}

func (b *headlessBackend) Name() string              { return "headless (no-op)" }
func (b *headlessBackend) Read() (*item.Item, error) { return nil, nil }
func (b *headlessBackend) Write(_ item.Item) error   { return nil }
func (b *headlessBackend) Watch() <-chan struct{}    { return b.watchCh }
func (b *headlessBackend) Close()                    {}
