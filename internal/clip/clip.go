// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    Linux via golang.design/x/clipboard, polling only
//	clip_other.go    headless / container stub
//
// The backend is resolved once per process by New. When the display
// environment is unavailable the headless backend is returned and clipboard
// support (text and image alike) degrades to a no-op: reads yield nil,
// writes are discarded. Backend failures are never fatal to callers; the
// contract is "empty result and keep going".
package clip

import (
	"sync"

	"go.clipd.dev/clipd/internal/item"
)

// Backend is the platform clipboard adapter.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard content, preferring the image
	// representation when the system clipboard exposes both. Returns
	// nil, nil on an empty or unreadable clipboard.
	Read() (*item.Item, error)

	// Write sets the clipboard from it, routing on the item kind. Image
	// payloads are written byte-for-byte in their declared encoding,
	// never transcoded.
	Write(it item.Item) error

	// Watch returns a channel that signals whenever the clipboard
	// changes. The channel is never closed; on platforms without native
	// change notification this is implemented by polling. Call Read when
	// the channel fires.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// Serialized wraps a Backend so Read and Write never run concurrently.
// OS clipboard backends are not safe to call from multiple goroutines, and
// key events and network delivery both want the adapter, so every caller in
// this process goes through one Serialized handle.
type Serialized struct {
	mu sync.Mutex
	b  Backend
}

// Serialize wraps b. Wrapping an already-wrapped backend returns it as is.
func Serialize(b Backend) *Serialized {
	if s, ok := b.(*Serialized); ok {
		return s
	}
	return &Serialized{b: b}
}

func (s *Serialized) Name() string { return s.b.Name() }

func (s *Serialized) Read() (*item.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Read()
}

func (s *Serialized) Write(it item.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(it)
}

func (s *Serialized) Watch() <-chan struct{} { return s.b.Watch() }

func (s *Serialized) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.b.Close()
}
