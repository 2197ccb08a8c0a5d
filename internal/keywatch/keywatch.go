// Package keywatch turns raw key press/release events into clipboard capture
// actions.
//
// The watcher is a small state machine over the copy/paste key combination:
// Idle until the modifier goes down, then a copy key reads the clipboard and
// publishes the result, a paste key writes the most recent known item back.
// Any release that is not part of the active combination drops the machine
// back to Idle; releasing the sentinel key ends the run.
//
// Key events arrive on a channel supplied by the embedder (the OS keyboard
// hook is glue outside this module) and are consumed by a single goroutine so
// press/release ordering is preserved. Clipboard I/O and notification never
// run on that goroutine; they are queued to one worker, which also keeps
// adapter calls serial.
package keywatch

import (
	"context"
	"log/slog"
	"sync"

	"go.clipd.dev/clipd/internal/clip"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/notify"
)

// Key classifies a keyboard key for the capture combination.
type Key int

const (
	// KeyOther is any key that takes no part in the combination.
	KeyOther Key = iota
	// KeyModifier is the combination modifier (ctrl/cmd).
	KeyModifier
	// KeyCopy triggers a clipboard read while the modifier is held.
	KeyCopy
	// KeyPaste triggers a clipboard write while the modifier is held.
	KeyPaste
	// KeySentinel ends the capture session when released (Esc).
	KeySentinel
)

// Event is one key press or release as reported by the OS hook.
type Event struct {
	Key     Key
	Release bool
}

type state int

const (
	stateIdle state = iota
	stateModifierHeld
)

// EchoGuard reports whether an item was recently applied from a remote
// change, so the capture path does not re-publish it. The sync transport
// implements this; a nil guard suppresses nothing.
type EchoGuard interface {
	SeenRecently(it item.Item) bool
}

const jobQueueSize = 16

// Watcher is the capture trigger.
type Watcher struct {
	backend  clip.Backend
	subject  *notify.Subject
	guard    EchoGuard
	userID   string
	deviceID string

	st   state
	jobs chan func()

	mu     sync.Mutex
	latest *item.Item // most recent locally-known item, used by paste
}

// New builds a Watcher. guard may be nil.
func New(backend clip.Backend, subject *notify.Subject, guard EchoGuard, userID, deviceID string) *Watcher {
	return &Watcher{
		backend:  backend,
		subject:  subject,
		guard:    guard,
		userID:   userID,
		deviceID: deviceID,
		jobs:     make(chan func(), jobQueueSize),
	}
}

// Remember records it as the most recent locally-known item. The embedder
// calls this when a remote change has been applied so paste tracks it.
func (w *Watcher) Remember(it item.Item) {
	w.mu.Lock()
	w.latest = &it
	w.mu.Unlock()
}

// Run consumes events until the sentinel key is released, events is closed,
// or ctx is cancelled. It spawns the single clipboard worker and tears it
// down before returning.
func (w *Watcher) Run(ctx context.Context, events <-chan Event) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for job := range w.jobs {
			job()
		}
	}()
	defer func() {
		close(w.jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if done := w.handle(ev); done {
				return
			}
		}
	}
}

// handle advances the state machine by one event. Returns true when the
// sentinel terminates the session.
func (w *Watcher) handle(ev Event) bool {
	if ev.Release {
		if ev.Key == KeySentinel {
			return true
		}
		// Releasing anything that is not part of the active combination
		// authoritatively clears it.
		if ev.Key != KeyCopy && ev.Key != KeyPaste {
			w.st = stateIdle
		}
		return false
	}

	switch w.st {
	case stateIdle:
		if ev.Key == KeyModifier {
			w.st = stateModifierHeld
		}
	case stateModifierHeld:
		switch ev.Key {
		case KeyCopy:
			w.enqueue(w.captureCopy)
		case KeyPaste:
			w.enqueue(w.capturePaste)
		}
	}
	return false
}

// enqueue hands a job to the clipboard worker without blocking the event
// delivery goroutine.
func (w *Watcher) enqueue(job func()) {
	select {
	case w.jobs <- job:
	default:
		slog.Warn("capture queue full, dropping gesture")
	}
}

func (w *Watcher) captureCopy() {
	it, err := w.backend.Read()
	if err != nil {
		slog.Error("clipboard read failed", "err", err)
		return
	}
	if it == nil {
		return
	}
	read := *it
	read.UserID = w.userID
	read.OriginDevice = w.deviceID

	if w.guard != nil && w.guard.SeenRecently(read) {
		slog.Debug("skipping echo of remotely-applied item")
		return
	}

	w.Remember(read)
	w.subject.Notify(w.userID, read)
}

func (w *Watcher) capturePaste() {
	w.mu.Lock()
	latest := w.latest
	w.mu.Unlock()

	var it item.Item
	if latest != nil {
		it = *latest
	} else {
		// No known item yet: write empty text, matching paste-before-copy
		// behaviour rather than erroring.
		it = item.NewText("")
	}
	if err := w.backend.Write(it); err != nil {
		slog.Error("clipboard write failed", "err", err)
	}
}
