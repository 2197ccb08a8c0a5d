// Package notify is the in-process change notifier: one "clipboard changed
// locally" event source fanning out to any number of independent sinks.
package notify

import (
	"log/slog"
	"slices"
	"sync"

	"go.clipd.dev/clipd/internal/item"
)

// Observer receives local clipboard changes. Implementations are selected at
// composition time; the sync transport is the usual one.
type Observer interface {
	Update(userID string, it item.Item)
}

// Subject fans local changes out to attached observers.
//
// Delivery is synchronous and in attachment order. A panicking observer does
// not stop delivery to the rest.
type Subject struct {
	mu        sync.Mutex
	observers []Observer
}

// NewSubject returns an empty Subject.
func NewSubject() *Subject {
	return &Subject{}
}

// Attach adds o. Attaching an observer that is already attached (by
// identity) is a no-op.
func (s *Subject) Attach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// Detach removes o. Detaching an observer that is not attached is a no-op.
func (s *Subject) Detach(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Notify delivers it to every attached observer, in attachment order.
func (s *Subject) Notify(userID string, it item.Item) {
	s.mu.Lock()
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		deliver(o, userID, it)
	}
}

func deliver(o Observer, userID string, it item.Item) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("observer panicked during notify", "panic", r)
		}
	}()
	o.Update(userID, it)
}
