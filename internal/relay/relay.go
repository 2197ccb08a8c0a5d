// Package relay routes clipboard changes between the live device sessions of
// a user.
//
// Sessions are grouped into per-user rooms, created lazily on first join and
// garbage-collected when the last session leaves. Ingesting a change stamps
// it with a per-user monotonic timestamp, persists it to the history store,
// and fans it out to every other session in the room, never back to its
// origin. Persistence and the live broadcast are deliberately decoupled: a
// failed append fails the acknowledgment, not the fan-out.
//
// Rooms are independent units of concurrency. Broadcast enumeration and
// membership mutation exclude each other per room, so a session that joins
// mid-broadcast either fully misses or fully receives a given change.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.clipd.dev/clipd/internal/history"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/presence"
)

// Session is one live device connection enrolled in a room.
type Session interface {
	// ID is the session id, unique per connection.
	ID() string
	// UserID is the room the session belongs to.
	UserID() string
	// Device identifies the device behind the session; used for echo
	// suppression when the same device also pushes over REST.
	Device() string
	// Send delivers a remote change to the session. Must not block.
	Send(it item.Item)
}

type room struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// Relay is the fan-out service shared by all transports (wire and REST).
type Relay struct {
	store   history.Store
	tracker presence.Tracker

	mu     sync.Mutex
	rooms  map[string]*room
	stamps map[string]time.Time // userID → last assigned stamp

	now func() time.Time
}

// New builds a Relay over store. tracker may be presence.Noop{}.
func New(store history.Store, tracker presence.Tracker) *Relay {
	return &Relay{
		store:   store,
		tracker: tracker,
		rooms:   make(map[string]*room),
		stamps:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Join enrolls s in its user's room, creating the room if needed.
func (r *Relay) Join(ctx context.Context, s Session) {
	r.mu.Lock()
	rm, ok := r.rooms[s.UserID()]
	if !ok {
		rm = &room{sessions: make(map[string]Session)}
		r.rooms[s.UserID()] = rm
	}
	rm.mu.Lock()
	rm.sessions[s.ID()] = s
	total := len(rm.sessions)
	rm.mu.Unlock()
	r.mu.Unlock()

	slog.Info("session joined",
		"session", s.ID(),
		"user", s.UserID(),
		"device", s.Device(),
		"room_size", total,
	)
	r.touchPresence(ctx, s)
}

// Leave removes s from its room and garbage-collects the room when it was
// the last session. Leaving twice, or without joining, is a no-op.
func (r *Relay) Leave(ctx context.Context, s Session) {
	r.mu.Lock()
	rm, ok := r.rooms[s.UserID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	rm.mu.Lock()
	delete(rm.sessions, s.ID())
	empty := len(rm.sessions) == 0
	total := len(rm.sessions)
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, s.UserID())
	}
	r.mu.Unlock()

	slog.Info("session left",
		"session", s.ID(),
		"user", s.UserID(),
		"room_size", total,
	)
	if err := r.tracker.Drop(ctx, s.UserID(), s.Device()); err != nil {
		slog.Warn("presence drop failed", "err", err)
	}
}

// SessionCount returns the number of live sessions in userID's room.
func (r *Relay) SessionCount(userID string) int {
	r.mu.Lock()
	rm, ok := r.rooms[userID]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.sessions)
}

// Ingest accepts a change from one session (originSession may be empty for
// REST pushes), stamps it, persists it, and broadcasts it to every other
// session in the user's room.
//
// The returned item carries the assigned stamp and store id. A non-nil error
// means the history append failed; the broadcast has still happened.
func (r *Relay) Ingest(ctx context.Context, originSession string, it item.Item) (item.Item, error) {
	if err := it.Validate(); err != nil {
		return it, fmt.Errorf("reject ingest: %w", err)
	}
	it.StampedAt = r.stamp(it.UserID)

	persistErr := r.store.Append(ctx, &it)
	if persistErr != nil {
		slog.Error("history append failed", "user", it.UserID, "err", persistErr)
		persistErr = fmt.Errorf("persist clip: %w", persistErr)
	}

	r.broadcast(originSession, it)
	return it, persistErr
}

// stamp assigns the next timestamp for userID. Stamps never move backwards
// and never collide for the same user, so history ordering is total.
func (r *Relay) stamp(userID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now()
	if last, ok := r.stamps[userID]; ok && !ts.After(last) {
		ts = last.Add(time.Nanosecond)
	}
	r.stamps[userID] = ts
	return ts
}

// broadcast fans it out to the user's room, excluding the origin session and
// any session owned by the origin device. A missing room is a no-op.
func (r *Relay) broadcast(originSession string, it item.Item) {
	r.mu.Lock()
	rm, ok := r.rooms[it.UserID]
	r.mu.Unlock()
	if !ok {
		slog.Debug("no room for broadcast", "user", it.UserID)
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	delivered := 0
	for id, s := range rm.sessions {
		if id == originSession {
			continue
		}
		if it.OriginDevice != "" && s.Device() == it.OriginDevice {
			continue
		}
		s.Send(it)
		delivered++
	}
	slog.Debug("change broadcast",
		"user", it.UserID,
		"origin_device", it.OriginDevice,
		"recipients", delivered,
	)
}

// touchPresence refreshes the presence record for a session. Called on join
// and on every liveness round; advisory only.
func (r *Relay) touchPresence(ctx context.Context, s Session) {
	if err := r.tracker.Touch(ctx, s.UserID(), s.Device()); err != nil {
		slog.Warn("presence touch failed", "err", err)
	}
}
