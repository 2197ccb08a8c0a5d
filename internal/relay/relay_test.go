package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.clipd.dev/clipd/internal/history"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/presence"
)

type fakeSession struct {
	id     string
	userID string
	device string

	mu  sync.Mutex
	got []item.Item
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.userID }
func (s *fakeSession) Device() string { return s.device }

func (s *fakeSession) Send(it item.Item) {
	s.mu.Lock()
	s.got = append(s.got, it)
	s.mu.Unlock()
}

func (s *fakeSession) received() []item.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]item.Item(nil), s.got...)
}

type failingStore struct{}

func (failingStore) Append(context.Context, *item.Item) error { return errors.New("disk on fire") }
func (failingStore) LastN(context.Context, string, int) ([]item.Item, error) {
	return nil, errors.New("disk on fire")
}

func textItem(userID, device, text string) item.Item {
	it := item.NewText(text)
	it.UserID = userID
	it.OriginDevice = device
	return it
}

func TestIngestBroadcastsToOthersOnly(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	origin := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	other1 := &fakeSession{id: "s2", userID: "alice", device: "desktop"}
	other2 := &fakeSession{id: "s3", userID: "alice", device: "phone"}
	for _, s := range []*fakeSession{origin, other1, other2} {
		r.Join(ctx, s)
	}

	_, err := r.Ingest(ctx, origin.id, textItem("alice", "laptop", "hello"))
	require.NoError(t, err)

	assert.Empty(t, origin.received(), "origin session must not receive its own change")
	require.Len(t, other1.received(), 1)
	require.Len(t, other2.received(), 1)
	assert.Equal(t, "hello", other1.received()[0].Text())
}

func TestIngestSkipsSessionsOfOriginDevice(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	laptop := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	phone := &fakeSession{id: "s2", userID: "alice", device: "phone"}
	r.Join(ctx, laptop)
	r.Join(ctx, phone)

	// A REST push has no session id, only a device. The laptop's live
	// session must still not see its own change come back.
	_, err := r.Ingest(ctx, "", textItem("alice", "laptop", "pushed over http"))
	require.NoError(t, err)

	assert.Empty(t, laptop.received())
	require.Len(t, phone.received(), 1)
}

func TestIngestPreservesEmissionOrder(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	origin := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	receiver := &fakeSession{id: "s2", userID: "alice", device: "phone"}
	r.Join(ctx, origin)
	r.Join(ctx, receiver)

	const n = 10
	for i := 0; i < n; i++ {
		_, err := r.Ingest(ctx, origin.id, textItem("alice", "laptop", fmt.Sprintf("clip-%d", i)))
		require.NoError(t, err)
	}

	got := receiver.received()
	require.Len(t, got, n)
	var prev time.Time
	for i, it := range got {
		assert.Equal(t, fmt.Sprintf("clip-%d", i), it.Text(),
			"changes must be delivered in the order they were ingested")
		assert.True(t, it.StampedAt.After(prev), "stamps must increase with delivery order")
		prev = it.StampedAt
	}
}

func TestIngestCrossUserIsolation(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	alice := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	bob := &fakeSession{id: "s2", userID: "bob", device: "desktop"}
	r.Join(ctx, alice)
	r.Join(ctx, bob)

	_, err := r.Ingest(ctx, "", textItem("alice", "phone", "private"))
	require.NoError(t, err)

	assert.Empty(t, bob.received())
	require.Len(t, alice.received(), 1)
}

func TestIngestPersistsWithZeroRecipients(t *testing.T) {
	store := history.NewMemory()
	r := New(store, presence.Noop{})
	ctx := context.Background()

	stamped, err := r.Ingest(ctx, "", textItem("alice", "laptop", "nobody listening"))
	require.NoError(t, err)
	assert.False(t, stamped.StampedAt.IsZero())

	got, err := store.LastN(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nobody listening", got[0].Text())
}

func TestIngestStoreFailureStillBroadcasts(t *testing.T) {
	r := New(failingStore{}, presence.Noop{})
	ctx := context.Background()

	origin := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	other := &fakeSession{id: "s2", userID: "alice", device: "phone"}
	r.Join(ctx, origin)
	r.Join(ctx, other)

	stamped, err := r.Ingest(ctx, origin.id, textItem("alice", "laptop", "ephemeral"))
	require.Error(t, err)
	assert.False(t, stamped.StampedAt.IsZero(), "the item is stamped even when persistence fails")
	require.Len(t, other.received(), 1, "live delivery must not depend on the history store")
}

func TestIngestRejectsInvalidItem(t *testing.T) {
	store := history.NewMemory()
	r := New(store, presence.Noop{})
	ctx := context.Background()

	_, err := r.Ingest(ctx, "", item.NewText("no user id"))
	require.ErrorIs(t, err, item.ErrInvalid)

	got, err := store.LastN(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStampsAreMonotonicPerUser(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	// Freeze the clock so consecutive ingests would collide without the
	// monotonic bump.
	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	first, err := r.Ingest(ctx, "", textItem("alice", "laptop", "a"))
	require.NoError(t, err)
	second, err := r.Ingest(ctx, "", textItem("alice", "laptop", "b"))
	require.NoError(t, err)

	assert.True(t, second.StampedAt.After(first.StampedAt))
}

func TestStampsSurviveRoomGC(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	s := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	r.Join(ctx, s)
	first, err := r.Ingest(ctx, s.id, textItem("alice", "laptop", "a"))
	require.NoError(t, err)

	r.Leave(ctx, s)
	require.Equal(t, 0, r.SessionCount("alice"))

	second, err := r.Ingest(ctx, "", textItem("alice", "phone", "b"))
	require.NoError(t, err)
	assert.True(t, second.StampedAt.After(first.StampedAt),
		"per-user stamping state must outlive the room")
}

func TestJoinLeaveLifecycle(t *testing.T) {
	r := New(history.NewMemory(), presence.Noop{})
	ctx := context.Background()

	s1 := &fakeSession{id: "s1", userID: "alice", device: "laptop"}
	s2 := &fakeSession{id: "s2", userID: "alice", device: "phone"}

	assert.Equal(t, 0, r.SessionCount("alice"))
	r.Join(ctx, s1)
	r.Join(ctx, s2)
	assert.Equal(t, 2, r.SessionCount("alice"))

	r.Leave(ctx, s1)
	assert.Equal(t, 1, r.SessionCount("alice"))

	// Leaving twice, or leaving without ever joining, is a no-op.
	r.Leave(ctx, s1)
	r.Leave(ctx, &fakeSession{id: "ghost", userID: "alice"})
	assert.Equal(t, 1, r.SessionCount("alice"))

	r.Leave(ctx, s2)
	assert.Equal(t, 0, r.SessionCount("alice"))
}
