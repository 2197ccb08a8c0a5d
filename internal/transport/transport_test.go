package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/message"
	"go.clipd.dev/clipd/internal/wire"
)

type fakeBackend struct {
	mu    sync.Mutex
	wrote []item.Item
	watch chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{watch: make(chan struct{})}
}

func (f *fakeBackend) Name() string              { return "fake" }
func (f *fakeBackend) Read() (*item.Item, error) { return nil, nil }
func (f *fakeBackend) Watch() <-chan struct{}    { return f.watch }
func (f *fakeBackend) Close()                    {}

func (f *fakeBackend) Write(it item.Item) error {
	f.mu.Lock()
	f.wrote = append(f.wrote, it)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) written() []item.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]item.Item(nil), f.wrote...)
}

func TestSeenRecentlyMarker(t *testing.T) {
	c := New(Config{UserID: "alice", DeviceID: "laptop"}, newFakeBackend(), nil)

	remote := item.NewText("applied from relay")
	assert.False(t, c.SeenRecently(remote))

	c.mark(remote)
	assert.True(t, c.SeenRecently(remote))
	assert.False(t, c.SeenRecently(item.NewText("different content")))

	// The marker expires, so a genuine later re-copy still syncs.
	c.markerMu.Lock()
	c.markerAt = time.Now().Add(-2 * markerTTL)
	c.markerMu.Unlock()
	assert.False(t, c.SeenRecently(remote))
}

func TestUpdateDropsWhenQueueFull(t *testing.T) {
	c := New(Config{UserID: "alice", DeviceID: "laptop"}, newFakeBackend(), nil)

	// Nothing drains sendCh; overfilling it must not block the notifier.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBuffer+4; i++ {
			c.Update("alice", item.NewText("burst"))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked on a full queue")
	}
}

// TestClientSession runs a client against a scripted relay: verify the JOIN,
// deliver one remote change, then receive one local change back.
func TestClientSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	backend := newFakeBackend()
	applied := make(chan item.Item, 1)
	client := New(Config{
		Addr:     ln.Addr().String(),
		UserID:   "alice",
		DeviceID: "laptop",
		Token:    "credential",
	}, backend, func(it item.Item) { applied <- it })

	serverErr := make(chan error, 1)
	received := make(chan *message.Message, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		wc := wire.New(conn, nil)
		defer wc.Close()

		wc.SetReadDeadline(2 * time.Second)
		join, err := wc.Read()
		if err != nil {
			serverErr <- err
			return
		}
		received <- join

		remote := item.NewText("from the phone")
		remote.UserID = "alice"
		remote.OriginDevice = "phone"
		if err := wc.Write(message.Clip(remote)); err != nil {
			serverErr <- err
			return
		}

		wc.SetReadDeadline(2 * time.Second)
		clip, err := wc.Read()
		if err != nil {
			serverErr <- err
			return
		}
		received <- clip
		serverErr <- nil
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Stop()

	join := <-received
	require.Equal(t, message.TypeJoin, join.Type)
	assert.Equal(t, "alice", join.UserID)
	assert.Equal(t, "laptop", join.DeviceID)
	assert.Equal(t, "credential", join.Token)

	select {
	case it := <-applied:
		assert.Equal(t, "from the phone", it.Text())
	case <-time.After(2 * time.Second):
		t.Fatal("remote change was not applied")
	}

	wrote := backend.written()
	require.Len(t, wrote, 1)
	assert.Equal(t, "from the phone", wrote[0].Text())
	assert.True(t, client.SeenRecently(wrote[0]),
		"an applied change must be marked so capture skips the echo")

	client.Update("alice", item.NewText("from the laptop"))

	clip := <-received
	require.Equal(t, message.TypeClip, clip.Type)
	require.NotNil(t, clip.Item)
	assert.Equal(t, "from the laptop", clip.Item.Text())
	assert.Equal(t, "laptop", clip.Item.OriginDevice)

	require.NoError(t, <-serverErr)
}
