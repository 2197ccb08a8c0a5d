// Package transport is the device side of the sync channel: one long-lived
// duplex connection to the relay per device.
//
// Outbound, the Client is a notify.Observer: every local change is pushed
// upstream best-effort; with the link down the change is simply dropped from
// the live channel (durability comes from history queries, not transport
// retries). Inbound changes are written to the platform adapter and recorded
// in a short-lived marker so the capture pipeline does not echo them back.
//
// On disconnect the client reconnects with exponential backoff and re-sends
// JOIN. It never replays missed changes; callers wanting catch-up query the
// history endpoint explicitly.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.clipd.dev/clipd/internal/clip"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/message"
	"go.clipd.dev/clipd/internal/wire"
)

const (
	dialTimeout      = 10 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	watchdogTimeout  = 45 * time.Second
	watchdogInterval = 5 * time.Second

	// markerTTL bounds how long a remotely-applied item suppresses the
	// capture echo. Long enough to cover the poll/watch latency, short
	// enough that a genuine re-copy later still syncs.
	markerTTL = 3 * time.Second

	sendBuffer = 8
)

// Config describes the relay connection.
type Config struct {
	// Addr is the relay address (host:port).
	Addr string
	// UserID is the room to join.
	UserID string
	// DeviceID identifies this device in origin tags.
	DeviceID string
	// Token is the JOIN credential (JWT or shared secret; may be empty).
	Token string
	// Key enables wire sealing; nil sends plaintext.
	Key *[32]byte
}

// Applied is called after an inbound change has been written to the local
// clipboard, letting the embedder track the latest known item. May be nil.
type Applied func(it item.Item)

// Client maintains the relay connection for one device.
type Client struct {
	cfg     Config
	backend clip.Backend
	applied Applied

	sendCh chan item.Item

	markerMu sync.Mutex
	marker   [32]byte
	markerAt time.Time

	startOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
}

// New builds a Client writing inbound changes to backend. applied may be nil.
func New(cfg Config, backend clip.Backend, applied Applied) *Client {
	return &Client{
		cfg:     cfg,
		backend: backend,
		applied: applied,
		sendCh:  make(chan item.Item, sendBuffer),
		done:    make(chan struct{}),
	}
}

// Start launches the connect loop. Subsequent calls are no-ops.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		ctx, c.stop = context.WithCancel(ctx)
		go func() {
			defer close(c.done)
			c.connectLoop(ctx)
		}()
	})
}

// Stop tears the connection down and waits for the loop to exit.
func (c *Client) Stop() {
	if c.stop != nil {
		c.stop()
		<-c.done
	}
}

// Update implements notify.Observer: queue a local change for upstream push.
// Best-effort: with the connection down or the queue full the change is
// dropped from the live channel.
func (c *Client) Update(_ string, it item.Item) {
	it.UserID = c.cfg.UserID
	if it.OriginDevice == "" {
		it.OriginDevice = c.cfg.DeviceID
	}
	select {
	case c.sendCh <- it:
	default:
		slog.Warn("transport send queue full, dropping change")
	}
}

// SeenRecently implements keywatch.EchoGuard: reports whether it matches a
// change applied from the relay within the marker window.
func (c *Client) SeenRecently(it item.Item) bool {
	c.markerMu.Lock()
	defer c.markerMu.Unlock()
	if time.Since(c.markerAt) > markerTTL {
		return false
	}
	return c.marker == it.Fingerprint()
}

func (c *Client) mark(it item.Item) {
	c.markerMu.Lock()
	c.marker = it.Fingerprint()
	c.markerAt = time.Now()
	c.markerMu.Unlock()
}

func (c *Client) connectLoop(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		slog.Info("connecting to relay", "addr", c.cfg.Addr)
		nc, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			slog.Warn("relay connection failed", "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = initialBackoff
		slog.Info("connected to relay")

		c.runSession(ctx, nc)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("disconnected from relay, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialBackoff):
		}
	}
}

// runSession drives one connection until it fails or ctx ends.
func (c *Client) runSession(ctx context.Context, nc net.Conn) {
	wc := wire.New(nc, c.cfg.Key)
	defer wc.Close()

	if err := wc.Write(message.Join(c.cfg.UserID, c.cfg.DeviceID, c.cfg.Token)); err != nil {
		slog.Error("join send failed", "err", err)
		return
	}

	var lastRecv atomic.Int64
	lastRecv.Store(time.Now().UnixNano())

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			msg, err := wc.Read()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					slog.Info("relay closed connection", "err", err)
				}
				wc.Close()
				return
			}
			lastRecv.Store(time.Now().UnixNano())

			switch msg.Type {
			case message.TypeClip:
				if msg.Item == nil {
					continue
				}
				c.applyRemote(*msg.Item)

			case message.TypeAck:
				if msg.Persisted != nil && !*msg.Persisted {
					slog.Warn("relay could not persist change; history may miss it")
				}

			case message.TypePing:
				_ = wc.Write(&message.Message{Type: message.TypePong})

			case message.TypePong:
				// lastRecv already updated

			case message.TypeError:
				slog.Error("relay error", "error", msg.Error)
				wc.Close()
				return
			}
		}
	}()

	// Watchdog: a silent relay means a dead link the OS hasn't noticed.
	go func() {
		ticker := time.NewTicker(watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readerDone:
				return
			case <-ticker.C:
				if age := time.Since(time.Unix(0, lastRecv.Load())); age > watchdogTimeout {
					slog.Warn("relay silent too long, closing", "silent_for", age.Round(time.Second))
					wc.Close()
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return
		case it := <-c.sendCh:
			if err := wc.Write(message.Clip(it)); err != nil {
				slog.Error("change push failed", "err", err)
				wc.Close()
				<-readerDone
				return
			}
		}
	}
}

// applyRemote writes an inbound change to the local clipboard, marking it
// first so the capture pipeline does not re-publish it.
func (c *Client) applyRemote(it item.Item) {
	c.mark(it)
	if err := c.backend.Write(it); err != nil {
		slog.Error("applying remote change failed", "err", err)
		return
	}
	slog.Debug("remote change applied",
		"origin_device", it.OriginDevice,
		"type", it.Kind,
		"bytes", len(it.Content),
	)
	if c.applied != nil {
		c.applied(it)
	}
}
