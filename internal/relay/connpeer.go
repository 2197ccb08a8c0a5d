package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"go.clipd.dev/clipd/internal/auth"
	"go.clipd.dev/clipd/internal/item"
	"go.clipd.dev/clipd/internal/message"
	"go.clipd.dev/clipd/internal/wire"
)

const (
	joinTimeout  = 10 * time.Second
	pingInterval = 15 * time.Second
	pongDeadline = 10 * time.Second

	sendBuffer = 64
)

// ConnPeer adapts a network connection speaking the clipd wire protocol into
// a relay Session. The zero value is not usable; construct with NewConnPeer.
type ConnPeer struct {
	id       string
	userID   string
	deviceID string
	joinedAt time.Time

	conn     *wire.Conn
	r        *Relay
	verifier *auth.Verifier

	sendCh chan *message.Message
	pongCh chan struct{}
	done   chan struct{} // closed when the session tears down
}

// NewConnPeer wraps nc. key enables wire sealing and may be nil.
func NewConnPeer(nc net.Conn, r *Relay, verifier *auth.Verifier, key *[32]byte) *ConnPeer {
	return &ConnPeer{
		id:       uuid.NewString(),
		conn:     wire.New(nc, key),
		r:        r,
		verifier: verifier,
		sendCh:   make(chan *message.Message, sendBuffer),
		pongCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (p *ConnPeer) ID() string     { return p.id }
func (p *ConnPeer) UserID() string { return p.userID }
func (p *ConnPeer) Device() string { return p.deviceID }

// Send implements Session. Never blocks: a slow or stuck connection drops
// live changes rather than stalling the room.
func (p *ConnPeer) Send(it item.Item) {
	p.push(message.Clip(it))
}

// push queues msg for the writer. Never blocks and never fails: a full
// buffer or a torn-down session just drops the message.
func (p *ConnPeer) push(msg *message.Message) {
	select {
	case <-p.done:
	case p.sendCh <- msg:
	default:
		slog.Warn("session send buffer full, dropping", "session", p.id)
	}
}

// Serve runs the session: JOIN handshake, room enrollment, then the
// read/write/ping loops until the connection dies. Call in its own
// goroutine; it cleans up the room membership on every exit path.
func (p *ConnPeer) Serve(ctx context.Context) {
	defer p.conn.Close()
	log := slog.With("session", p.id, "remote", p.conn.RemoteAddr())

	if !p.handshake(log) {
		return
	}
	p.joinedAt = time.Now()

	p.r.Join(ctx, p)
	defer func() {
		p.r.Leave(ctx, p)
		// Stops the writer and liveness goroutines. sendCh stays open so a
		// broadcast racing the teardown lands in the buffer, not a panic.
		close(p.done)
	}()

	// Writer: the only goroutine touching the conn's write side.
	go func() {
		for {
			select {
			case <-p.done:
				return
			case msg := <-p.sendCh:
				if err := p.conn.Write(msg); err != nil {
					log.Error("write failed", "err", err)
					p.conn.Close()
					return
				}
			}
		}
	}()

	// Liveness: ping, await pong, refresh presence.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
			}
			p.push(&message.Message{Type: message.TypePing})
			select {
			case <-p.pongCh:
				p.r.touchPresence(ctx, p)
			case <-time.After(pongDeadline):
				log.Warn("pong timeout, closing")
				p.conn.Close()
				return
			case <-p.done:
				return
			}
		}
	}()

	p.readLoop(ctx, log)
}

// handshake reads and verifies the JOIN message. Returns false when the
// session must not proceed.
func (p *ConnPeer) handshake(log *slog.Logger) bool {
	p.conn.SetReadDeadline(joinTimeout)
	msg, err := p.conn.Read()
	if err != nil {
		log.Warn("join read failed", "err", err)
		return false
	}
	p.conn.SetReadDeadline(0)

	if msg.Type != message.TypeJoin {
		_ = p.conn.Write(message.Errorf("expected JOIN, got %s", msg.Type))
		return false
	}

	userID, err := p.verifier.UserFor(msg.Token, msg.UserID)
	if err != nil {
		log.Warn("join rejected", "err", err)
		_ = p.conn.Write(message.Errorf("join rejected"))
		return false
	}
	p.userID = userID
	p.deviceID = msg.DeviceID
	if p.deviceID == "" {
		p.deviceID = p.conn.RemoteAddr().String()
	}

	log.Info("session authenticated", "user", p.userID, "device", p.deviceID)
	return true
}

// readLoop dispatches inbound messages until the connection closes.
func (p *ConnPeer) readLoop(ctx context.Context, log *slog.Logger) {
	for {
		msg, err := p.conn.Read()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Info("connection closed", "err", err)
			}
			return
		}

		switch msg.Type {
		case message.TypeClip:
			if msg.Item == nil {
				continue
			}
			it := *msg.Item
			// The session's identity is authoritative; a client cannot
			// publish into another user's room or forge its origin.
			it.UserID = p.userID
			if it.OriginDevice == "" {
				it.OriginDevice = p.deviceID
			}
			_, ingestErr := p.r.Ingest(ctx, p.id, it)
			p.push(message.Ack(ingestErr == nil))

		case message.TypePing:
			p.push(&message.Message{Type: message.TypePong})

		case message.TypePong:
			select {
			case p.pongCh <- struct{}{}:
			default:
			}

		default:
			log.Warn("unexpected message type", "type", msg.Type)
		}
	}
}
