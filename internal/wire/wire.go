// Package wire frames clipd messages over a net.Conn: one newline-terminated
// JSON line per message, optionally sealed with NaCl secretbox.
//
// Sealed lines are base64(nonce+ciphertext) so the framing is identical in
// both modes, and every line is exactly one message either way.
package wire

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"go.clipd.dev/clipd/internal/message"
	"go.clipd.dev/clipd/internal/secret"
)

const (
	// MaxLineSize is the largest single message accepted (16 MiB), which
	// bounds clipboard image payloads after base64 expansion.
	MaxLineSize = 16 * 1024 * 1024

	writeTimeout = 5 * time.Second
)

// Conn wraps a net.Conn with message framing and optional sealing.
type Conn struct {
	nc  net.Conn
	br  *bufio.Reader
	key *[32]byte // nil = plaintext
}

// New wraps nc. A non-nil key seals every outgoing message and opens every
// incoming one.
func New(nc net.Conn, key *[32]byte) *Conn {
	return &Conn{
		nc:  nc,
		br:  bufio.NewReaderSize(nc, 64*1024),
		key: key,
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// SetReadDeadline sets the read deadline d from now; d == 0 clears it.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.nc.SetReadDeadline(time.Time{})
		return
	}
	_ = c.nc.SetReadDeadline(time.Now().Add(d))
}

// Write serialises msg, seals it when a key is configured, and writes it as
// one line. A write that stalls past the write timeout fails the connection.
func (c *Conn) Write(msg *message.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var line []byte
	if c.key != nil {
		sealed, err := secret.Seal(raw, c.key)
		if err != nil {
			return fmt.Errorf("seal: %w", err)
		}
		line = append([]byte(base64.StdEncoding.EncodeToString(sealed)), '\n')
	} else {
		line = append(raw, '\n')
	}

	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.nc.Write(line)
	_ = c.nc.SetWriteDeadline(time.Time{})
	return err
}

// Read reads one line, opens it when a key is configured, and decodes it.
func (c *Conn) Read() (*message.Message, error) {
	line, err := c.br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > MaxLineSize {
		return nil, fmt.Errorf("message too large (%d bytes)", len(line))
	}
	line = line[:len(line)-1] // strip newline

	raw := line
	if c.key != nil {
		sealed, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return nil, fmt.Errorf("base64 decode: %w", err)
		}
		raw, err = secret.Open(sealed, c.key)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
	}

	return message.Decode(raw)
}
