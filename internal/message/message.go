// Package message defines the clipd wire protocol.
//
// All messages are newline-delimited JSON; each message is exactly one line
// (<json>\n). Clipboard payloads ride inside item.Item, whose JSON form
// base64-encodes content so binary data is safe to embed.
//
// A session starts with JOIN, after which CLIP messages flow both ways:
// device → relay for local changes, relay → device for remote ones. The relay
// answers an ingested CLIP with an ACK whose Persisted flag reports whether
// the history write succeeded; the live broadcast happens either way.
package message

import (
	"encoding/json"
	"fmt"

	"go.clipd.dev/clipd/internal/item"
)

// Type identifies the kind of message.
type Type string

const (
	TypeJoin  Type = "JOIN"
	TypeClip  Type = "CLIP"
	TypeAck   Type = "ACK"
	TypePing  Type = "PING"
	TypePong  Type = "PONG"
	TypeError Type = "ERROR"
)

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// JOIN: the room to enroll in plus the device presenting itself.
	// Token carries the caller's credential (a JWT from the identity
	// service, or the relay's shared secret).
	UserID   string `json:"userId,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
	Token    string `json:"token,omitempty"`

	// CLIP: the payload. Relay-to-device items carry the server stamp.
	Item *item.Item `json:"item,omitempty"`

	// ACK: whether the history append for the acked CLIP succeeded.
	Persisted *bool `json:"persisted,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}

// Join builds a JOIN message.
func Join(userID, deviceID, token string) *Message {
	return &Message{Type: TypeJoin, UserID: userID, DeviceID: deviceID, Token: token}
}

// Clip builds a CLIP message carrying it.
func Clip(it item.Item) *Message {
	return &Message{Type: TypeClip, Item: &it}
}

// Ack builds an ACK for an ingested clip.
func Ack(persisted bool) *Message {
	return &Message{Type: TypeAck, Persisted: &persisted}
}

// Errorf builds an ERROR message.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}
