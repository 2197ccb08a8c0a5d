// Package item defines the clipboard payload that moves through the system:
// one copied value with its type, origin, and the server-assigned timestamp
// that totally orders it within a user's history.
package item

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalid marks a malformed item rejected before relaying.
var ErrInvalid = errors.New("invalid clip item")

// Kind identifies what a clipboard payload holds.
type Kind string

const (
	Text  Kind = "text"
	Image Kind = "image"
)

// DefaultImageEncoding is the interchange encoding assumed when a backend
// does not report one. Payloads are never transcoded in flight.
const DefaultImageEncoding = "png"

// Item is one clipboard payload. Treat instances as immutable once built.
type Item struct {
	// ID is the surrogate id assigned by the history store, zero until stored.
	ID int64

	UserID       string
	OriginDevice string

	Kind Kind
	// ImageEncoding is set iff Kind == Image ("png", "jpeg", ...).
	ImageEncoding string
	Content       []byte

	// StampedAt is assigned by the relay on ingestion and is strictly
	// increasing per user. Zero on an item that has not crossed the relay.
	StampedAt time.Time
}

// NewText builds a text item with no origin metadata attached yet.
func NewText(content string) Item {
	return Item{Kind: Text, Content: []byte(content)}
}

// NewImage builds an image item. An empty encoding defaults to PNG.
func NewImage(content []byte, encoding string) Item {
	if encoding == "" {
		encoding = DefaultImageEncoding
	}
	return Item{Kind: Image, ImageEncoding: encoding, Content: content}
}

// Text returns the payload as a string. Meaningful only for Kind == Text.
func (it Item) Text() string { return string(it.Content) }

// Empty reports whether the item carries no payload at all.
func (it Item) Empty() bool { return len(it.Content) == 0 }

// SameContent reports whether two items carry identical payloads,
// ignoring origin and timestamps. Used for echo and dedupe checks.
func (it Item) SameContent(other Item) bool {
	return it.Kind == other.Kind && bytes.Equal(it.Content, other.Content)
}

// Fingerprint returns a digest of kind and content, used as the short-lived
// "last applied" marker for echo suppression.
func (it Item) Fingerprint() [32]byte {
	h := sha256.New()
	h.Write([]byte(it.Kind))
	h.Write([]byte{0})
	h.Write(it.Content)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Validate reports whether the item is well-formed enough to relay.
func (it Item) Validate() error {
	switch it.Kind {
	case Text, Image:
	default:
		return fmt.Errorf("%w: unknown content type %q", ErrInvalid, it.Kind)
	}
	if it.Kind == Image && it.ImageEncoding == "" {
		return fmt.Errorf("%w: image item without encoding", ErrInvalid)
	}
	if it.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalid)
	}
	return nil
}

// itemJSON is the wire/REST shape. Content is base64-encoded so binary
// payloads survive JSON embedding byte-for-byte.
type itemJSON struct {
	UserID        string     `json:"userId"`
	DeviceID      string     `json:"deviceId,omitempty"`
	ContentType   Kind       `json:"contentType"`
	ImageEncoding string     `json:"imageEncoding,omitempty"`
	Content       string     `json:"content"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	j := itemJSON{
		UserID:        it.UserID,
		DeviceID:      it.OriginDevice,
		ContentType:   it.Kind,
		ImageEncoding: it.ImageEncoding,
		Content:       base64.StdEncoding.EncodeToString(it.Content),
	}
	if !it.StampedAt.IsZero() {
		ts := it.StampedAt
		j.Timestamp = &ts
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (it *Item) UnmarshalJSON(b []byte) error {
	var j itemJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return fmt.Errorf("item decode: %w", err)
	}
	content, err := base64.StdEncoding.DecodeString(j.Content)
	if err != nil {
		return fmt.Errorf("item content decode: %w", err)
	}
	*it = Item{
		UserID:        j.UserID,
		OriginDevice:  j.DeviceID,
		Kind:          j.ContentType,
		ImageEncoding: j.ImageEncoding,
		Content:       content,
	}
	if j.Timestamp != nil {
		it.StampedAt = *j.Timestamp
	}
	return nil
}
