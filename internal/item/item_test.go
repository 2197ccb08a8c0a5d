package item

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJSONRoundTripBinary verifies arbitrary bytes survive JSON embedding.
func TestJSONRoundTripBinary(t *testing.T) {
	content := make([]byte, 256)
	for i := range content {
		content[i] = byte(i)
	}
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	in := NewImage(content, "png")
	in.UserID = "alice"
	in.OriginDevice = "laptop"
	in.StampedAt = stamp

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Item
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.OriginDevice, out.OriginDevice)
	assert.Equal(t, Image, out.Kind)
	assert.Equal(t, "png", out.ImageEncoding)
	assert.Equal(t, content, out.Content)
	assert.True(t, stamp.Equal(out.StampedAt))
}

func TestJSONOmitsZeroTimestamp(t *testing.T) {
	data, err := json.Marshal(NewText("hello"))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "timestamp")
}

func TestNewImageDefaultsEncoding(t *testing.T) {
	it := NewImage([]byte{1, 2, 3}, "")
	assert.Equal(t, DefaultImageEncoding, it.ImageEncoding)
}

func TestValidate(t *testing.T) {
	valid := NewText("hi")
	valid.UserID = "alice"
	require.NoError(t, valid.Validate())

	cases := map[string]Item{
		"unknown kind": {Kind: "video", UserID: "alice"},
		"image without encoding": {
			Kind: Image, UserID: "alice", Content: []byte{1},
		},
		"missing user": NewText("hi"),
	}
	for name, it := range cases {
		t.Run(name, func(t *testing.T) {
			err := it.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := NewText("payload")
	b := NewText("payload")
	b.UserID = "someone-else"
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "origin metadata must not affect the fingerprint")

	img := NewImage([]byte("payload"), "png")
	assert.NotEqual(t, a.Fingerprint(), img.Fingerprint(), "kind is part of the fingerprint")

	c := NewText("other payload")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestSameContent(t *testing.T) {
	a := NewText("x")
	b := NewText("x")
	b.OriginDevice = "elsewhere"
	assert.True(t, a.SameContent(b))
	assert.False(t, a.SameContent(NewImage([]byte("x"), "png")))
}
