package main

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"go.clipd.dev/clipd/internal/item"
)

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	it := item.NewText(strings.Repeat("日", 60))
	p := preview(it)

	assert.True(t, utf8.ValidString(p), "preview must never split a rune")
	assert.Equal(t, 49, utf8.RuneCountInString(p), "48 runes plus the ellipsis")
	assert.True(t, strings.HasSuffix(p, "…"))
}

func TestPreviewShortTextUntouched(t *testing.T) {
	assert.Equal(t, "hello", preview(item.NewText("hello")))
}

func TestPreviewFlattensWhitespace(t *testing.T) {
	assert.Equal(t, "one two three", preview(item.NewText("one\ntwo\tthree")))
}

func TestPreviewImage(t *testing.T) {
	assert.Equal(t, "(png image)", preview(item.NewImage([]byte{1, 2, 3}, "png")))
}
