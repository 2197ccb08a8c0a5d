// Package secret provides the optional NaCl secretbox sealing used on the
// wire between device and relay.
//
// A 32-byte symmetric key is derived from the relay's shared secret with
// HKDF-SHA256. Every sealed message carries a random 24-byte nonce prepended
// to the ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
//
// With no secret configured the wire layer passes a nil key and messages are
// sent as plain JSON. This is transport protection between device and relay
// only; the relay handles plaintext either way.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipd-wire-v1")

// DeriveKey derives a secretbox key from the shared secret. Device and relay
// must derive from the same secret to talk to each other.
func DeriveKey(shared string) (*[keySize]byte, error) {
	h := hkdf.New(sha256.New, []byte(shared), nil, hkdfInfo)
	var key [keySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// Seal encrypts plaintext with key, prepending a random nonce.
func Seal(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts nonce+ciphertext produced by Seal.
func Open(sealed []byte, key *[keySize]byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed message too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("decryption failed (secret mismatch?)")
	}
	return plain, nil
}
