package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	k1, err := DeriveKey("hunter2")
	require.NoError(t, err)
	k2, err := DeriveKey("hunter2")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	other, err := DeriveKey("hunter3")
	require.NoError(t, err)
	assert.NotEqual(t, k1, other)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)

	plain := []byte("the quick brown fox")
	sealed, err := Seal(plain, key)
	require.NoError(t, err)
	assert.NotEqual(t, plain, sealed)

	opened, err := Open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)
}

func TestOpenWrongKeyFails(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)
	wrong, err := DeriveKey("not-the-token")
	require.NoError(t, err)

	sealed, err := Seal([]byte("secret stuff"), key)
	require.NoError(t, err)

	_, err = Open(sealed, wrong)
	assert.Error(t, err)
}

func TestOpenTruncatedFails(t *testing.T) {
	key, err := DeriveKey("token")
	require.NoError(t, err)

	_, err = Open([]byte("short"), key)
	assert.Error(t, err)
}
