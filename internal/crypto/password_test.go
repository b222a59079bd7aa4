package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordGate_HashVerify(t *testing.T) {
	gate := NewPasswordGate(bcrypt.MinCost)

	hash, err := gate.Hash("correct horse")
	require.NoError(t, err)
	assert.NotContains(t, hash, "correct horse")

	ok, err := gate.Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.Verify("wrong horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordGate_SaltedHashes(t *testing.T) {
	gate := NewPasswordGate(bcrypt.MinCost)

	a, err := gate.Hash("same")
	require.NoError(t, err)
	b, err := gate.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordGate_DefaultCost(t *testing.T) {
	assert.Equal(t, DefaultBcryptCost, NewPasswordGate(0).cost)
}

func TestPasswordGate_OverlongGuessIsMismatch(t *testing.T) {
	gate := NewPasswordGate(bcrypt.MinCost)
	hash, err := gate.Hash("short")
	require.NoError(t, err)

	ok, err := gate.Verify(strings.Repeat("a", MaxPasswordBytes+1), hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordGate_CorruptHash(t *testing.T) {
	gate := NewPasswordGate(bcrypt.MinCost)

	_, err := gate.Verify("anything", "not-a-bcrypt-hash")
	assert.Error(t, err)
}
