package testauthority

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	encoded, err := hashPassword("123456")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := verifyPassword("123456", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("1234567", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordHashSalted(t *testing.T) {
	a, err := hashPassword("same-password")
	require.NoError(t, err)
	b, err := hashPassword("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaA",
	} {
		_, err := verifyPassword("123456", encoded)
		assert.ErrorIs(t, err, errBadHash, encoded)
	}
}
