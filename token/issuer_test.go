package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerPairRoundTrip(t *testing.T) {
	iss, err := NewIssuer(IssuerConfig{
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("issuer-secret-issuer-secret"),
		Issuer:        "restaurant-api",
	})
	require.NoError(t, err)
	iss.WithClock(FixedClock(10_000))

	access, refresh, err := iss.IssuePair("42", "Owner")
	require.NoError(t, err)

	ac, err := Decode(access)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, ac.TokenType)
	assert.Equal(t, int64(10_000), ac.IssuedAt)
	assert.Equal(t, int64(10_300), ac.ExpiresAt)

	rc, err := iss.Verify(refresh, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "Owner", rc.Role)
	assert.Equal(t, "42", rc.UserID)

	_, err = iss.Verify(access, TypeRefresh)
	assert.Error(t, err, "access token must not verify as refresh token")
}

func TestIssuerVerifyRejectsTamperingAndExpiry(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	iss, err := NewIssuer(IssuerConfig{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		KeyID:         "k1",
	})
	require.NoError(t, err)

	access, _, err := iss.IssuePair("u", "Employee")
	require.NoError(t, err)
	_, err = iss.Verify(access, TypeAccess)
	require.NoError(t, err)

	_, err = iss.Verify(access[:len(access)-3]+"abc", TypeAccess)
	assert.Error(t, err)

	later := time.Now().Add(2 * time.Minute)
	iss.WithClock(func() time.Time { return later })
	_, err = iss.Verify(access, TypeAccess)
	assert.Error(t, err, "expired access token must fail verification")
}

func TestNewIssuerValidation(t *testing.T) {
	_, err := NewIssuer(IssuerConfig{AccessTTL: 0, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	assert.Error(t, err)

	_, err = NewIssuer(IssuerConfig{AccessTTL: time.Hour, RefreshTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k")})
	assert.Error(t, err)

	_, err = NewIssuer(IssuerConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodHS256})
	assert.Error(t, err)

	_, err = NewIssuer(IssuerConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: "rs512", PrivateKey: []byte("k")})
	assert.Error(t, err)
}
