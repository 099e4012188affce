package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateManager(t *testing.T, ttl time.Duration) *EncryptedStateManager {
	t.Helper()

	sm, err := NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("hmac-key-for-tests"),
		ttl,
	)
	require.NoError(t, err)
	return sm
}

func TestStateRoundTrip(t *testing.T) {
	sm := newStateManager(t, 0)

	token, err := sm.Encode(&OAuthState{
		Provider:     "google",
		CodeVerifier: "verifier-123",
		ReturnTo:     "/interviews/42",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := sm.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "google", decoded.Provider)
	assert.Equal(t, "verifier-123", decoded.CodeVerifier)
	assert.Equal(t, "/interviews/42", decoded.ReturnTo)
	assert.NotEmpty(t, decoded.Nonce)
	assert.NotZero(t, decoded.ExpiresAt)
}

func TestStateUniqueNoncePerEncode(t *testing.T) {
	sm := newStateManager(t, 0)

	first, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)
	second, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStateTamperedCiphertext(t *testing.T) {
	sm := newStateManager(t, 0)

	token, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)/2] ^= 'x'

	_, err = sm.Decode(string(tampered))
	require.Error(t, err)
}

func TestStateWrongHMACKey(t *testing.T) {
	sm := newStateManager(t, 0)
	other, err := NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("a-different-hmac-key"),
		0,
	)
	require.NoError(t, err)

	token, err := sm.Encode(&OAuthState{Provider: "google"})
	require.NoError(t, err)

	_, err = other.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateExpired(t *testing.T) {
	sm := newStateManager(t, 0)

	token, err := sm.Encode(&OAuthState{
		Provider:  "google",
		IssuedAt:  time.Now().Add(-20 * time.Minute).Unix(),
		ExpiresAt: time.Now().Add(-10 * time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = sm.Decode(token)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestStateManagerRejectsBadKeys(t *testing.T) {
	_, err := NewEncryptedStateManager([]byte("too-short"), []byte("hmac"), 0)
	require.Error(t, err)

	_, err = NewEncryptedStateManager([]byte("0123456789abcdef0123456789abcdef"), nil, 0)
	require.Error(t, err)
}

func TestCodeChallengeDerivation(t *testing.T) {
	verifier, err := generateCodeVerifier()
	require.NoError(t, err)
	require.NotEmpty(t, verifier)

	challenge := computeCodeChallenge(verifier)
	assert.NotEmpty(t, challenge)
	assert.NotEqual(t, verifier, challenge)
	assert.Equal(t, challenge, computeCodeChallenge(verifier))
}
