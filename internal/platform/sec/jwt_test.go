// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package sec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenService(t *testing.T, expiration time.Duration) *TokenService {
	t.Helper()
	service, err := NewTokenService(testSecret, "relata", "relata-api", expiration)
	require.NoError(t, err)
	return service
}

/*
TestNewTokenService rejects secrets below the minimum length.
*/
func TestNewTokenService(t *testing.T) {
	_, err := NewTokenService("short", "relata", "relata-api", time.Hour)
	require.Error(t, err)

	service := newTestTokenService(t, time.Hour)
	assert.Equal(t, time.Hour, service.Expiration())
}

/*
TestTokenRoundTrip signs a token and verifies subject, role, issuer, and
audience survive.
*/
func TestTokenRoundTrip(t *testing.T) {
	service := newTestTokenService(t, time.Hour)

	token, expiresAt, err := service.GenerateAccessToken("alice", "editor")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, "relata", claims.Issuer)
}

/*
TestVerifyTokenRejections covers expiry, tampering, wrong keys, and claim
mismatches.
*/
func TestVerifyTokenRejections(t *testing.T) {
	service := newTestTokenService(t, time.Hour)

	t.Run("expired", func(t *testing.T) {
		expired := newTestTokenService(t, -time.Minute)
		token, _, err := expired.GenerateAccessToken("alice", "editor")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		require.Error(t, err)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		other, err := NewTokenService("ffffffffffffffffffffffffffffffff", "relata", "relata-api", time.Hour)
		require.NoError(t, err)
		token, _, err := other.GenerateAccessToken("alice", "editor")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		require.Error(t, err)
	})

	t.Run("wrong_issuer", func(t *testing.T) {
		other, err := NewTokenService(testSecret, "someone-else", "relata-api", time.Hour)
		require.NoError(t, err)
		token, _, err := other.GenerateAccessToken("alice", "editor")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		require.Error(t, err)
	})

	t.Run("wrong_audience", func(t *testing.T) {
		other, err := NewTokenService(testSecret, "relata", "other-api", time.Hour)
		require.NoError(t, err)
		token, _, err := other.GenerateAccessToken("alice", "editor")
		require.NoError(t, err)

		_, err = service.VerifyToken(token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.VerifyToken("not.a.token")
		require.Error(t, err)
	})

	t.Run("tampered_payload", func(t *testing.T) {
		token, _, err := service.GenerateAccessToken("alice", "editor")
		require.NoError(t, err)

		_, err = service.VerifyToken(token[:len(token)-2] + "xx")
		require.Error(t, err)
	})
}
