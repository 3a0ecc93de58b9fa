package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32-chars"

func createTestTokenService(t *testing.T, ttl time.Duration) TokenService {
	t.Helper()
	svc, err := NewTokenService(ttl, "test-issuer", "test-audience", false, "", "", testSecret)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		privateKey  string
		publicKey   string
		secretKey   string
		expectError bool
	}{
		{name: "valid symmetric key configuration", secretKey: testSecret},
		{name: "missing secret key", expectError: true},
		{name: "rsa without keys", useRSAKeys: true, expectError: true},
		{name: "rsa with garbage keys", useRSAKeys: true, privateKey: "nope", publicKey: "nope", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTokenService(time.Hour, "issuer", "audience", tt.useRSAKeys, tt.privateKey, tt.publicKey, tt.secretKey)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := createTestTokenService(t, time.Hour)

	token, err := svc.GenerateAccessToken(7, 42, "RECRUITER")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.TenantID)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "RECRUITER", claims.Role)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))
}

func TestTokenService_Rejections(t *testing.T) {
	svc := createTestTokenService(t, time.Hour)

	t.Run("expired token", func(t *testing.T) {
		expired := createTestTokenService(t, -time.Minute)
		token, err := expired.GenerateAccessToken(1, 1, "ADMIN")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService(time.Hour, "test-issuer", "test-audience", false, "", "", "another-secret-key-for-jwt-signing-32")
		require.NoError(t, err)
		token, err := other.GenerateAccessToken(1, 1, "ADMIN")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewTokenService(time.Hour, "someone-else", "test-audience", false, "", "", testSecret)
		require.NoError(t, err)
		token, err := other.GenerateAccessToken(1, 1, "ADMIN")
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("missing tenant", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": 1,
			"iss":     "test-issuer",
			"aud":     "test-audience",
			"exp":     time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
