package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newValidator(t *testing.T) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256", SecretKey: secret, Issuer: "strivesync"})
	require.NoError(t, err)
	return v
}

func TestValidateToken(t *testing.T) {
	v := newValidator(t)

	t.Run("Should return the subject of a valid token", func(t *testing.T) {
		token, err := GenerateToken(secret, "strivesync", "u1", "asha@example.com", time.Hour)
		require.NoError(t, err)

		claims, err := v.ValidateToken("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, "asha@example.com", claims.Email)
	})

	t.Run("Should reject an expired token", func(t *testing.T) {
		token, err := GenerateToken(secret, "strivesync", "u1", "", -time.Minute)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Should reject a token signed with another key", func(t *testing.T) {
		token, err := GenerateToken("other", "strivesync", "u1", "", time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("Should reject a foreign issuer", func(t *testing.T) {
		token, err := GenerateToken(secret, "someone-else", "u1", "", time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("Should require a subject", func(t *testing.T) {
		token, err := GenerateToken(secret, "strivesync", "", "", time.Hour)
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("Should reject a different algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{Subject: "u1", Issuer: "strivesync"}).
			SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = v.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Should reject garbage and empty input", func(t *testing.T) {
		_, err := v.ValidateToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)

		_, err = v.ValidateToken("Bearer ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestValidateToken_Audience(t *testing.T) {
	v, err := NewJWTValidator(JWTConfig{SecretKey: secret, Audience: []string{"strivesync-api"}})
	require.NoError(t, err)

	signed := func(aud ...string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u1", Audience: aud, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	_, err = v.ValidateToken(signed("strivesync-api"))
	assert.NoError(t, err)

	_, err = v.ValidateToken(signed("other-api"))
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestNewJWTValidator(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{SigningMethod: "HS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "RS256"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTConfig{SigningMethod: "none", SecretKey: secret})
	assert.Error(t, err)
}

func TestUserContext(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.Error(t, err)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "u1"})
	user, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
}
