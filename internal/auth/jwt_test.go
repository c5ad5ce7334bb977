package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService("test-secret-key-for-testing-purposes", 15*time.Minute)
}

func TestNewJWTService(t *testing.T) {
	service := newTestJWTService()
	assert.NotNil(t, service)
	assert.Equal(t, 15*time.Minute, service.GetTokenExpiry())
}

func TestJWTService_GenerateToken_Success(t *testing.T) {
	service := newTestJWTService()

	buyerID := "buyer-123"
	email := "test@example.com"

	token, expiresAt, err := service.GenerateToken(buyerID, email)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
}

func TestJWTService_ValidateToken_Valid(t *testing.T) {
	service := newTestJWTService()

	buyerID := "buyer-456"
	email := "test@example.com"

	token, _, err := service.GenerateToken(buyerID, email)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)

	require.NoError(t, err)
	assert.Equal(t, buyerID, claims.BuyerID)
	assert.Equal(t, email, claims.Email)
	assert.Equal(t, buyerID, claims.Subject)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	// Create a service with very short expiry
	service := NewJWTService("test-secret", 1*time.Millisecond)

	token, _, err := service.GenerateToken("buyer-123", "test@example.com")
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	claims, err := service.ValidateToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateToken_WrongSignature(t *testing.T) {
	service1 := NewJWTService("secret-key-1", 15*time.Minute)
	service2 := NewJWTService("secret-key-2", 15*time.Minute)

	// Generate token with service1
	token, _, err := service1.GenerateToken("buyer-123", "test@example.com")
	require.NoError(t, err)

	// Try to validate with service2 (different secret)
	claims, err := service2.ValidateToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateToken_WrongAlgorithm(t *testing.T) {
	service := newTestJWTService()

	// Create a token with a different algorithm (none)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		BuyerID: "buyer-123",
		Email:   "test@example.com",
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateToken(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}
