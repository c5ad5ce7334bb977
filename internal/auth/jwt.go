package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents JWT claims for a signed-in buyer
type Claims struct {
	BuyerID string `json:"buyer_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secretKey   []byte
	tokenExpiry time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secretKey string, tokenExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:   []byte(secretKey),
		tokenExpiry: tokenExpiry,
	}
}

// GenerateToken creates a new access token for a buyer
func (s *JWTService) GenerateToken(buyerID, email string) (string, time.Time, error) {
	expiresAt := time.Now().Add(s.tokenExpiry)

	claims := Claims{
		BuyerID: buyerID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   buyerID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates an access token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetTokenExpiry returns the token expiry duration
func (s *JWTService) GetTokenExpiry() time.Duration {
	return s.tokenExpiry
}
