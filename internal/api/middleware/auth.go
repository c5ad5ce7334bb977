package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/storefront/internal/auth"
)

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(r *http.Request) string {
	// Try cookie first (for browser)
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	// Fall back to Authorization header (for API clients)
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	BuyerContextKey contextKey = "buyer"
)

// OptionalAuthMiddleware adds buyer claims to context if a valid token
// is present, but doesn't require one. Guests pass through untouched
// and identify themselves by header instead.
func OptionalAuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := ExtractToken(r); tokenString != "" {
				if claims, err := jwtService.ValidateToken(tokenString); err == nil {
					ctx := context.WithValue(r.Context(), BuyerContextKey, claims)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetBuyerFromContext retrieves buyer claims from the request context
func GetBuyerFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(BuyerContextKey).(*auth.Claims)
	return claims, ok
}

// GetBuyerID is a helper to get just the buyer ID from context
func GetBuyerID(ctx context.Context) string {
	claims, ok := GetBuyerFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.BuyerID
}
