package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/api"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/auth"
	appctx "github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/context"
)

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate is a middleware that validates JWT tokens from the Authorization header
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteError(w, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Authorization header is required", nil)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			api.WriteError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid authorization header format", nil)
			return
		}

		tokenString := parts[1]
		if tokenString == "" {
			api.WriteError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token is empty", nil)
			return
		}

		claims, err := m.tokenService.Validate(tokenString)
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), appctx.UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, appctx.RoleKey, claims.Role)
		ctx = context.WithValue(ctx, appctx.UsernameKey, claims.Username)
		if claims.StudentID != "" {
			ctx = context.WithValue(ctx, appctx.StudentIDKey, claims.StudentID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole restricts a route to callers whose token carries the given
// role. Must run after Authenticate.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := appctx.ExtractRole(r.Context())
			if !ok || got != role {
				api.WriteError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
