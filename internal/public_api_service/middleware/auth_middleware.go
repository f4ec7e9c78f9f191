package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")

	ScopeAdmin = "admin"
)

var ErrInvalidClaims = errors.New("invalid token claims")

// AuthenticatedUser holds the identity carried by a validated token.
type AuthenticatedUser struct {
	ID     int64
	Email  string
	Scopes []string
}

// HasScope reports whether the user was granted scope.
func (u *AuthenticatedUser) HasScope(scope string) bool {
	return slices.Contains(u.Scopes, scope)
}

// TokenClaims is the payload of tokens issued at login. scope may be a single
// string or a list.
type TokenClaims struct {
	UserID    int64            `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"firstName,omitempty"`
	LastName  string           `json:"lastName,omitempty"`
	Scope     jwt.ClaimStrings `json:"scope"`
	jwt.RegisteredClaims
}

// JWTConfig configures token verification.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// SigningMethod is the only algorithm accepted for incoming tokens.
var SigningMethod = jwt.SigningMethodHS512

// ParseToken verifies signature, issuer, audience and expiry, and returns the user.
func ParseToken(cfg JWTConfig, tokenString string) (*AuthenticatedUser, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{SigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 || claims.Email == "" {
		return nil, ErrInvalidClaims
	}
	return &AuthenticatedUser{
		ID:     claims.UserID,
		Email:  claims.Email,
		Scopes: []string(claims.Scope),
	}, nil
}

// JWTAuthMiddleware authenticates requests carrying "Authorization: Bearer <token>".
func JWTAuthMiddleware(cfg JWTConfig, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format", "scheme", scheme)
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			authUser, err := ParseToken(cfg, strings.TrimSpace(tokenString))
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := WithUser(r.Context(), authUser)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated users lacking requiredScope with 403.
func RequireScope(requiredScope string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authUser, ok := UserFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "AuthenticatedUser not found in context. JWTAuthMiddleware must run first.")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !authUser.HasScope(requiredScope) {
				logger.WarnContext(r.Context(), "Insufficient scope",
					"user_id", authUser.ID,
					"required_scope", requiredScope,
					"user_scopes", strings.Join(authUser.Scopes, ","))
				http.Error(w, "Forbidden: insufficient scope", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the user stored by JWTAuthMiddleware.
func UserFromContext(ctx context.Context) (*AuthenticatedUser, bool) {
	u, ok := ctx.Value(AuthenticatedUserContextKey).(*AuthenticatedUser)
	return u, ok && u != nil
}

// WithUser stores u in ctx the way JWTAuthMiddleware does.
func WithUser(ctx context.Context, u *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, AuthenticatedUserContextKey, u)
}
