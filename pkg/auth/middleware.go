// Package auth provides authentication and authorization.
package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// HTTPMiddleware creates HTTP middleware for JWT authentication.
// It extracts the token from the Authorization header, validates it,
// and adds claims to the request context.
func (v *JWTValidator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"Missing Authorization header"}`, http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, `{"error":"Invalid Authorization format, expected: Bearer <token>"}`, http.StatusUnauthorized)
			return
		}

		claims, err := v.ValidateToken(r.Context(), tokenString)
		if err != nil {
			http.Error(w, `{"error":"Unauthorized: `+err.Error()+`"}`, http.StatusUnauthorized)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from request context.
// Returns nil if no claims are present (request not authenticated).
func GetClaims(r *http.Request) *Claims {
	return ClaimsFromContext(r.Context())
}

// RequireRole creates middleware that checks for specific roles.
func RequireRole(validator *JWTValidator, allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return validator.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			if claims.HasAnyRole(allowedRoles...) {
				next.ServeHTTP(w, r)
				return
			}

			http.Error(w, `{"error":"Forbidden: insufficient permissions"}`, http.StatusForbidden)
		}))
	}
}

// TokenProvider returns the value to send in an outgoing Authorization header.
type TokenProvider func() (string, error)

// NewTokenProviderFromKwargs builds a TokenProvider from a dependency's forwarded
// `kwargs["auth"]` block, matching the credential shapes proxies must support:
// bearer tokens, API keys sent as bearer tokens, and basic auth.
func NewTokenProviderFromKwargs(authKwargs map[string]any) (TokenProvider, error) {
	if authKwargs == nil {
		return nil, nil
	}

	credType, _ := authKwargs["type"].(string)
	switch credType {
	case "", "bearer":
		token, _ := authKwargs["token"].(string)
		if token == "" {
			return nil, nil
		}
		return func() (string, error) { return "Bearer " + token, nil }, nil

	case "api_key":
		key, _ := authKwargs["api_key"].(string)
		if key == "" {
			return nil, fmt.Errorf("api_key is required")
		}
		return func() (string, error) { return "Bearer " + key, nil }, nil

	case "basic":
		username, _ := authKwargs["username"].(string)
		password, _ := authKwargs["password"].(string)
		if username == "" || password == "" {
			return nil, fmt.Errorf("username and password are required for basic auth")
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		return func() (string, error) { return "Basic " + encoded, nil }, nil

	default:
		return nil, fmt.Errorf("unsupported credential type: %s (supported: bearer, api_key, basic)", credType)
	}
}
