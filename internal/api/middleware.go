package api

import (
	"net/http"
	"strings"

	"github.com/svarog-dev/warden/internal/auth"
)

// requireAuth is middleware that validates a JWT before calling the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.getAuthClaims(req) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	}
}

// getAuthClaims extracts and validates the JWT from the Authorization header
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return nil
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil
	}

	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		return nil
	}
	return claims
}
