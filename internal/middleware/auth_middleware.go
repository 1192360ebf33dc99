package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dbskills/enrollment/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// TokenVerifier checks a mobile verification token.
type TokenVerifier interface {
	VerifyToken(tokenString string) (*service.Claims, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *logrus.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireVerifiedMobile rejects requests that do not carry a valid
// verification token issued after a successful OTP check.
func (m *AuthMiddleware) RequireVerifiedMobile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondUnauthorized(w, "Mobile verification is required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondUnauthorized(w, "Invalid authorization header format")
			return
		}

		claims, err := m.verifier.VerifyToken(parts[1])
		if err != nil {
			m.logger.WithError(err).Debug("Verification token rejected")
			m.respondUnauthorized(w, "Invalid or expired verification token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the verification claims stored by
// RequireVerifiedMobile.
func ClaimsFromContext(ctx context.Context) (*service.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*service.Claims)
	return claims, ok
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
