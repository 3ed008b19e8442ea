package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"civid/internal/platform/metrics"
)

// TokenValidator validates bearer tokens from the external identity provider.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims represents the claims we expect from the identity provider's tokens.
// Subject is the durable subject identifier; Roles carries the role claims
// (citizen, officer, voucher, admin).
type Claims struct {
	Subject string
	Roles   []string
}

// Context keys for authenticated principal information.
type contextKeySubject struct{}
type contextKeyRoles struct{}

// GetSubject retrieves the authenticated subject ID from the context.
func GetSubject(ctx context.Context) string {
	subject, ok := ctx.Value(contextKeySubject{}).(string)
	if !ok {
		return ""
	}
	return subject
}

// GetRoles retrieves the authenticated principal's role claims from the context.
func GetRoles(ctx context.Context) []string {
	roles, ok := ctx.Value(contextKeyRoles{}).([]string)
	if !ok {
		return nil
	}
	return roles
}

// WithClaims returns a context carrying the given principal claims.
// Exported for handler tests that bypass the HTTP middleware.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, contextKeySubject{}, claims.Subject)
	return context.WithValue(ctx, contextKeyRoles{}, claims.Roles)
}

// RequireAuth validates the bearer token and stores the principal's subject
// and roles in the request context. Requests without a valid token get 401.
func RequireAuth(validator TokenValidator, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if m != nil {
					m.RecordAuthFailure()
				}
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
