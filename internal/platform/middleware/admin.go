package middleware

import (
	"log/slog"
	"net/http"

	"civid/pkg/secrets"
)

// RequireAdminToken guards operator endpoints with a shared admin token.
// Only the bcrypt hash is kept in configuration; an empty hash disables the
// endpoints entirely rather than letting them through.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			if tokenHash == "" {
				logger.WarnContext(ctx, "admin endpoint disabled - no token hash configured",
					"request_id", requestID,
				)
				writeUnauthorized(w, "admin access disabled")
				return
			}

			token := r.Header.Get("X-Admin-Token")
			if err := secrets.Verify(token, tokenHash); err != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestID,
				)
				writeUnauthorized(w, "admin token required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
