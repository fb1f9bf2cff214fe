package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ServiceTokenHeader carries the shared secret of internal callers.
const ServiceTokenHeader = "X-Service-Token"

// RequireServiceToken rejects requests whose X-Service-Token does not match expected.
func RequireServiceToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(ServiceTokenHeader)
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "service token mismatch",
					"request_id", chimw.GetReqID(ctx),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"service token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
